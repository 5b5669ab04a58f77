package walkthrough

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// Content resolution errors.
var (
	// ErrInvalidResource indicates a resource without a query or without a moduleId.
	ErrInvalidResource = errors.New("walkthrough: invalid resource")

	// ErrNoProvider indicates no provider is registered for the module.
	ErrNoProvider = errors.New("walkthrough: no provider registered")
)

// Scheme is the URI scheme of walkthrough media resources.
const Scheme = "walkThrough"

// ContentProvider produces the markup for one module.
type ContentProvider func() string

// ContentRegistry maps module ids to content providers.
type ContentRegistry struct {
	mu        sync.RWMutex
	providers map[string]providerEntry
	seq       int
}

type providerEntry struct {
	seq int
	p   ContentProvider
}

// NewContentRegistry creates an empty registry.
func NewContentRegistry() *ContentRegistry {
	return &ContentRegistry{providers: make(map[string]providerEntry)}
}

// RegisterProvider registers p for moduleID, replacing any earlier provider.
// Disposing the result removes p if it is still the registered provider.
func (r *ContentRegistry) RegisterProvider(moduleID string, p ContentProvider) emitter.Disposable {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.providers[moduleID] = providerEntry{seq: seq, p: p}
	r.mu.Unlock()

	return emitter.DisposableFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.providers[moduleID]; ok && cur.seq == seq {
			delete(r.providers, moduleID)
		}
	})
}

// Provider returns the provider for moduleID.
func (r *ContentRegistry) Provider(moduleID string) (ContentProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[moduleID]
	return e.p, ok
}

// Modules returns the registered module ids, sorted.
func (r *ContentRegistry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type moduleQuery struct {
	ModuleID string `json:"moduleId"`
}

// Resource returns the media resource for moduleID.
func Resource(moduleID string) uri.URI {
	q, _ := json.Marshal(moduleQuery{ModuleID: moduleID})
	return uri.Revive(uri.Components{
		Scheme: Scheme,
		Path:   "/media/" + moduleID,
		Query:  string(q),
	})
}

// ModuleID extracts the module id from a media resource's query.
func ModuleID(resource uri.URI) (string, error) {
	query := resource.Query()
	if query == "" {
		return "", fmt.Errorf("%w: %s has no query", ErrInvalidResource, resource)
	}
	if !strings.HasPrefix(query, "{") {
		if unescaped, err := url.QueryUnescape(query); err == nil {
			query = unescaped
		}
	}
	var q moduleQuery
	if err := json.Unmarshal([]byte(query), &q); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidResource, resource, err)
	}
	if q.ModuleID == "" {
		return "", fmt.Errorf("%w: %s has no moduleId", ErrInvalidResource, resource)
	}
	return q.ModuleID, nil
}

// ModuleToContent returns the markup of the module named by resource.
func (r *ContentRegistry) ModuleToContent(resource uri.URI) (string, error) {
	id, err := ModuleID(resource)
	if err != nil {
		return "", err
	}
	p, ok := r.Provider(id)
	if !ok {
		return "", fmt.Errorf("%w for %s", ErrNoProvider, id)
	}
	return p(), nil
}
