package commands

import (
	"sort"
	"strings"
	"sync"

	"github.com/dshills/extbridge/internal/contextkey"
	"github.com/dshills/extbridge/internal/emitter"
)

// PaletteEntry is a command shown in the command palette.
type PaletteEntry struct {
	ID       string
	Title    string
	Category string

	precondition contextkey.Expr
}

// Label returns "Category: Title", or the title alone.
func (e PaletteEntry) Label() string {
	if e.Category == "" {
		return e.Title
	}
	return e.Category + ": " + e.Title
}

// Palette lists commands available to the user.
type Palette struct {
	mu      sync.RWMutex
	entries map[string]PaletteEntry
}

// NewPalette creates an empty palette.
func NewPalette() *Palette {
	return &Palette{entries: make(map[string]PaletteEntry)}
}

// Add adds an entry, replacing any entry with the same id.
func (p *Palette) Add(e PaletteEntry) emitter.Disposable {
	if e.precondition == nil {
		e.precondition = contextkey.MustParse("")
	}
	p.mu.Lock()
	p.entries[e.ID] = e
	p.mu.Unlock()

	return emitter.DisposableFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.entries, e.ID)
	})
}

// Search returns the entries enabled in ctx whose label contains query,
// ignoring case, sorted by label.
func (p *Palette) Search(query string, ctx contextkey.Context) []PaletteEntry {
	query = strings.ToLower(query)

	p.mu.RLock()
	out := make([]PaletteEntry, 0, len(p.entries))
	for _, e := range p.entries {
		if ctx != nil && !e.precondition.Eval(ctx) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(e.Label()), query) {
			continue
		}
		out = append(out, e)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out
}
