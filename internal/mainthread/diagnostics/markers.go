package diagnostics

import (
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/uri"
)

// Severity is a marker severity. Values match the extension API.
type Severity int

// Severities.
const (
	SeverityHint    Severity = 1
	SeverityInfo    Severity = 2
	SeverityWarning Severity = 4
	SeverityError   Severity = 8
)

func (s Severity) String() string {
	switch s {
	case SeverityHint:
		return "hint"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Tag marks unnecessary or deprecated code.
type Tag int

// Tags.
const (
	TagUnnecessary Tag = 1
	TagDeprecated  Tag = 2
)

// RelatedInformation points at another location relevant to a marker.
type RelatedInformation struct {
	Resource        uri.Components `json:"resource"`
	Message         string         `json:"message"`
	StartLineNumber int            `json:"startLineNumber"`
	StartColumn     int            `json:"startColumn"`
	EndLineNumber   int            `json:"endLineNumber"`
	EndColumn       int            `json:"endColumn"`
}

// MarkerData is one diagnostic. Lines and columns are 1-based.
type MarkerData struct {
	Severity           Severity             `json:"severity"`
	Message            string               `json:"message"`
	Source             string               `json:"source,omitempty"`
	Code               string               `json:"code,omitempty"`
	StartLineNumber    int                  `json:"startLineNumber"`
	StartColumn        int                  `json:"startColumn"`
	EndLineNumber      int                  `json:"endLineNumber"`
	EndColumn          int                  `json:"endColumn"`
	RelatedInformation []RelatedInformation `json:"relatedInformation,omitempty"`
	Tags               []Tag                `json:"tags,omitempty"`
}

// Marker is MarkerData attributed to an owner and resource.
type Marker struct {
	Owner    string
	Resource uri.URI
	MarkerData
}

// Entry is the markers of one resource.
type Entry struct {
	Resource uri.URI
	Markers  []MarkerData
}

// ChangeEvent reports which resources an owner changed.
type ChangeEvent struct {
	Owner     string
	Resources []uri.URI
}

// Filter selects markers. Zero fields match everything.
type Filter struct {
	Owner    string
	Resource *uri.URI
	Severity Severity
}

// Stats counts markers by severity.
type Stats struct {
	Errors   int
	Warnings int
	Infos    int
	Unknowns int
}

// MarkerService stores markers per owner and resource.
type MarkerService struct {
	mu      sync.RWMutex
	markers map[string]map[uri.URI][]MarkerData

	onDidChange *emitter.Emitter[ChangeEvent]
}

// NewMarkerService creates an empty marker service.
func NewMarkerService() *MarkerService {
	return &MarkerService{
		markers:     make(map[string]map[uri.URI][]MarkerData),
		onDidChange: emitter.New[ChangeEvent](),
	}
}

// ChangeOne replaces owner's markers for resource.
func (s *MarkerService) ChangeOne(owner string, resource uri.URI, data []MarkerData) {
	s.mu.Lock()
	s.setLocked(owner, resource, data)
	s.mu.Unlock()
	s.onDidChange.Fire(ChangeEvent{Owner: owner, Resources: []uri.URI{resource}})
}

// ChangeAll replaces every marker of owner with entries.
func (s *MarkerService) ChangeAll(owner string, entries []Entry) {
	s.mu.Lock()
	changed := map[uri.URI]bool{}
	for res := range s.markers[owner] {
		changed[res] = true
	}
	delete(s.markers, owner)
	for _, e := range entries {
		changed[e.Resource] = true
		if len(e.Markers) == 0 {
			continue
		}
		byRes := s.markers[owner]
		if byRes == nil {
			byRes = make(map[uri.URI][]MarkerData)
			s.markers[owner] = byRes
		}
		byRes[e.Resource] = append(byRes[e.Resource], e.Markers...)
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	s.onDidChange.Fire(ChangeEvent{Owner: owner, Resources: sortedURIs(changed)})
}

// Remove deletes owner's markers for resources.
func (s *MarkerService) Remove(owner string, resources []uri.URI) {
	s.mu.Lock()
	for _, r := range resources {
		s.setLocked(owner, r, nil)
	}
	s.mu.Unlock()
	if len(resources) > 0 {
		s.onDidChange.Fire(ChangeEvent{Owner: owner, Resources: resources})
	}
}

func (s *MarkerService) setLocked(owner string, resource uri.URI, data []MarkerData) {
	byRes := s.markers[owner]
	if len(data) == 0 {
		if byRes != nil {
			delete(byRes, resource)
			if len(byRes) == 0 {
				delete(s.markers, owner)
			}
		}
		return
	}
	if byRes == nil {
		byRes = make(map[uri.URI][]MarkerData)
		s.markers[owner] = byRes
	}
	byRes[resource] = append([]MarkerData(nil), data...)
}

// Read returns the markers matching f ordered by owner, resource and position.
func (s *MarkerService) Read(f Filter) []Marker {
	s.mu.RLock()
	var out []Marker
	for owner, byRes := range s.markers {
		if f.Owner != "" && owner != f.Owner {
			continue
		}
		for res, data := range byRes {
			if f.Resource != nil && res != *f.Resource {
				continue
			}
			for _, d := range data {
				if f.Severity != 0 && d.Severity != f.Severity {
					continue
				}
				out = append(out, Marker{Owner: owner, Resource: res, MarkerData: d})
			}
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.Resource != b.Resource {
			return a.Resource.String() < b.Resource.String()
		}
		if a.StartLineNumber != b.StartLineNumber {
			return a.StartLineNumber < b.StartLineNumber
		}
		return a.StartColumn < b.StartColumn
	})
	return out
}

// Owners returns the owners with at least one marker, sorted.
func (s *MarkerService) Owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.markers))
	for o := range s.markers {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Statistics counts every marker by severity.
func (s *MarkerService) Statistics() Stats {
	var st Stats
	for _, m := range s.Read(Filter{}) {
		switch m.Severity {
		case SeverityError:
			st.Errors++
		case SeverityWarning:
			st.Warnings++
		case SeverityInfo:
			st.Infos++
		default:
			st.Unknowns++
		}
	}
	return st
}

// OnDidChange subscribes to marker changes.
func (s *MarkerService) OnDidChange(fn emitter.Listener[ChangeEvent]) emitter.Disposable {
	return s.onDidChange.Subscribe(fn)
}

func sortedURIs(set map[uri.URI]bool) []uri.URI {
	out := make([]uri.URI, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
