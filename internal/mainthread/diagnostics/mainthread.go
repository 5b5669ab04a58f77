// Package diagnostics mirrors diagnostics published by extensions into the
// marker service, and forwards markers from other sources back to the
// extension host.
package diagnostics

import (
	"context"
	"sort"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/uri"
)

// WireEntry is the wire form of Entry.
type WireEntry struct {
	Resource uri.Components `json:"resource"`
	Markers  []MarkerData   `json:"markers"`
}

type ChangeMany struct {
	Owner   string      `json:"owner"`
	Entries []WireEntry `json:"entries"`
}

type Clear struct {
	Owner string `json:"owner"`
}

func (ChangeMany) Method() string { return "$changeMany" }
func (Clear) Method() string      { return "$clear" }

type acceptMarkersChange struct {
	Data []WireEntry `json:"data"`
}

func (acceptMarkersChange) Method() string { return "$acceptMarkersChange" }

// MainThread is the main-thread side of the diagnostics API.
type MainThread struct {
	peer    rpc.Peer
	log     pslog.Logger
	markers *MarkerService
	sub     emitter.Disposable

	mu     sync.Mutex
	owners map[string]bool
}

// New creates the proxy and starts forwarding foreign marker changes.
// A nil marker service is replaced with a fresh one.
func New(peer rpc.Peer, markers *MarkerService, log pslog.Logger) *MainThread {
	if markers == nil {
		markers = NewMarkerService()
	}
	m := &MainThread{
		peer:    peer,
		log:     logx.WithComponent(logx.OrDefault(log), "diagnostics"),
		markers: markers,
		owners:  make(map[string]bool),
	}
	m.sub = markers.OnDidChange(m.forward)
	return m
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$changeMany": func() rpc.Message { return &ChangeMany{} },
		"$clear":      func() rpc.Message { return &Clear{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *ChangeMany:
		entries := make([]Entry, len(msg.Entries))
		for i, e := range msg.Entries {
			entries[i] = Entry{Resource: uri.Revive(e.Resource), Markers: reviveMarkers(e.Markers)}
		}
		m.mu.Lock()
		m.owners[msg.Owner] = true
		m.mu.Unlock()
		m.markers.ChangeAll(msg.Owner, entries)
	case *Clear:
		m.markers.ChangeAll(msg.Owner, nil)
		m.mu.Lock()
		delete(m.owners, msg.Owner)
		m.mu.Unlock()
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

// reviveMarkers normalises related information URIs.
func reviveMarkers(data []MarkerData) []MarkerData {
	out := make([]MarkerData, len(data))
	for i, d := range data {
		if len(d.RelatedInformation) > 0 {
			related := make([]RelatedInformation, len(d.RelatedInformation))
			for j, r := range d.RelatedInformation {
				r.Resource = uri.Revive(r.Resource).Components()
				related[j] = r
			}
			d.RelatedInformation = related
		}
		out[i] = d
	}
	return out
}

func (m *MainThread) isOwn(owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[owner]
}

// forward sends every marker of the resources another source changed to
// the extension host. Changes this extension host made itself are not
// echoed back.
func (m *MainThread) forward(e ChangeEvent) {
	if m.isOwn(e.Owner) {
		return
	}
	data := make([]WireEntry, 0, len(e.Resources))
	for _, res := range e.Resources {
		var markers []MarkerData
		for _, mk := range m.markers.Read(Filter{Resource: &res}) {
			markers = append(markers, mk.MarkerData)
		}
		data = append(data, WireEntry{Resource: res.Components(), Markers: markers})
	}
	if err := rpc.Notify(context.Background(), m.peer, acceptMarkersChange{Data: data}); err != nil {
		m.log.Warn("forwarding markers failed", "owner", e.Owner, "error", err)
	}
}

// Owners returns the owners this extension host has written, sorted.
func (m *MainThread) Owners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.owners))
	for o := range m.owners {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

// Markers returns the marker service.
func (m *MainThread) Markers() *MarkerService { return m.markers }

// Dispose stops forwarding and clears every owner this extension host wrote.
func (m *MainThread) Dispose() {
	m.sub.Dispose()
	for _, o := range m.Owners() {
		m.markers.ChangeAll(o, nil)
	}
	m.mu.Lock()
	m.owners = make(map[string]bool)
	m.mu.Unlock()
}
