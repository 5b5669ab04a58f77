package commands

import (
	"sort"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
)

// Keybinding is the default key chord declared by an action. Key resolution
// happens elsewhere; the registry only records what was declared.
type Keybinding struct {
	Key    string
	When   string
	Weight int
}

// KeybindingRecord ties a keybinding to its command.
type KeybindingRecord struct {
	Command string
	Keybinding
}

// KeybindingRegistry collects declared keybindings.
type KeybindingRegistry struct {
	mu      sync.RWMutex
	records map[int]KeybindingRecord
	seq     int
}

// NewKeybindingRegistry creates an empty registry.
func NewKeybindingRegistry() *KeybindingRegistry {
	return &KeybindingRegistry{records: make(map[int]KeybindingRecord)}
}

// Add records a keybinding.
func (r *KeybindingRegistry) Add(rec KeybindingRecord) emitter.Disposable {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.records[seq] = rec
	r.mu.Unlock()

	return emitter.DisposableFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.records, seq)
	})
}

// Records returns every record, highest weight first, then by command.
func (r *KeybindingRegistry) Records() []KeybindingRecord {
	r.mu.RLock()
	out := make([]KeybindingRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].Command != out[j].Command {
			return out[i].Command < out[j].Command
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ForCommand returns the records declared for a command.
func (r *KeybindingRegistry) ForCommand(command string) []KeybindingRecord {
	var out []KeybindingRecord
	for _, rec := range r.Records() {
		if rec.Command == command {
			out = append(out, rec)
		}
	}
	return out
}
