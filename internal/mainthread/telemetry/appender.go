package telemetry

import (
	"encoding/json"
	"fmt"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/storage"
)

// LogAppender writes events to a structured logger.
type LogAppender struct {
	log pslog.Logger
}

// NewLogAppender logs events at info level.
func NewLogAppender(log pslog.Logger) *LogAppender {
	return &LogAppender{log: log}
}

// Append implements Appender.
func (a *LogAppender) Append(e Event) error {
	a.log.Info("telemetry event", "event", e.Name, "data", e.Data)
	return nil
}

// StoreAppender keeps events in the telemetry bucket, oldest first.
type StoreAppender struct {
	store *storage.Store

	// Limit bounds the number of stored events. Zero keeps everything.
	Limit uint64
}

// NewStoreAppender stores events in store, keeping at most limit.
func NewStoreAppender(store *storage.Store, limit uint64) *StoreAppender {
	return &StoreAppender{store: store, Limit: limit}
}

// Append implements Appender.
func (a *StoreAppender) Append(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("telemetry: encode %s: %w", e.Name, err)
	}
	seq, err := a.store.Append(storage.BucketTelemetry, data)
	if err != nil {
		return fmt.Errorf("telemetry: store %s: %w", e.Name, err)
	}
	if a.Limit > 0 && seq > a.Limit {
		if err := a.store.Truncate(storage.BucketTelemetry, seq-a.Limit+1); err != nil {
			return fmt.Errorf("telemetry: prune: %w", err)
		}
	}
	return nil
}

// Events returns the stored events, oldest first.
func (a *StoreAppender) Events() ([]Event, error) {
	var out []Event
	err := a.store.Iterate(storage.BucketTelemetry, 0, func(_ uint64, value []byte) error {
		var e Event
		if err := json.Unmarshal(value, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: read events: %w", err)
	}
	return out, nil
}
