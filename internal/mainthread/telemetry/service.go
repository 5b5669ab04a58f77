package telemetry

import (
	"errors"
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/configuration"
	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
)

// Level is how much telemetry is sent. Values match the extension API.
type Level int

// Levels, least to most permissive.
const (
	LevelOff Level = iota
	LevelCrash
	LevelError
	LevelUsage
)

// ParseLevel maps a telemetry.telemetryLevel setting to a Level.
// Unknown values disable telemetry.
func ParseLevel(s string) Level {
	switch s {
	case configuration.TelemetryAll:
		return LevelUsage
	case configuration.TelemetryError:
		return LevelError
	case configuration.TelemetryCrash:
		return LevelCrash
	default:
		return LevelOff
	}
}

func (l Level) String() string {
	switch l {
	case LevelUsage:
		return configuration.TelemetryAll
	case LevelError:
		return configuration.TelemetryError
	case LevelCrash:
		return configuration.TelemetryCrash
	default:
		return configuration.TelemetryOff
	}
}

// Common property names.
const (
	PropSessionID = "common.sessionID"
	PropPlatform  = "common.platform"
	PropProduct   = "common.product"
	PropVersion   = "common.version"
)

// Event is one telemetry event as handed to appenders.
type Event struct {
	Name string         `json:"name"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// Appender receives every event the level allows.
type Appender interface {
	Append(e Event) error
}

// Options configure a Service.
type Options struct {
	Product string
	Version string

	// Enabled is false for builds that never send telemetry.
	Enabled bool

	Appenders []Appender

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service filters events by level and hands them to appenders.
type Service struct {
	opts      Options
	log       pslog.Logger
	sessionID string
	common    map[string]any

	mu    sync.RWMutex
	level Level

	onDidChangeLevel *emitter.Emitter[Level]
	sub              emitter.Disposable
}

// NewService creates a service whose level follows telemetry.telemetryLevel.
// cfg may be nil, which leaves the level at usage for enabled builds.
func NewService(cfg *configuration.Service, opts Options, log pslog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		opts:             opts,
		log:              logx.WithComponent(logx.OrDefault(log), "telemetry"),
		sessionID:        uuid.NewString(),
		onDidChangeLevel: emitter.New[Level](),
		level:            LevelUsage,
	}
	s.common = map[string]any{
		PropSessionID: s.sessionID,
		PropPlatform:  runtime.GOOS,
		PropProduct:   opts.Product,
		PropVersion:   opts.Version,
	}
	if cfg != nil {
		s.level = ParseLevel(cfg.GetString(configuration.KeyTelemetryLevel))
		s.sub = cfg.OnDidChange(func(e configuration.ChangeEvent) {
			if e.Affects(configuration.KeyTelemetryLevel) {
				s.setLevel(ParseLevel(cfg.GetString(configuration.KeyTelemetryLevel)))
			}
		})
	}
	return s
}

// SessionID identifies this process in every event.
func (s *Service) SessionID() string { return s.sessionID }

// Enabled reports whether the build sends telemetry at all.
func (s *Service) Enabled() bool { return s.opts.Enabled }

// Level returns the effective level; disabled builds are always off.
func (s *Service) Level() Level {
	if !s.opts.Enabled {
		return LevelOff
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

func (s *Service) setLevel(l Level) {
	s.mu.Lock()
	changed := s.level != l
	s.level = l
	s.mu.Unlock()
	if changed {
		s.log.Info("telemetry level changed", "level", l.String())
		s.onDidChangeLevel.Fire(l)
	}
}

// OnDidChangeLevel subscribes to level changes.
func (s *Service) OnDidChangeLevel(fn emitter.Listener[Level]) emitter.Disposable {
	return s.onDidChangeLevel.Subscribe(fn)
}

// PublicLog records a usage event. It is dropped below LevelUsage.
func (s *Service) PublicLog(name string, data map[string]any) error {
	return s.publish(LevelUsage, name, data)
}

// PublicLogError records an error event. It is dropped below LevelError.
func (s *Service) PublicLogError(name string, data map[string]any) error {
	return s.publish(LevelError, name, data)
}

func (s *Service) publish(min Level, name string, data map[string]any) error {
	if s.Level() < min {
		return nil
	}
	merged := make(map[string]any, len(data)+len(s.common))
	maps.Copy(merged, data)
	maps.Copy(merged, s.common)
	e := Event{Name: name, Time: s.opts.Now(), Data: merged}

	var errs []error
	for _, a := range s.opts.Appenders {
		if err := a.Append(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispose stops following the configuration.
func (s *Service) Dispose() {
	if s.sub != nil {
		s.sub.Dispose()
	}
	s.onDidChangeLevel.Dispose()
}
