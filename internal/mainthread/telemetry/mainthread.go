// Package telemetry bridges extension host telemetry to the local
// telemetry service and keeps the host informed of the current level.
package telemetry

import (
	"context"
	"maps"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/rpc"
)

// PropPluginHost marks events that came from the extension host.
const PropPluginHost = "pluginHostTelemetry"

// ProductConfig tells the host which event kinds the product collects.
type ProductConfig struct {
	Usage bool `json:"usage"`
	Error bool `json:"error"`
}

// Inbound messages.

type PublicLog struct {
	EventName string         `json:"eventName"`
	Data      map[string]any `json:"data,omitempty"`
}

type PublicLog2 struct {
	EventName string         `json:"eventName"`
	Data      map[string]any `json:"data,omitempty"`
}

func (PublicLog) Method() string  { return "$publicLog" }
func (PublicLog2) Method() string { return "$publicLog2" }

// Outbound messages.

type initializeTelemetryLevel struct {
	Level             Level         `json:"level"`
	SupportsTelemetry bool          `json:"supportsTelemetry"`
	ProductConfig     ProductConfig `json:"productConfig"`
}

func (initializeTelemetryLevel) Method() string { return "$initializeTelemetryLevel" }

type didChangeTelemetryLevel struct {
	Level Level `json:"level"`
}

func (didChangeTelemetryLevel) Method() string { return "$onDidChangeTelemetryLevel" }

// MainThread is the main-thread side of the telemetry API.
type MainThread struct {
	peer    rpc.Peer
	service *Service
	log     pslog.Logger

	mu    sync.Mutex
	bound bool
	subs  emitter.Store
}

// New creates the proxy.
func New(peer rpc.Peer, service *Service, log pslog.Logger) *MainThread {
	return &MainThread{
		peer:    peer,
		service: service,
		log:     logx.WithComponent(logx.OrDefault(log), "telemetry"),
	}
}

// Bind sends the initial level and starts forwarding level changes.
// Calling it again only resends the level.
func (m *MainThread) Bind(ctx context.Context) error {
	m.mu.Lock()
	first := !m.bound
	m.bound = true
	m.mu.Unlock()

	if first {
		m.subs.Add(m.service.OnDidChangeLevel(func(l Level) {
			if err := rpc.Notify(context.Background(), m.peer, didChangeTelemetryLevel{Level: m.service.Level()}); err != nil {
				m.log.Warn("forwarding telemetry level failed", "level", l.String(), "error", err)
			}
		}))
	}

	enabled := m.service.Enabled()
	return rpc.Notify(ctx, m.peer, initializeTelemetryLevel{
		Level:             m.service.Level(),
		SupportsTelemetry: enabled,
		ProductConfig:     ProductConfig{Usage: enabled, Error: enabled},
	})
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$publicLog":  func() rpc.Message { return &PublicLog{} },
		"$publicLog2": func() rpc.Message { return &PublicLog2{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *PublicLog:
		m.publish(msg.EventName, msg.Data)
	case *PublicLog2:
		m.publish(msg.EventName, msg.Data)
	default:
		return nil, rpc.Unhandled(msg)
	}
	return nil, nil
}

func (m *MainThread) publish(name string, data map[string]any) {
	tagged := make(map[string]any, len(data)+1)
	maps.Copy(tagged, data)
	tagged[PropPluginHost] = true
	if err := m.service.PublicLog(name, tagged); err != nil {
		m.log.Warn("telemetry event not recorded", "event", name, "error", err)
	}
}

// Dispose stops forwarding level changes.
func (m *MainThread) Dispose() { m.subs.Dispose() }
