// Package terminalshell reports shell integration events of local
// terminals to the extension host and runs commands it asks for.
package terminalshell

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/logx"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/terminal"
	"github.com/dshills/extbridge/internal/uri"
)

const namespace = "terminal"

// Confidence in a reported command line.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// CommandLine is a command line as reported by the shell.
type CommandLine struct {
	Value      string     `json:"value"`
	Confidence Confidence `json:"confidence"`
	IsTrusted  bool       `json:"isTrusted"`
}

func commandLine(value string) CommandLine {
	if value == "" {
		return CommandLine{Confidence: ConfidenceLow}
	}
	return CommandLine{Value: value, Confidence: ConfidenceHigh, IsTrusted: true}
}

// ExecuteShellCommand asks for a command line to run in a terminal.
type ExecuteShellCommand struct {
	InstanceID  int    `json:"instanceId"`
	CommandLine string `json:"commandLine"`
}

func (ExecuteShellCommand) Method() string { return "$executeShellCommand" }

// Outbound messages.

type shellIntegrationChange struct {
	InstanceID int `json:"instanceId"`
}

type shellExecutionStart struct {
	InstanceID  int             `json:"instanceId"`
	CommandLine CommandLine     `json:"commandLine"`
	Cwd         *uri.Components `json:"cwd,omitempty"`
}

type shellExecutionData struct {
	InstanceID int    `json:"instanceId"`
	Data       string `json:"data"`
}

type shellExecutionEnd struct {
	InstanceID  int         `json:"instanceId"`
	CommandLine CommandLine `json:"commandLine"`
	ExitCode    *int        `json:"exitCode,omitempty"`
}

type cwdChange struct {
	InstanceID int            `json:"instanceId"`
	Cwd        uri.Components `json:"cwd"`
}

type closeTerminal struct {
	InstanceID int `json:"instanceId"`
}

func (shellIntegrationChange) Method() string { return "$shellIntegrationChange" }
func (shellExecutionStart) Method() string    { return "$shellExecutionStart" }
func (shellExecutionData) Method() string     { return "$shellExecutionData" }
func (shellExecutionEnd) Method() string      { return "$shellExecutionEnd" }
func (cwdChange) Method() string              { return "$cwdChange" }
func (closeTerminal) Method() string          { return "$closeTerminal" }

// MainThread is the main-thread side of terminal shell integration.
type MainThread struct {
	peer      rpc.Peer
	terminals *terminal.Service
	log       pslog.Logger

	subs emitter.Store

	mu        sync.Mutex
	instances map[int]*emitter.Store
}

// New starts reporting on every current and future terminal.
func New(peer rpc.Peer, terminals *terminal.Service, log pslog.Logger) *MainThread {
	m := &MainThread{
		peer:      peer,
		terminals: terminals,
		log:       logx.WithComponent(logx.OrDefault(log), "terminalshell"),
		instances: make(map[int]*emitter.Store),
	}
	m.subs.Add(terminals.OnDidCreate(m.watch))
	m.subs.Add(terminals.OnDidDispose(m.closed))
	for _, t := range terminals.Instances() {
		m.watch(t)
	}
	return m
}

func (m *MainThread) notify(msg rpc.Message) {
	if err := rpc.Notify(context.Background(), m.peer, msg); err != nil {
		m.log.Warn("terminal notification failed", "method", msg.Method(), "error", err)
	}
}

func (m *MainThread) watch(t *terminal.Instance) {
	m.mu.Lock()
	if _, ok := m.instances[t.ID()]; ok {
		m.mu.Unlock()
		return
	}
	subs := &emitter.Store{}
	m.instances[t.ID()] = subs
	m.mu.Unlock()

	id := t.ID()
	subs.Add(t.OnDidActivateShellIntegration(func(struct{}) {
		m.notify(shellIntegrationChange{InstanceID: id})
	}))
	subs.Add(t.OnDidStartExecution(func(e terminal.Execution) {
		msg := shellExecutionStart{InstanceID: id, CommandLine: commandLine(e.CommandLine)}
		if e.Cwd != "" {
			c := uri.File(e.Cwd).Components()
			msg.Cwd = &c
		}
		m.notify(msg)
	}))
	subs.Add(t.OnDidWriteExecutionData(func(d terminal.ExecutionData) {
		m.notify(shellExecutionData{InstanceID: id, Data: d.Data})
	}))
	subs.Add(t.OnDidEndExecution(func(e terminal.ExecutionEnd) {
		m.notify(shellExecutionEnd{InstanceID: id, CommandLine: commandLine(e.CommandLine), ExitCode: e.ExitCode})
	}))
	subs.Add(t.OnDidChangeCwd(func(dir string) {
		m.notify(cwdChange{InstanceID: id, Cwd: uri.File(dir).Components()})
	}))

	if t.HasShellIntegration() {
		m.notify(shellIntegrationChange{InstanceID: id})
	}
}

func (m *MainThread) closed(t *terminal.Instance) {
	m.mu.Lock()
	subs, ok := m.instances[t.ID()]
	delete(m.instances, t.ID())
	m.mu.Unlock()
	if !ok {
		return
	}
	subs.Dispose()
	m.notify(closeTerminal{InstanceID: t.ID()})
}

// Messages implements rpc.Service.
func (m *MainThread) Messages() rpc.Table {
	return rpc.Table{
		"$executeShellCommand": func() rpc.Message { return &ExecuteShellCommand{} },
	}
}

// Dispatch implements rpc.Service.
func (m *MainThread) Dispatch(_ context.Context, msg rpc.Message) (any, error) {
	switch msg := msg.(type) {
	case *ExecuteShellCommand:
		t, ok := m.terminals.Get(msg.InstanceID)
		if !ok {
			mainthread.DropUnknown(m.log, namespace, msg.InstanceID, msg.Method())
			return nil, nil
		}
		return nil, t.ExecuteCommand(msg.CommandLine)
	default:
		return nil, rpc.Unhandled(msg)
	}
}

// Dispose stops reporting.
func (m *MainThread) Dispose() {
	m.subs.Dispose()
	m.mu.Lock()
	instances := m.instances
	m.instances = make(map[int]*emitter.Store)
	m.mu.Unlock()
	for _, subs := range instances {
		subs.Dispose()
	}
}
