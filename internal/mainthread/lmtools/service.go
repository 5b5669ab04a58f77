package lmtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dshills/extbridge/internal/emitter"
	"github.com/dshills/extbridge/internal/jsonschema"
)

var (
	ErrToolNotFound      = errors.New("lmtools: tool not found")
	ErrDuplicateTool     = errors.New("lmtools: tool already registered")
	ErrNoImplementation  = errors.New("lmtools: tool has no implementation")
	ErrInvalidInput      = errors.New("lmtools: invalid tool input")
	ErrUnknownInvocation = errors.New("lmtools: unknown invocation")
	ErrNoTokenCounter    = errors.New("lmtools: invocation cannot count tokens")
)

// ToolData describes a tool to language models and users.
type ToolData struct {
	ID               string             `json:"id"`
	DisplayName      string             `json:"displayName,omitempty"`
	ModelDescription string             `json:"modelDescription"`
	UserDescription  string             `json:"userDescription,omitempty"`
	InputSchema      *jsonschema.Schema `json:"inputSchema,omitempty"`
	Tags             []string           `json:"tags,omitempty"`

	// Source is the contributing extension, empty for built-in tools.
	Source string `json:"source,omitempty"`
}

// Invocation is one call of a tool.
type Invocation struct {
	CallID      string          `json:"callId"`
	ToolID      string          `json:"toolId"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	TokenBudget int             `json:"tokenBudget,omitempty"`
}

// ResultPart is one piece of tool output.
type ResultPart struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Result is what a tool returns.
type Result struct {
	Content []ResultPart `json:"content"`
}

// Text is the concatenated text parts of r.
func (r Result) Text() string {
	var b strings.Builder
	for _, p := range r.Content {
		if p.Kind == "text" {
			b.WriteString(p.Value)
		}
	}
	return b.String()
}

// TextResult builds a single-part text result.
func TextResult(s string) Result {
	return Result{Content: []ResultPart{{Kind: "text", Value: s}}}
}

// TokenCounter counts the tokens of input for the model an invocation
// serves.
type TokenCounter func(ctx context.Context, input string) (int, error)

// Implementation runs a tool.
type Implementation interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// ImplementationFunc adapts a function to Implementation.
type ImplementationFunc func(ctx context.Context, inv Invocation) (Result, error)

func (f ImplementationFunc) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

type tool struct {
	data ToolData
	impl Implementation
}

// ToolsService is the registry of language model tools.
type ToolsService struct {
	mu     sync.RWMutex
	tools  map[string]*tool
	active map[string]TokenCounter

	onDidChangeTools *emitter.Emitter[struct{}]
}

// NewToolsService creates an empty registry.
func NewToolsService() *ToolsService {
	return &ToolsService{
		tools:            make(map[string]*tool),
		active:           make(map[string]TokenCounter),
		onDidChangeTools: emitter.New[struct{}](),
	}
}

// RegisterToolData adds a tool description.
func (s *ToolsService) RegisterToolData(data ToolData) (emitter.Disposable, error) {
	if data.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrToolNotFound)
	}
	s.mu.Lock()
	if _, ok := s.tools[data.ID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, data.ID)
	}
	t := &tool{data: data}
	s.tools[data.ID] = t
	s.mu.Unlock()
	s.onDidChangeTools.Fire(struct{}{})

	return emitter.DisposableFunc(func() {
		s.mu.Lock()
		removed := s.tools[data.ID] == t
		if removed {
			delete(s.tools, data.ID)
		}
		s.mu.Unlock()
		if removed {
			s.onDidChangeTools.Fire(struct{}{})
		}
	}), nil
}

// RegisterToolImplementation attaches impl to a described tool.
func (s *ToolsService) RegisterToolImplementation(id string, impl Implementation) (emitter.Disposable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, id)
	}
	if t.impl != nil {
		return nil, fmt.Errorf("%w: implementation for %s", ErrDuplicateTool, id)
	}
	t.impl = impl
	return emitter.DisposableFunc(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.impl == impl {
			t.impl = nil
		}
	}), nil
}

// Tool returns the description of id.
func (s *ToolsService) Tool(id string) (ToolData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[id]
	if !ok {
		return ToolData{}, false
	}
	return t.data, true
}

// Tools returns every described tool, ordered by id.
func (s *ToolsService) Tools() []ToolData {
	s.mu.RLock()
	out := make([]ToolData, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.data)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ToolData) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *ToolsService) OnDidChangeTools(fn emitter.Listener[struct{}]) emitter.Disposable {
	return s.onDidChangeTools.Subscribe(fn)
}

// InvokeTool validates the input and runs the tool. While it runs,
// CountTokens for its call id goes to counter, which may be nil.
func (s *ToolsService) InvokeTool(ctx context.Context, inv Invocation, counter TokenCounter) (Result, error) {
	s.mu.RLock()
	t, ok := s.tools[inv.ToolID]
	var (
		data ToolData
		impl Implementation
	)
	if ok {
		data, impl = t.data, t.impl
	}
	s.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, inv.ToolID)
	}
	if impl == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoImplementation, inv.ToolID)
	}
	if data.InputSchema != nil {
		params := inv.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		if err := data.InputSchema.ValidateJSON(params); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %w", ErrInvalidInput, inv.ToolID, err)
		}
	}

	if inv.CallID != "" {
		s.mu.Lock()
		s.active[inv.CallID] = counter
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.active, inv.CallID)
			s.mu.Unlock()
		}()
	}
	return impl.Invoke(ctx, inv)
}

// CountTokens counts input for the running invocation callID.
func (s *ToolsService) CountTokens(ctx context.Context, callID, input string) (int, error) {
	s.mu.RLock()
	counter, ok := s.active[callID]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInvocation, callID)
	}
	if counter == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoTokenCounter, callID)
	}
	return counter(ctx, input)
}
