package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
)

// RPC errors.
var (
	// ErrMethodNotFound indicates no service handles the method.
	ErrMethodNotFound = errors.New("rpc: method not found")

	// ErrInvalidParams indicates the params could not be decoded.
	ErrInvalidParams = errors.New("rpc: invalid params")

	// ErrDuplicateMethod indicates two services claim the same method.
	ErrDuplicateMethod = errors.New("rpc: duplicate method")

	// ErrInvalidMethod indicates a method name without the "$" prefix.
	ErrInvalidMethod = errors.New("rpc: method name must start with $")

	// ErrUnhandledMessage indicates a service received a message type it does not dispatch.
	ErrUnhandledMessage = errors.New("rpc: unhandled message")

	// ErrPanic indicates a handler panicked.
	ErrPanic = errors.New("rpc: handler panic")

	// ErrClosed indicates the connection is closed.
	ErrClosed = errors.New("rpc: connection closed")
)

// Message is one RPC method invocation. Method returns the "$"-prefixed name.
type Message interface {
	Method() string
}

// Table maps method names to constructors of their message types.
type Table map[string]func() Message

// Service handles a set of inbound methods.
type Service interface {
	// Messages returns the methods the service handles.
	Messages() Table

	// Dispatch handles a decoded message.
	Dispatch(ctx context.Context, msg Message) (any, error)
}

// Async is a handler result that finishes later. The router runs it on its
// own goroutine and replies with its outcome.
type Async func(ctx context.Context) (any, error)

// Peer is the remote side of a connection.
type Peer interface {
	Call(ctx context.Context, method string, params, result any) error
	Notify(ctx context.Context, method string, params any) error
}

// Call invokes msg on the peer and decodes the reply into result.
func Call(ctx context.Context, p Peer, msg Message, result any) error {
	if err := p.Call(ctx, msg.Method(), msg, result); err != nil {
		return fmt.Errorf("%s: %w", msg.Method(), err)
	}
	return nil
}

// Notify sends msg without waiting for a reply.
func Notify(ctx context.Context, p Peer, msg Message) error {
	if err := p.Notify(ctx, msg.Method(), msg); err != nil {
		return fmt.Errorf("%s: %w", msg.Method(), err)
	}
	return nil
}

// Unhandled returns the error a Service reports for an unexpected message.
func Unhandled(msg Message) error {
	return fmt.Errorf("%w: %T", ErrUnhandledMessage, msg)
}

// ValidMethod reports whether name follows the "$" naming convention.
func ValidMethod(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, "$")
}

// toWireError converts err into the JSON-RPC error sent to the peer.
func toWireError(err error) *jsonrpc2.Error {
	var wire *jsonrpc2.Error
	if errors.As(err, &wire) {
		return wire
	}
	switch {
	case errors.Is(err, ErrMethodNotFound):
		return &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: err.Error()}
	case errors.Is(err, ErrInvalidParams):
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	default:
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
	}
}
