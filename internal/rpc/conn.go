package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"
	"pkt.systems/pslog"

	"github.com/dshills/extbridge/internal/logx"
)

// Conn is a JSON-RPC connection to the other side of the bridge.
// Messages are framed with Content-Length headers.
type Conn struct {
	id   string
	conn *jsonrpc2.Conn
	log  pslog.Logger
}

// NewConn starts reading from rwc and routes inbound requests to h.
func NewConn(ctx context.Context, rwc io.ReadWriteCloser, h jsonrpc2.Handler, log pslog.Logger) *Conn {
	id := uuid.NewString()
	log = logx.OrDefault(log).With("conn", id)
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	return &Conn{
		id:   id,
		conn: jsonrpc2.NewConn(ctx, stream, h, jsonrpc2.SetLogger(printfLogger{log})),
		log:  log,
	}
}

// Pipe connects two in-process endpoints.
func Pipe(ctx context.Context, a, b jsonrpc2.Handler, log pslog.Logger) (*Conn, *Conn) {
	ca, cb := net.Pipe()
	return NewConn(ctx, ca, a, log), NewConn(ctx, cb, b, log)
}

// ID returns the connection identifier used in logs.
func (c *Conn) ID() string { return c.id }

// Call sends a request and waits for the reply.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	return mapClosed(c.conn.Call(ctx, method, params, result))
}

// Notify sends a request without waiting for a reply.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	return mapClosed(c.conn.Notify(ctx, method, params))
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.conn.DisconnectNotify() }

// Close closes the connection.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return nil
	}
	return err
}

func mapClosed(err error) error {
	if errors.Is(err, jsonrpc2.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Stdio adapts a reader and writer pair, such as a child process's pipes
// or the process's own stdin and stdout, into a stream.
type Stdio struct {
	In  io.ReadCloser
	Out io.WriteCloser
}

func (s Stdio) Read(p []byte) (int, error)  { return s.In.Read(p) }
func (s Stdio) Write(p []byte) (int, error) { return s.Out.Write(p) }

// Close closes both ends.
func (s Stdio) Close() error {
	return errors.Join(s.In.Close(), s.Out.Close())
}

type printfLogger struct {
	log pslog.Logger
}

func (l printfLogger) Printf(format string, v ...any) {
	l.log.Warn(fmt.Sprintf(format, v...))
}
