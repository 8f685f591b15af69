package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kjannette/quote-relay/internal/external"
)

// SentCommand records one outbound feed command.
type SentCommand struct {
	Method string
	Params []any
}

// FakeConn is an in-memory external.FeedConn. Events are injected with Emit.
type FakeConn struct {
	mu       sync.Mutex
	handlers []external.EventHandler
	sent     []SentCommand
	closed   bool

	closeCount atomic.Int32

	// SendErr fails every Send when set.
	SendErr error
	// CloseErr is returned from Close.
	CloseErr error
	// OnSend runs after a command is recorded, outside the lock.
	OnSend func(c *FakeConn, cmd SentCommand)
}

func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

func (c *FakeConn) Subscribe(h external.EventHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

func (c *FakeConn) Send(method string, params ...any) error {
	c.mu.Lock()
	if c.SendErr != nil {
		c.mu.Unlock()
		return c.SendErr
	}
	if c.closed {
		c.mu.Unlock()
		return external.ErrClosed
	}
	cmd := SentCommand{Method: method, Params: params}
	c.sent = append(c.sent, cmd)
	hook := c.OnSend
	c.mu.Unlock()

	if hook != nil {
		hook(c, cmd)
	}
	return nil
}

func (c *FakeConn) Close() error {
	c.closeCount.Add(1)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.CloseErr
}

// Emit delivers evt to every subscribed handler on the calling goroutine.
func (c *FakeConn) Emit(evt external.Event) {
	c.mu.Lock()
	handlers := make([]external.EventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(evt)
	}
}

func (c *FakeConn) Sent() []SentCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SentCommand, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *FakeConn) Methods() []string {
	sent := c.Sent()
	out := make([]string, len(sent))
	for i, s := range sent {
		out[i] = s.Method
	}
	return out
}

func (c *FakeConn) HandlerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *FakeConn) CloseCount() int {
	return int(c.closeCount.Load())
}

// FakeDialer hands out FakeConns built by NewConn (or fresh ones).
type FakeDialer struct {
	mu    sync.Mutex
	conns []*FakeConn

	Err     error
	NewConn func() *FakeConn
}

func (d *FakeDialer) Connect(ctx context.Context) (external.FeedConn, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var c *FakeConn
	if d.NewConn != nil {
		c = d.NewConn()
	} else {
		c = NewFakeConn()
	}

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *FakeDialer) Conns() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeConn, len(d.conns))
	copy(out, d.conns)
	return out
}

// QuoteEvent builds a qsd event in the vendor's shape: [session, {n, s, v}].
func QuoteEvent(session, symbol string, values map[string]any) external.Event {
	return external.Event{
		Name: external.EventQuoteData,
		Params: []any{
			session,
			map[string]any{"n": symbol, "s": "ok", "v": values},
		},
	}
}
