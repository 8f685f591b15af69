package external

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send once the feed connection has been closed
// locally or dropped by the vendor.
var ErrClosed = errors.New("feed connection closed")

// Event is one inbound feed message. Params keeps whatever JSON shape the
// vendor sent; numbers are decoded as json.Number.
type Event struct {
	Name   string
	Params any
}

type EventHandler func(Event)

// FeedConn is a live vendor session. Handlers registered with Subscribe run
// on the connection's read goroutine, one event at a time.
type FeedConn interface {
	Subscribe(h EventHandler)
	Send(method string, params ...any) error
	Close() error
}

// FeedDialer opens vendor connections.
type FeedDialer interface {
	Connect(ctx context.Context) (FeedConn, error)
}
