package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailableID means the pairing code is held by another endpoint.
	ErrUnavailableID = errors.New("unavailable id")
	// ErrPeerUnavailable means no endpoint is registered under the target id.
	ErrPeerUnavailable = errors.New("peer unavailable")
	// ErrClosed is returned when using a closed connection or endpoint.
	ErrClosed = errors.New("closed")
)

type Kind string

const (
	KindUnavailableID   Kind = "unavailable-id"
	KindPeerUnavailable Kind = "peer-unavailable"
	KindTransport       Kind = "transport"
)

// Error is returned by Transport for failures surfaced to callers.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a transport error, KindTransport for any other
// non-nil error.
func KindOf(err error) Kind {
	var terr *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &terr):
		return terr.Kind
	case errors.Is(err, ErrUnavailableID):
		return KindUnavailableID
	case errors.Is(err, ErrPeerUnavailable):
		return KindPeerUnavailable
	}
	return KindTransport
}

// Handlers are the per-connection callbacks. Providers never invoke them
// from inside Send or Close, call them from one goroutine per connection
// in order, and call OnClose exactly once.
type Handlers struct {
	OnOpen  func()
	OnData  func([]byte)
	OnClose func()
	OnError func(error)
}

// Conn is a bidirectional message channel to one remote endpoint.
type Conn interface {
	RemoteID() string
	Send(data []byte) error
	// SetHandlers installs callbacks. Events that arrive earlier are held
	// until handlers are set.
	SetHandlers(h Handlers)
	Close() error
}

// Endpoint is the local listening identity.
type Endpoint interface {
	ID() string
	Connect(ctx context.Context, id string) (Conn, error)
	SetIncomingHandler(fn func(Conn))
	Close() error
}
