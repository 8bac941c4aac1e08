// Package transport wraps a peer connection provider with pairing code
// management and the retry rules for opening and dialing.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
)

type Opt func(*Transport)

func WithLogger(logger *zap.Logger) Opt {
	return func(t *Transport) {
		t.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(t *Transport) {
		t.clock = clock
	}
}

// WithOpenAttempts bounds how many pairing codes are tried when opening.
func WithOpenAttempts(n int) Opt {
	return func(t *Transport) {
		t.openAttempts = n
	}
}

// WithRetryDelay sets the pause before the single retry of a connect that
// failed with ErrPeerUnavailable.
func WithRetryDelay(d time.Duration) Opt {
	return func(t *Transport) {
		t.retryDelay = d
	}
}

// WithOnReady is called with the endpoint id after every successful open.
func WithOnReady(fn func(id string)) Opt {
	return func(t *Transport) {
		t.onReady = fn
	}
}

// Transport opens the local endpoint lazily under the current pairing code.
type Transport struct {
	logger       *zap.Logger
	clock        clockwork.Clock
	provider     Provider
	codes        CodeSource
	openAttempts int
	retryDelay   time.Duration
	onReady      func(string)

	openMu   sync.Mutex
	mu       sync.Mutex
	endpoint Endpoint
	incoming func(Conn)
}

func New(provider Provider, codes CodeSource, opts ...Opt) *Transport {
	t := &Transport{
		logger:       zap.NewNop(),
		clock:        clockwork.NewRealClock(),
		provider:     provider,
		codes:        codes,
		openAttempts: 5,
		retryDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetIncomingHandler installs the handler for inbound connections, on the
// current endpoint and on every endpoint opened later.
func (t *Transport) SetIncomingHandler(fn func(Conn)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.incoming = fn
	if t.endpoint != nil {
		t.endpoint.SetIncomingHandler(fn)
	}
}

// ID returns the id of the open endpoint, or "" if none is open.
func (t *Transport) ID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.endpoint == nil {
		return ""
	}
	return t.endpoint.ID()
}

// Open returns the id of the local endpoint, opening it if needed. A taken
// pairing code is replaced with a fresh one and the open retried.
func (t *Transport) Open(ctx context.Context) (string, error) {
	t.openMu.Lock()
	defer t.openMu.Unlock()
	if id := t.ID(); id != "" {
		return id, nil
	}

	var lastErr error
	for attempt := 0; attempt < t.openAttempts; attempt++ {
		code, err := t.codes.CurrentCode()
		if err != nil {
			return "", fmt.Errorf("pairing code: %w", err)
		}
		ep, err := t.provider.Open(ctx, code)
		switch {
		case err == nil:
			t.install(ep)
			t.logger.Info("endpoint open", log.ZPeer(ep.ID()))
			if t.onReady != nil {
				t.onReady(ep.ID())
			}
			return ep.ID(), nil
		case errors.Is(err, ErrUnavailableID):
			t.logger.Debug("pairing code taken, regenerating", log.ZPeer(code))
			lastErr = err
			if _, err := t.codes.RegenerateCode(); err != nil {
				return "", fmt.Errorf("regenerate pairing code: %w", err)
			}
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			return "", &Error{Kind: KindTransport, Err: err}
		}
	}
	return "", &Error{Kind: KindUnavailableID, Err: lastErr}
}

func (t *Transport) install(ep Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoint = ep
	if t.incoming != nil {
		ep.SetIncomingHandler(t.incoming)
	}
}

// Connect dials id, opening the local endpoint first if needed. If the
// target is not registered it waits for the retry delay and tries once more.
func (t *Transport) Connect(ctx context.Context, id string) (Conn, error) {
	if _, err := t.Open(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	ep := t.endpoint
	t.mu.Unlock()
	if ep == nil {
		return nil, &Error{Kind: KindTransport, Err: ErrClosed}
	}

	conn, err := ep.Connect(ctx, id)
	if errors.Is(err, ErrPeerUnavailable) {
		t.logger.Debug("peer unavailable, retrying once", log.ZPeer(id), zap.Duration("delay", t.retryDelay))
		if t.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.clock.After(t.retryDelay):
			}
		}
		conn, err = ep.Connect(ctx, id)
	}
	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, ErrClosed):
		// the endpoint lost its registration; the next call reopens it
		t.drop(ep)
		return nil, &Error{Kind: KindTransport, Err: err}
	case errors.Is(err, ErrPeerUnavailable):
		return nil, &Error{Kind: KindPeerUnavailable, Err: err}
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, &Error{Kind: KindTransport, Err: err}
}

func (t *Transport) drop(ep Endpoint) {
	t.mu.Lock()
	if t.endpoint != ep {
		t.mu.Unlock()
		return
	}
	t.endpoint = nil
	t.mu.Unlock()
	t.logger.Info("endpoint lost", log.ZPeer(ep.ID()))
	ep.Close()
}

// Close closes the endpoint. A later Open or Connect opens a new one.
func (t *Transport) Close() error {
	t.openMu.Lock()
	defer t.openMu.Unlock()
	t.mu.Lock()
	ep := t.endpoint
	t.endpoint = nil
	t.mu.Unlock()
	if ep == nil {
		return nil
	}
	t.logger.Info("endpoint closed", log.ZPeer(ep.ID()))
	return ep.Close()
}
