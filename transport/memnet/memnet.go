// Package memnet is an in-process transport.Provider. Endpoints of one
// Network reach each other by id; delivery is asynchronous and ordered per
// connection.
package memnet

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
)

type Opt func(*Network)

func WithLogger(logger *zap.Logger) Opt {
	return func(n *Network) {
		n.logger = logger
	}
}

type Network struct {
	logger *zap.Logger

	mu         sync.Mutex
	endpoints  map[string]*endpoint
	partitions map[[2]string]struct{}
}

func New(opts ...Opt) *Network {
	n := &Network{
		logger:     zap.NewNop(),
		endpoints:  map[string]*endpoint{},
		partitions: map[[2]string]struct{}{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func pair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Open registers id on the network.
func (n *Network) Open(ctx context.Context, id string) (transport.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.endpoints[id]; ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnavailableID, id)
	}
	ep := &endpoint{net: n, id: id, conns: map[*conn]struct{}{}}
	n.endpoints[id] = ep
	n.logger.Debug("endpoint registered", log.ZPeer(id))
	return ep, nil
}

// Registered reports whether an endpoint holds id.
func (n *Network) Registered(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.endpoints[id]
	return ok
}

// IDs lists the registered endpoint ids.
func (n *Network) IDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.endpoints))
	for id := range n.endpoints {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Unregister takes id off the network as if the device went away. Its
// connections are closed.
func (n *Network) Unregister(id string) {
	n.mu.Lock()
	ep := n.endpoints[id]
	n.mu.Unlock()
	if ep != nil {
		ep.Close()
	}
}

// Partition makes a and b unreachable from each other and closes the
// connections between them.
func (n *Network) Partition(a, b string) {
	n.mu.Lock()
	n.partitions[pair(a, b)] = struct{}{}
	ep := n.endpoints[a]
	n.mu.Unlock()
	if ep == nil {
		return
	}
	for _, c := range ep.snapshot() {
		if c.remote == b {
			c.Close()
		}
	}
}

// Heal undoes Partition.
func (n *Network) Heal(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.partitions, pair(a, b))
}

func (n *Network) lookup(from, to string) (*endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.partitions[pair(from, to)]; ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrPeerUnavailable, to)
	}
	ep, ok := n.endpoints[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrPeerUnavailable, to)
	}
	return ep, nil
}

func (n *Network) remove(ep *endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.endpoints[ep.id] == ep {
		delete(n.endpoints, ep.id)
	}
}

type endpoint struct {
	net *Network
	id  string

	mu       sync.Mutex
	incoming func(transport.Conn)
	conns    map[*conn]struct{}
	closed   bool
}

func (e *endpoint) ID() string {
	return e.id
}

func (e *endpoint) SetIncomingHandler(fn func(transport.Conn)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incoming = fn
}

func (e *endpoint) Connect(ctx context.Context, id string) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remote, err := e.net.lookup(e.id, id)
	if err != nil {
		return nil, err
	}
	local := newConn(e, id)
	peer := newConn(remote, e.id)
	local.peer, peer.peer = peer, local

	if !e.track(local) {
		return nil, transport.ErrClosed
	}
	if !remote.track(peer) {
		e.untrack(local)
		return nil, fmt.Errorf("%w: %s", transport.ErrPeerUnavailable, id)
	}
	local.Open()
	peer.Open()

	remote.mu.Lock()
	handler := remote.incoming
	remote.mu.Unlock()
	go func() {
		if handler == nil {
			peer.SetHandlers(transport.Handlers{})
			peer.Close()
			return
		}
		handler(peer)
	}()
	return local, nil
}

func (e *endpoint) track(c *conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.conns[c] = struct{}{}
	return true
}

func (e *endpoint) untrack(c *conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, c)
}

func (e *endpoint) snapshot() []*conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	conns := make([]*conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	return conns
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	e.net.remove(e)
	for _, c := range e.snapshot() {
		c.Close()
	}
	e.net.logger.Debug("endpoint closed", log.ZPeer(e.id))
	return nil
}
