// Package rtc is a transport.Provider over WebRTC data channels. Session
// descriptions are exchanged through a signal server after ICE gathering
// completes, so no trickle candidates are sent.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/config"
	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/signal"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
)

const channelLabel = "peersync"

type Opt func(*Provider)

func WithLogger(logger *zap.Logger) Opt {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithLoopback gathers loopback candidates, for devices on one host.
func WithLoopback() Opt {
	return func(p *Provider) {
		p.loopback = true
	}
}

type Provider struct {
	logger   *zap.Logger
	cfg      config.TransportConfig
	loopback bool
	api      *webrtc.API
}

func NewProvider(cfg config.TransportConfig, opts ...Opt) *Provider {
	p := &Provider{
		logger: zap.NewNop(),
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(p)
	}
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{p.logger.Named("pion")}}
	if p.loopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	}
	p.api = webrtc.NewAPI(webrtc.WithSettingEngine(se))
	return p
}

func (p *Provider) configuration() webrtc.Configuration {
	if len(p.cfg.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{ICEServers: []webrtc.ICEServer{{URLs: p.cfg.ICEServers}}}
}

// Open registers id on the signal server.
func (p *Provider) Open(ctx context.Context, id string) (transport.Endpoint, error) {
	client, err := signal.Dial(ctx, p.cfg.SignalURL, id, signal.WithClientLogger(p.logger.Named("signal")))
	if err != nil {
		return nil, err
	}
	e := &endpoint{
		p:       p,
		logger:  p.logger.With(log.ZPeer(id)),
		client:  client,
		pending: map[string]*dial{},
		conns:   map[*conn]struct{}{},
	}
	e.wg.Add(1)
	go e.run()
	return e, nil
}

type dial struct {
	dst    string
	answer chan signal.Description
	failed chan error
}

type endpoint struct {
	p      *Provider
	logger *zap.Logger
	client *signal.Client

	mu       sync.Mutex
	incoming func(transport.Conn)
	pending  map[string]*dial
	conns    map[*conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

func (e *endpoint) ID() string {
	return e.client.ID()
}

func (e *endpoint) SetIncomingHandler(fn func(transport.Conn)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.incoming = fn
}

func (e *endpoint) run() {
	defer e.wg.Done()
	for msg := range e.client.Messages() {
		switch msg.Type {
		case signal.TypeOffer:
			d, err := signal.DescriptionOf(msg)
			if err != nil {
				e.logger.Debug("bad offer", log.ZPeer(msg.Src), zap.Error(err))
				continue
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				if err := e.accept(msg.Src, d); err != nil {
					e.logger.Debug("failed to accept offer", log.ZPeer(msg.Src), zap.Error(err))
				}
			}()
		case signal.TypeAnswer:
			d, err := signal.DescriptionOf(msg)
			if err != nil {
				e.logger.Debug("bad answer", log.ZPeer(msg.Src), zap.Error(err))
				continue
			}
			e.answer(d)
		case signal.TypeError:
			p, err := signal.ErrorOf(msg)
			if err != nil {
				continue
			}
			if p.Type == signal.ErrorPeerUnavailable {
				e.fail(msg.Src, fmt.Errorf("%w: %s", transport.ErrPeerUnavailable, msg.Src))
				continue
			}
			e.logger.Warn("signal server error", zap.String("type", p.Type), zap.String("msg", p.Msg))
		}
	}
	e.logger.Debug("signaling stopped")
}

func (e *endpoint) expect(connID, dst string) *dial {
	d := &dial{dst: dst, answer: make(chan signal.Description, 1), failed: make(chan error, 1)}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[connID] = d
	return d
}

func (e *endpoint) forget(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, connID)
}

func (e *endpoint) answer(desc signal.Description) {
	e.mu.Lock()
	d := e.pending[desc.ConnectionID]
	e.mu.Unlock()
	if d == nil {
		return
	}
	select {
	case d.answer <- desc:
	default:
	}
}

func (e *endpoint) fail(dst string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.pending {
		if d.dst != dst {
			continue
		}
		select {
		case d.failed <- err:
		default:
		}
	}
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

// gather sets the local description and waits for ICE gathering.
func gather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	done := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (e *endpoint) Connect(ctx context.Context, id string) (transport.Conn, error) {
	select {
	case <-e.client.Done():
		return nil, transport.ErrClosed
	default:
	}
	ctx, cancel := context.WithTimeout(ctx, e.p.cfg.ConnectTimeout)
	defer cancel()

	pc, err := e.p.api.NewPeerConnection(e.p.configuration())
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	c := newConn(e, id, pc)
	if !e.track(c) {
		c.Close()
		return nil, transport.ErrClosed
	}
	ordered := true
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	c.attach(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := gather(ctx, pc, offer); err != nil {
		c.Close()
		return nil, err
	}

	connID := uuid.NewString()
	d := e.expect(connID, id)
	defer e.forget(connID)
	msg, err := signal.NewDescriptionMessage(signal.TypeOffer, id, signal.Description{
		ConnectionID: connID,
		SDP:          pc.LocalDescription().SDP,
		Type:         webrtc.SDPTypeOffer.String(),
	})
	if err == nil {
		err = e.client.Send(msg)
	}
	if err != nil {
		c.Close()
		if errors.Is(err, transport.ErrClosed) {
			return nil, err
		}
		return nil, fmt.Errorf("send offer: %w", err)
	}

	select {
	case answer := <-d.answer:
		remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
		if err := pc.SetRemoteDescription(remote); err != nil {
			c.Close()
			return nil, fmt.Errorf("set remote description: %w", err)
		}
	case err := <-d.failed:
		c.Close()
		return nil, err
	case <-e.client.Done():
		c.Close()
		return nil, transport.ErrClosed
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
	c.owned.Store(true)
	c.expireUnopened(e.p.cfg.ConnectTimeout)
	return c, nil
}

func (e *endpoint) accept(src string, desc signal.Description) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.p.cfg.ConnectTimeout)
	defer cancel()

	pc, err := e.p.api.NewPeerConnection(e.p.configuration())
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}
	c := newConn(e, src, pc)
	if !e.track(c) {
		c.Close()
		return transport.ErrClosed
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			dc.Close()
			return
		}
		c.attach(dc)
		e.mu.Lock()
		handler := e.incoming
		e.mu.Unlock()
		if handler == nil {
			c.Close()
			return
		}
		c.owned.Store(true)
		handler(c)
	})

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		c.Close()
		return fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		c.Close()
		return fmt.Errorf("create answer: %w", err)
	}
	if err := gather(ctx, pc, answer); err != nil {
		c.Close()
		return err
	}
	msg, err := signal.NewDescriptionMessage(signal.TypeAnswer, src, signal.Description{
		ConnectionID: desc.ConnectionID,
		SDP:          pc.LocalDescription().SDP,
		Type:         webrtc.SDPTypeAnswer.String(),
	})
	if err == nil {
		err = e.client.Send(msg)
	}
	if err != nil {
		c.Close()
		return fmt.Errorf("send answer: %w", err)
	}
	c.expireUnopened(e.p.cfg.ConnectTimeout)
	return nil
}

func (e *endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*conn, 0, len(e.conns))
	for c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	err := e.client.Close()
	for _, c := range conns {
		c.Close()
	}
	e.wg.Wait()
	return err
}

// conn is a data channel on its own peer connection.
type conn struct {
	*transport.Mailbox
	ep     *endpoint
	remote string
	pc     *webrtc.PeerConnection

	mu     sync.Mutex
	dc     *webrtc.DataChannel
	opened bool
	owned  atomic.Bool
	once   sync.Once
}

func newConn(ep *endpoint, remote string, pc *webrtc.PeerConnection) *conn {
	c := &conn{Mailbox: transport.NewMailbox(), ep: ep, remote: remote, pc: pc}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			go c.Close()
		}
	})
	return c
}

func (c *conn) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()
	dc.OnOpen(func() {
		c.mu.Lock()
		c.opened = true
		c.mu.Unlock()
		c.Open()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.Data(msg.Data)
	})
	dc.OnError(func(err error) {
		c.Error(err)
	})
	dc.OnClose(func() {
		go c.Close()
	})
}

// expireUnopened closes the connection if the channel is not open in time.
func (c *conn) expireUnopened(timeout time.Duration) {
	time.AfterFunc(timeout, func() {
		c.mu.Lock()
		opened := c.opened
		c.mu.Unlock()
		if !opened {
			c.ep.logger.Debug("data channel did not open", log.ZPeer(c.remote))
			c.Close()
		}
	})
}

func (c *conn) RemoteID() string {
	return c.remote
}

func (c *conn) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil || c.Closed() || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrClosed
	}
	return dc.Send(data)
}

func (c *conn) Close() error {
	c.once.Do(func() {
		c.Mailbox.Close()
		if !c.owned.Load() {
			c.SetHandlers(transport.Handlers{})
		}
		c.ep.untrack(c)
		go func() {
			if err := c.pc.Close(); err != nil {
				c.ep.logger.Debug("close peer connection", log.ZPeer(c.remote), zap.Error(err))
			}
		}()
	})
	return nil
}
