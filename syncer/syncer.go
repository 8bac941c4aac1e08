// Package syncer replicates highlights, notes and settings between paired
// devices. A Manager owns the local identity, the peer connections and the
// reconnect loop, and merges incoming snapshots into the local store.
package syncer

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jd-code76/provinent-scripture-study-sub000/auth"
	"github.com/jd-code76/provinent-scripture-study-sub000/broadcast"
	"github.com/jd-code76/provinent-scripture-study-sub000/config"
	"github.com/jd-code76/provinent-scripture-study-sub000/events"
	"github.com/jd-code76/provinent-scripture-study-sub000/identity"
	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/ratelimit"
	"github.com/jd-code76/provinent-scripture-study-sub000/reconnect"
	"github.com/jd-code76/provinent-scripture-study-sub000/registry"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
)

var (
	ErrNotStarted   = errors.New("syncer: not started")
	ErrDestroyed    = errors.New("syncer: destroyed")
	ErrNotConnected = errors.New("syncer: peer not connected")
	ErrSelfConnect  = errors.New("syncer: cannot connect to own pairing code")
)

type Opt func(*Manager)

func WithConfig(cfg config.SyncConfig) Opt {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithEvents sets the bus notifications are emitted on.
func WithEvents(bus *events.Bus) Opt {
	return func(m *Manager) {
		m.events = bus
	}
}

// WithBroadcast sets the channel shared with other instances of this device.
func WithBroadcast(local broadcast.Local) Opt {
	return func(m *Manager) {
		m.local = local
	}
}

// WithDeviceName sets the name announced in handshakes.
func WithDeviceName(name string) Opt {
	return func(m *Manager) {
		m.deviceName = name
	}
}

// WithRand sets the source for device ids, pairing codes and nonces.
func WithRand(r io.Reader) Opt {
	return func(m *Manager) {
		m.rand = r
	}
}

// WithOrigin sets the id of this instance on the broadcast channel.
func WithOrigin(origin string) Opt {
	return func(m *Manager) {
		m.origin = origin
	}
}

// Manager is one device taking part in replication.
type Manager struct {
	logger     *zap.Logger
	cfg        config.SyncConfig
	clock      clockwork.Clock
	rand       io.Reader
	deviceName string
	origin     string

	store     store.Store
	events    *events.Bus
	local     broadcast.Local
	identity  *identity.Identity
	registry  *registry.Registry
	transport *transport.Transport
	limiter   *ratelimit.Limiter
	scheduler *reconnect.Scheduler

	// set by Start
	auth        *auth.Authenticator
	coordinator *broadcast.Coordinator

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	destroyed      bool
	deviceID       string
	connections    map[string]*connection
	dialing        map[string]struct{}
	syncInProgress map[string]struct{}
	autoSyncTimer  clockwork.Timer

	seq     atomic.Uint64
	eg      errgroup.Group
	conns   sync.WaitGroup
	destroy sync.Once
}

// New builds a Manager over st, reaching peers through provider.
func New(st store.Store, provider transport.Provider, opts ...Opt) (*Manager, error) {
	m := &Manager{
		logger:         zap.NewNop(),
		cfg:            config.DefaultSyncConfig(),
		clock:          clockwork.NewRealClock(),
		rand:           rand.Reader,
		deviceName:     "device",
		store:          st,
		local:          broadcast.Nop{},
		connections:    map[string]*connection{},
		dialing:        map[string]struct{}{},
		syncInProgress: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}
	if m.origin == "" {
		m.origin = uuid.NewString()
	}
	if m.events == nil {
		m.events = events.NewBus(events.WithClock(m.clock))
	}
	m.identity = identity.New(st,
		identity.WithRand(m.rand),
		identity.WithCodeLength(m.cfg.PairingCodeLength),
		identity.WithLogger(m.logger.Named("identity")),
	)
	reg, err := registry.New(st, registry.WithLogger(m.logger.Named("registry")))
	if err != nil {
		return nil, fmt.Errorf("load devices: %w", err)
	}
	m.registry = reg
	m.transport = transport.New(provider, m.identity,
		transport.WithLogger(m.logger.Named("transport")),
		transport.WithClock(m.clock),
		transport.WithOpenAttempts(m.cfg.OpenAttempts),
		transport.WithRetryDelay(m.cfg.PeerUnavailableRetry),
		transport.WithOnReady(m.events.EmitPeerReady),
	)
	m.limiter = ratelimit.New(m.cfg.RateLimitMessages, m.cfg.RateLimitWindow, ratelimit.WithClock(m.clock))
	m.scheduler = reconnect.New(m, m.registry, m,
		reconnect.WithInterval(m.cfg.ReconnectInterval),
		reconnect.WithMaxAttempts(m.cfg.MaxReconnectAttempts),
		reconnect.WithClock(m.clock),
		reconnect.WithLogger(m.logger.Named("reconnect")),
		reconnect.WithOnExhausted(m.onReconnectsExhausted),
		reconnect.WithOnStart(m.announceReconnect),
	)
	return m, nil
}

// Start loads the device identity and, if devices are known, opens the
// endpoint and begins reconnecting to them.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.ctx != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	deviceID, err := m.identity.DeviceID()
	if err != nil {
		return err
	}
	a := auth.New(deviceID,
		auth.WithRand(m.rand),
		auth.WithTimeout(m.cfg.ChallengeTimeout),
		auth.WithOnExpired(m.onChallengeExpired),
		auth.WithLogger(m.logger.Named("auth")),
	)
	coordinator := broadcast.NewCoordinator(m.local, deviceID, m.origin, m.scheduler,
		broadcast.WithLogger(m.logger.Named("broadcast")),
	)

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.deviceID = deviceID
	m.auth = a
	m.coordinator = coordinator
	m.ctx, m.cancel = runCtx, cancel
	m.mu.Unlock()

	m.logger.Info("sync manager started",
		log.ZDevice(deviceID),
		zap.String("name", m.deviceName),
		zap.Int("devices", m.registry.Len()),
		zap.Object("config", m.cfg),
	)
	m.transport.SetIncomingHandler(m.accept)
	m.eg.Go(func() error {
		return coordinator.Run(runCtx)
	})

	if m.registry.Len() == 0 {
		return nil
	}
	if _, err := m.transport.Open(runCtx); err != nil {
		m.transportError("", err)
	}
	for _, peer := range m.registry.ReconnectTargets() {
		m.eg.Go(func() error {
			m.Connect(runCtx, peer)
			return nil
		})
	}
	m.scheduler.Start(runCtx)
	return nil
}

func (m *Manager) running() (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.destroyed:
		return nil, ErrDestroyed
	case m.ctx == nil:
		return nil, ErrNotStarted
	}
	return m.ctx, nil
}

// Destroy stops timers and polling, closes every connection and the local
// endpoint. It is safe to call more than once.
func (m *Manager) Destroy() {
	m.destroy.Do(func() {
		m.mu.Lock()
		m.destroyed = true
		cancel := m.cancel
		if m.autoSyncTimer != nil {
			m.autoSyncTimer.Stop()
		}
		conns := make([]*connection, 0, len(m.connections))
		for _, cn := range m.connections {
			conns = append(conns, cn)
		}
		a := m.auth
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		m.scheduler.Stop()
		for _, cn := range conns {
			cn.conn.Close()
		}
		if err := m.transport.Close(); err != nil {
			m.logger.Debug("close endpoint", zap.Error(err))
		}
		m.conns.Wait()
		m.eg.Wait()
		if a != nil {
			a.Close()
		}
		m.logger.Info("sync manager destroyed")
	})
}

// StartPairing opens the endpoint if needed and returns the pairing code
// other devices connect to.
func (m *Manager) StartPairing(ctx context.Context) (string, error) {
	if _, err := m.running(); err != nil {
		return "", err
	}
	id, err := m.transport.Open(ctx)
	if err != nil {
		m.transportError("", err)
		return "", err
	}
	m.events.EmitPairingStarted(id)
	return id, nil
}

// Connect dials the device publishing code. It returns nil without dialing
// if a connection to code exists or is being dialed.
func (m *Manager) Connect(ctx context.Context, code string) error {
	if _, err := m.running(); err != nil {
		return err
	}
	if !identity.ValidCode(code) {
		return fmt.Errorf("%w: %q", identity.ErrInvalidCode, code)
	}
	if code == m.transport.ID() {
		return ErrSelfConnect
	}
	m.mu.Lock()
	_, dialing := m.dialing[code]
	if dialing || m.connections[code] != nil {
		m.mu.Unlock()
		return nil
	}
	m.dialing[code] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.dialing, code)
		m.mu.Unlock()
	}()

	conn, err := m.transport.Connect(ctx, code)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case transport.KindOf(err) == transport.KindPeerUnavailable:
			m.logger.Debug("peer unavailable", log.ZPeer(code))
		default:
			m.transportError(code, err)
		}
		return err
	}
	m.attach(conn, true)
	return nil
}

func (m *Manager) transportError(peerID string, err error) {
	m.logger.Warn("transport error", log.ZPeer(peerID), zap.Error(err))
	m.events.EmitTransportError(peerID, string(transport.KindOf(err)), err)
}

// Status reports the state of the connection to peerID. A connection that
// is not authenticated yet, or a dial in progress, counts as connecting.
func (m *Manager) Status(peerID string) reconnect.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cn := m.connections[peerID]; cn != nil {
		if cn.authenticated {
			return reconnect.Connected
		}
		return reconnect.Connecting
	}
	if _, ok := m.dialing[peerID]; ok {
		return reconnect.Connecting
	}
	return reconnect.Offline
}

// Connected lists the peers with an authenticated connection.
func (m *Manager) Connected() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var peers []string
	for peer, cn := range m.connections {
		if cn.authenticated {
			peers = append(peers, peer)
		}
	}
	slices.Sort(peers)
	return peers
}

// PeerID returns the current pairing code, or "" if there is none.
func (m *Manager) PeerID() string {
	if id := m.transport.ID(); id != "" {
		return id
	}
	code, err := m.identity.PeerID()
	if err != nil {
		m.logger.Warn("load pairing code", zap.Error(err))
	}
	return code
}

// DeviceID returns the stable id of this device.
func (m *Manager) DeviceID() (string, error) {
	return m.identity.DeviceID()
}

// Events returns the bus notifications are emitted on.
func (m *Manager) Events() *events.Bus {
	return m.events
}

func (m *Manager) announceReconnect() {
	m.mu.Lock()
	c := m.coordinator
	m.mu.Unlock()
	if c != nil {
		c.Announce()
	}
}

func (m *Manager) onReconnectsExhausted() {
	peers := m.registry.ReconnectTargets()
	m.logger.Info("all reconnect attempts failed", zap.Strings("peers", peers))
	m.events.EmitAllReconnectsFailed(peers)
}
