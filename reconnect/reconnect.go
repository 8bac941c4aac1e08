// Package reconnect polls known devices that have no live connection and
// dials them a bounded number of times.
package reconnect

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/metrics"
)

const subsystem = "reconnect"

var attemptsTotal = metrics.NewCounter(
	"attempts_total",
	subsystem,
	"Reconnect attempts by outcome",
	[]string{"outcome"},
)

var (
	attemptOK     = attemptsTotal.WithLabelValues("ok")
	attemptFailed = attemptsTotal.WithLabelValues("failed")
)

// Opt configures a Scheduler.
type Opt func(*Scheduler)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Opt {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithMaxAttempts sets how many polling attempts a device gets.
func WithMaxAttempts(n int) Opt {
	return func(s *Scheduler) {
		s.maxAttempts = n
	}
}

// WithClock sets the clock driving the polling ticker.
func WithClock(clock clockwork.Clock) Opt {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithOnExhausted is called when every device used up its attempts.
func WithOnExhausted(fn func()) Opt {
	return func(s *Scheduler) {
		s.onExhausted = fn
	}
}

// WithOnStart is called whenever polling starts through Start or Reset.
func WithOnStart(fn func()) Opt {
	return func(s *Scheduler) {
		s.onStart = fn
	}
}

// Status is the state of the connection to a peer.
type Status int

const (
	// Offline peers have no connection and may be dialed.
	Offline Status = iota
	// Connecting peers have a connection or dial that is not authenticated
	// yet. They are neither dialed nor reset.
	Connecting
	// Connected peers are authenticated. Their attempts are reset.
	Connected
)

func (s Status) String() string {
	switch s {
	case Offline:
		return "offline"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Scheduler drives reconnection to the devices listed by Devices.
type Scheduler struct {
	logger      *zap.Logger
	clock       clockwork.Clock
	interval    time.Duration
	maxAttempts int
	dialer      Dialer
	devices     Devices
	live        Liveness
	onExhausted func()
	onStart     func()

	mu       sync.Mutex
	parent   context.Context
	attempts map[string]int
	inflight map[string]struct{}
	// exhausted is set once every device used up its attempts and cleared
	// by Reset. Polling does not start while it is set.
	exhausted  bool
	cancel     context.CancelFunc
	done       chan struct{}
	dialCtx    context.Context
	dialCancel context.CancelFunc
	dials      sync.WaitGroup
}

// New returns a stopped Scheduler.
func New(dialer Dialer, devices Devices, live Liveness, opts ...Opt) *Scheduler {
	s := &Scheduler{
		logger:      zap.NewNop(),
		clock:       clockwork.NewRealClock(),
		interval:    12 * time.Second,
		maxAttempts: 3,
		dialer:      dialer,
		devices:     devices,
		live:        live,
		attempts:    map[string]int{},
		inflight:    map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins polling. It does nothing if polling is already running or
// every device used up its attempts since the last Reset.
func (s *Scheduler) Start(ctx context.Context) {
	s.start(ctx, true)
}

// Join begins polling on behalf of another instance of this device, without
// announcing it again.
func (s *Scheduler) Join(ctx context.Context) {
	s.start(ctx, false)
}

func (s *Scheduler) start(ctx context.Context, announce bool) {
	s.mu.Lock()
	if s.cancel != nil || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.exhausted {
		s.mu.Unlock()
		s.logger.Debug("attempts exhausted, polling waits for a reset")
		return
	}
	s.parent = ctx
	if s.dialCancel == nil || s.dialCtx.Err() != nil {
		if s.dialCancel != nil {
			s.dialCancel()
		}
		s.dialCtx, s.dialCancel = context.WithCancel(ctx)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	ticker := s.clock.NewTicker(s.interval)
	s.mu.Unlock()

	s.logger.Debug("polling started", zap.Duration("interval", s.interval), zap.Bool("announce", announce))
	go s.run(loopCtx, ticker, done)
	if announce && s.onStart != nil {
		s.onStart()
	}
}

func (s *Scheduler) run(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if s.tick() {
				continue
			}
			s.mu.Lock()
			if s.done == done {
				s.cancel()
				s.cancel = nil
				s.done = nil
			}
			s.mu.Unlock()
			return
		}
	}
}

// tick runs one polling round and reports whether polling should go on.
// Polling ends once no device can be dialed and no dial is outstanding.
func (s *Scheduler) tick() bool {
	targets := s.devices.ReconnectTargets()
	if len(targets) == 0 {
		s.logger.Debug("no devices to poll")
		return false
	}
	status := make(map[string]Status, len(targets))
	for _, peer := range targets {
		status[peer] = s.live.Status(peer)
	}

	var dial []string
	exhausted := true
	s.mu.Lock()
	for _, peer := range targets {
		switch status[peer] {
		case Connected:
			delete(s.attempts, peer)
			exhausted = false
			continue
		case Connecting:
			exhausted = false
			continue
		}
		if _, ok := s.inflight[peer]; ok {
			exhausted = false
			continue
		}
		n := s.attempts[peer]
		if n >= s.maxAttempts {
			continue
		}
		exhausted = false
		s.attempts[peer] = n + 1
		s.inflight[peer] = struct{}{}
		dial = append(dial, peer)
	}
	signal := exhausted && !s.exhausted
	if exhausted {
		s.exhausted = true
	}
	ctx := s.dialCtx
	s.mu.Unlock()

	if exhausted {
		if signal {
			s.logger.Info("all reconnect attempts failed", zap.Int("devices", len(targets)))
			if s.onExhausted != nil {
				s.onExhausted()
			}
		}
		return false
	}
	for _, peer := range dial {
		s.dials.Add(1)
		go s.dial(ctx, peer)
	}
	return true
}

func (s *Scheduler) dial(ctx context.Context, peer string) {
	defer s.dials.Done()
	err := s.dialer.Connect(ctx, peer)
	s.mu.Lock()
	delete(s.inflight, peer)
	attempt := s.attempts[peer]
	s.mu.Unlock()
	if err != nil {
		attemptFailed.Inc()
		s.logger.Debug("reconnect failed", log.ZPeer(peer), zap.Int("attempt", attempt), zap.Error(err))
		return
	}
	attemptOK.Inc()
}

// Reset clears the attempt counter of peerID, or of every device when
// peerID is empty, and restarts polling if it was started before.
func (s *Scheduler) Reset(peerID string) {
	s.mu.Lock()
	if peerID == "" {
		clear(s.attempts)
	} else {
		delete(s.attempts, peerID)
	}
	s.exhausted = false
	parent := s.parent
	s.mu.Unlock()
	if parent != nil {
		s.start(parent, true)
	}
}

// Attempts returns the polling attempts made for peerID since its last reset.
func (s *Scheduler) Attempts(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[peerID]
}

// Running reports whether polling is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Dialing reports whether a dial to peerID started by the scheduler is
// outstanding.
func (s *Scheduler) Dialing(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[peerID]
	return ok
}

// Exhausted reports whether every device used up its attempts since the
// last Reset.
func (s *Scheduler) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// Stop ends polling, cancels outstanding dials and waits for them. Reset
// won't restart polling until Start is called again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	dialCancel := s.dialCancel
	s.cancel = nil
	s.done = nil
	s.parent = nil
	s.dialCtx = nil
	s.dialCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	if dialCancel != nil {
		dialCancel()
	}
	s.dials.Wait()
}
