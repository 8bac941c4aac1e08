package events

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/metrics"
)

var dropped = metrics.NewCounter(
	"dropped_total",
	"events",
	"Events not delivered to a full subscriber",
	[]string{"type"},
)

// Observer consumes events one at a time.
type Observer func(Event)

type Opt func(*Bus)

func WithLogger(logger *zap.Logger) Opt {
	return func(b *Bus) {
		b.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(b *Bus) {
		b.clock = clock
	}
}

// Bus fans events out to subscribers without blocking the emitter.
type Bus struct {
	logger *zap.Logger
	clock  clockwork.Clock

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewBus(opts ...Opt) *Bus {
	b := &Bus{
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		subs:   map[chan Event]struct{}{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit stamps ev if it has no timestamp and delivers it to every subscriber
// with room in its buffer.
func (b *Bus) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.clock.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.logger.Debug("event", zap.String("type", string(ev.Type)), zap.String("peer", ev.PeerID))
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped.WithLabelValues(string(ev.Type)).Inc()
			b.logger.Warn("subscriber is full, dropping event", zap.String("type", string(ev.Type)))
		}
	}
}

// Subscribe returns a channel with the given buffer and a function that
// ends the subscription and closes the channel.
func (b *Bus) Subscribe(bufsize int) (<-chan Event, func()) {
	ch := make(chan Event, bufsize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Observe calls fn for every event on a dedicated goroutine until the
// returned function is called or the bus is closed.
func (b *Bus) Observe(bufsize int, fn Observer) func() {
	ch, cancel := b.Subscribe(bufsize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			fn(ev)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
