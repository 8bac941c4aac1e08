// Package ratelimit counts events per key over a sliding time window.
package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// DefaultCapacity bounds the number of tracked keys.
const DefaultCapacity = 1024

// Opt configures a Limiter.
type Opt func(*Limiter)

// WithClock sets the clock.
func WithClock(clock clockwork.Clock) Opt {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithCapacity sets how many keys are tracked before the least recently
// used one is evicted.
func WithCapacity(n int) Opt {
	return func(l *Limiter) {
		l.capacity = n
	}
}

// Limiter allows at most limit events per key within any trailing window.
type Limiter struct {
	limit    int
	window   time.Duration
	capacity int
	clock    clockwork.Clock

	mu      sync.Mutex
	windows *lru.Cache[string, *events]
}

// events holds at most limit+1 timestamps, oldest first. More are never
// needed to tell whether the limit was exceeded.
type events struct {
	times []time.Time
}

// New returns a Limiter. It panics if limit or window are not positive.
func New(limit int, window time.Duration, opts ...Opt) *Limiter {
	if limit <= 0 || window <= 0 {
		panic("ratelimit: limit and window must be positive")
	}
	l := &Limiter{
		limit:    limit,
		window:   window,
		capacity: DefaultCapacity,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(l)
	}
	cache, err := lru.New[string, *events](l.capacity)
	if err != nil {
		panic(err)
	}
	l.windows = cache
	return l
}

// Allow records an event for key and reports whether key is still within
// the limit, i.e. no more than limit events fell into the trailing window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	w, ok := l.windows.Get(key)
	if !ok {
		w = &events{times: make([]time.Time, 0, l.limit+1)}
		l.windows.Add(key, w)
	}
	w.expire(now.Add(-l.window))
	if len(w.times) == l.limit+1 {
		w.times = append(w.times[:0], w.times[1:]...)
	}
	w.times = append(w.times, now)
	return len(w.times) <= l.limit
}

// Count returns the number of events for key in the current window.
func (l *Limiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows.Peek(key)
	if !ok {
		return 0
	}
	w.expire(l.clock.Now().Add(-l.window))
	return len(w.times)
}

// Forget drops the history of key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows.Remove(key)
}

func (e *events) expire(cutoff time.Time) {
	i := 0
	for i < len(e.times) && !e.times[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.times = append(e.times[:0], e.times[i:]...)
	}
}
