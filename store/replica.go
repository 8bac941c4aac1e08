package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

// Opt configures a Replica.
type Opt func(*Replica)

// WithClock sets the clock used to stamp local changes.
func WithClock(clock clockwork.Clock) Opt {
	return func(r *Replica) {
		r.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(r *Replica) {
		r.logger = logger
	}
}

// Replica keeps the replicated snapshot in memory and writes every
// mutation through to a Backend.
type Replica struct {
	logger  *zap.Logger
	clock   clockwork.Clock
	backend Backend

	mu       sync.Mutex
	snapshot *state.Snapshot
	closed   bool
}

var _ Store = (*Replica)(nil)

// NewReplica loads the saved snapshot from backend, or starts empty.
func NewReplica(backend Backend, opts ...Opt) (*Replica, error) {
	r := &Replica{
		logger:  zap.NewNop(),
		clock:   clockwork.NewRealClock(),
		backend: backend,
	}
	for _, opt := range opts {
		opt(r)
	}
	s, err := backend.LoadSnapshot()
	switch {
	case errors.Is(err, ErrNotFound):
		s = state.New()
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	s.Normalize()
	r.snapshot = s
	r.logger.Debug("replica loaded", zap.Object("snapshot", s))
	return r, nil
}

// NewMemory returns a Replica that keeps everything in memory.
func NewMemory(opts ...Opt) *Replica {
	r, err := NewReplica(newMemoryBackend(), opts...)
	if err != nil {
		panic(err) // memory backend never fails to load
	}
	return r
}

func (r *Replica) Get(key string) ([]byte, error) {
	return r.backend.Get(key)
}

func (r *Replica) Put(key string, value []byte) error {
	return r.backend.Put(key, value)
}

func (r *Replica) Delete(key string) error {
	return r.backend.Delete(key)
}

func (r *Replica) Snapshot() (*state.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.snapshot.Clone(), nil
}

func (r *Replica) ApplyLocalChange(c state.Change) (state.Timestamp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	next := r.snapshot.Clone()
	ts, err := next.Apply(c, state.FromTime(r.clock.Now()))
	if err != nil {
		return 0, err
	}
	if err := r.backend.SaveSnapshot(next); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	r.snapshot = next
	return ts, nil
}

func (r *Replica) Update(fn func(s *state.Snapshot) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	next := r.snapshot.Clone()
	changed, err := fn(next)
	if err != nil || !changed {
		return err
	}
	if err := r.backend.SaveSnapshot(next); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	r.snapshot = next
	return nil
}

func (r *Replica) Persist(s *state.Snapshot) error {
	next := s.Clone()
	next.Normalize()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.backend.SaveSnapshot(next); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	r.snapshot = next
	return nil
}

// Close closes the backend. It is safe to call more than once.
func (r *Replica) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.backend.Close()
}
