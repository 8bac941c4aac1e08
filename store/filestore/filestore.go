// Package filestore is a store.Backend that keeps the snapshot and the
// local records as JSON files in a data directory owned by one process.
package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/jonboulle/clockwork"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

const (
	lockFile     = "LOCK"
	snapshotFile = "snapshot.json"
	localFile    = "local.json"
)

// ErrLocked is returned when another process holds the data directory.
var ErrLocked = errors.New("filestore: data directory is locked by another process")

// Opt configures a Backend.
type Opt func(*Backend)

// WithFlushDelay batches snapshot writes arriving within d. Zero writes
// every snapshot immediately.
func WithFlushDelay(d time.Duration) Opt {
	return func(b *Backend) {
		b.delay = d
	}
}

// WithClock sets the clock driving delayed flushes.
func WithClock(clock clockwork.Clock) Opt {
	return func(b *Backend) {
		b.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(b *Backend) {
		b.logger = logger
	}
}

// Backend implements store.Backend over files in dir.
type Backend struct {
	dir    string
	logger *zap.Logger
	clock  clockwork.Clock
	delay  time.Duration
	lock   *flock.Flock

	mu      sync.Mutex
	local   map[string]string
	pending *state.Snapshot
	timer   clockwork.Timer
}

var _ store.Backend = (*Backend)(nil)

// Open locks dir and loads the local records kept in it.
func Open(dir string, opts ...Opt) (*Backend, error) {
	b := &Backend{
		dir:    dir,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		local:  map[string]string{},
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	b.lock = flock.New(filepath.Join(dir, lockFile))
	locked, err := b.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	data, err := os.ReadFile(filepath.Join(dir, localFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		b.lock.Unlock()
		return nil, fmt.Errorf("read local records: %w", err)
	default:
		if err := json.Unmarshal(data, &b.local); err != nil {
			b.lock.Unlock()
			return nil, fmt.Errorf("decode local records: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) Get(key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.local[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return []byte(v), nil
}

func (b *Backend) Put(key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local[key] = string(value)
	return b.writeLocal()
}

func (b *Backend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.local[key]; !ok {
		return nil
	}
	delete(b.local, key)
	return b.writeLocal()
}

func (b *Backend) writeLocal() error {
	data, err := json.MarshalIndent(b.local, "", "  ")
	if err != nil {
		return fmt.Errorf("encode local records: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(b.dir, localFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write local records: %w", err)
	}
	return nil
}

func (b *Backend) LoadSnapshot() (*state.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(b.dir, snapshotFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return state.Unmarshal(data)
}

// SaveSnapshot writes s, or schedules the write when a flush delay is set.
// Only the latest snapshot of a burst reaches the disk.
func (b *Backend) SaveSnapshot(s *state.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.delay <= 0 {
		return b.writeSnapshot(s)
	}
	b.pending = s.Clone()
	if b.timer == nil {
		b.timer = b.clock.AfterFunc(b.delay, b.flushPending)
	}
	return nil
}

func (b *Backend) flushPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer = nil
	if b.pending == nil {
		return
	}
	if err := b.writeSnapshot(b.pending); err != nil {
		b.logger.Error("failed to flush snapshot", zap.String("dir", b.dir), zap.Error(err))
		return
	}
	b.pending = nil
}

func (b *Backend) writeSnapshot(s *state.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(b.dir, snapshotFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	b.logger.Debug("snapshot written", zap.Int("bytes", len(data)))
	return nil
}

// Close flushes a pending snapshot and releases the directory lock.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	var err error
	if b.pending != nil {
		err = b.writeSnapshot(b.pending)
		b.pending = nil
	}
	b.mu.Unlock()
	if uerr := b.lock.Unlock(); uerr != nil && err == nil {
		err = fmt.Errorf("unlock data dir: %w", uerr)
	}
	return err
}
