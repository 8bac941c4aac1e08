// Package levelstore is a store.Backend on top of goleveldb.
package levelstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

const (
	snapshotKey = "snapshot"
	versionKey  = "snapshot-version"
	localPrefix = "local/"

	formatVersion = "1"
)

// Backend stores the snapshot and local records in one leveldb database.
type Backend struct {
	path   string
	db     *leveldb.DB
	logger *zap.Logger
}

var _ store.Backend = (*Backend)(nil)

// Open opens or creates the database at path, recovering it if corrupted.
func Open(path string, logger *zap.Logger) (*Backend, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 16,
	})
	var corrupted *lerrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		logger.Warn("recovering corrupted database", zap.String("path", path), zap.Error(err))
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	logger.Debug("opened leveldb", zap.String("path", path))
	return &Backend{path: path, db: db, logger: logger}, nil
}

// OpenInMemory returns a Backend over volatile storage.
func OpenInMemory(logger *zap.Logger) (*Backend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb in memory: %w", err)
	}
	return &Backend{db: db, logger: logger}, nil
}

// Path returns the path to the database directory.
func (b *Backend) Path() string {
	return b.path
}

func (b *Backend) Get(key string) ([]byte, error) {
	v, err := b.db.Get([]byte(localPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

func (b *Backend) Put(key string, value []byte) error {
	if err := b.db.Put([]byte(localPrefix+key), value, nil); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Delete(key string) error {
	if err := b.db.Delete([]byte(localPrefix+key), nil); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *Backend) LoadSnapshot() (*state.Snapshot, error) {
	data, err := b.db.Get([]byte(snapshotKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	version, err := b.db.Get([]byte(versionKey), nil)
	if err != nil {
		return nil, fmt.Errorf("get snapshot version: %w", err)
	}
	if string(version) != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot format %q", version)
	}
	return state.Unmarshal(data)
}

// SaveSnapshot writes the snapshot and its format version in one batch.
func (b *Backend) SaveSnapshot(s *state.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(snapshotKey), data)
	batch.Put([]byte(versionKey), []byte(formatVersion))
	if err := b.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close leveldb: %w", err)
	}
	return nil
}
