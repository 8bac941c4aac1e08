// Package store keeps the local replica of the replicated state and the
// device-local records that never leave this device.
package store

import (
	"errors"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

// ErrNotFound is returned by KV.Get for missing keys.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("store: closed")

// KV holds device-local records such as the device id, the pairing code and
// the list of known remote devices.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store is the persistence collaborator of the sync engine.
type Store interface {
	KV
	// Snapshot returns a deep copy of the current replicated state.
	Snapshot() (*state.Snapshot, error)
	// ApplyLocalChange updates a value together with its timestamp.
	ApplyLocalChange(c state.Change) (state.Timestamp, error)
	// Update runs fn on the live snapshot under the store lock and persists
	// the result when fn reports a change.
	Update(fn func(s *state.Snapshot) (bool, error)) error
	// Persist replaces the replicated state with s.
	Persist(s *state.Snapshot) error
	Close() error
}

// Backend is the durable layer below a Replica.
type Backend interface {
	KV
	// LoadSnapshot returns ErrNotFound when nothing was saved yet.
	LoadSnapshot() (*state.Snapshot, error)
	// SaveSnapshot may defer the write; it must not retain s.
	SaveSnapshot(s *state.Snapshot) error
	Close() error
}
