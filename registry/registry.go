// Package registry keeps the list of remote devices this device has paired
// with, independent of whether they are currently connected.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

// ErrUnknownDevice is returned for ids the registry doesn't hold.
var ErrUnknownDevice = errors.New("registry: unknown device")

// RemoteDevice is a paired device. ID is the remote device id and never
// changes; PeerID is its current pairing code and may.
type RemoteDevice struct {
	ID              string    `json:"id"`
	PeerID          string    `json:"peerId"`
	Name            string    `json:"name"`
	CustomName      *string   `json:"customName"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastConnectedAt time.Time `json:"lastConnectedAt"`
}

// DisplayName prefers the user-assigned name.
func (d RemoteDevice) DisplayName() string {
	if d.CustomName != nil && *d.CustomName != "" {
		return *d.CustomName
	}
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (d RemoteDevice) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", d.ID)
	enc.AddString("peer", d.PeerID)
	enc.AddString("name", d.DisplayName())
	enc.AddTime("last_connected", d.LastConnectedAt)
	return nil
}

func (d RemoteDevice) clone() RemoteDevice {
	if d.CustomName != nil {
		name := *d.CustomName
		d.CustomName = &name
	}
	return d
}

// Opt configures a Registry.
type Opt func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Registry is the in-memory view of the persisted device list. Every
// mutation rewrites the full list.
type Registry struct {
	logger *zap.Logger
	kv     store.KV

	mu      sync.Mutex
	devices []RemoteDevice
}

// New loads the device list from kv.
func New(kv store.KV, opts ...Opt) (*Registry, error) {
	r := &Registry{logger: zap.NewNop(), kv: kv}
	for _, opt := range opts {
		opt(r)
	}
	data, err := kv.Get(state.KeyConnectedDevices)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("load devices: %w", err)
	}
	if err := json.Unmarshal(data, &r.devices); err != nil {
		return nil, fmt.Errorf("decode devices: %w", err)
	}
	r.devices = slices.DeleteFunc(r.devices, func(d RemoteDevice) bool { return d.ID == "" })
	r.sort(r.devices)
	return r, nil
}

func (r *Registry) sort(devices []RemoteDevice) {
	slices.SortStableFunc(devices, func(a, b RemoteDevice) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
}

func (r *Registry) index(id string) int {
	return slices.IndexFunc(r.devices, func(d RemoteDevice) bool { return d.ID == id })
}

func (r *Registry) commit(devices []RemoteDevice) error {
	data, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("encode devices: %w", err)
	}
	if err := r.kv.Put(state.KeyConnectedDevices, data); err != nil {
		return fmt.Errorf("persist devices: %w", err)
	}
	r.devices = devices
	return nil
}

func (r *Registry) copyDevices() []RemoteDevice {
	devices := make([]RemoteDevice, len(r.devices))
	for i, d := range r.devices {
		devices[i] = d.clone()
	}
	return devices
}

// Upsert records a successful handshake. A known device gets its pairing
// code, name and last connection time refreshed.
func (r *Registry) Upsert(id, peerID, name string, now time.Time) (RemoteDevice, bool, error) {
	if id == "" {
		return RemoteDevice{}, false, fmt.Errorf("%w: empty id", ErrUnknownDevice)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	devices := r.copyDevices()
	i := r.index(id)
	added := i < 0
	if added {
		devices = append(devices, RemoteDevice{
			ID:              id,
			PeerID:          peerID,
			Name:            name,
			ConnectedAt:     now,
			LastConnectedAt: now,
		})
		i = len(devices) - 1
	} else {
		if peerID != "" {
			devices[i].PeerID = peerID
		}
		if name != "" {
			devices[i].Name = name
		}
		devices[i].LastConnectedAt = now
	}
	if err := r.commit(devices); err != nil {
		return RemoteDevice{}, false, err
	}
	dev := r.devices[i].clone()
	if added {
		r.logger.Info("device added", zap.Object("device", dev))
	}
	return dev, added, nil
}

// Touch refreshes the pairing code and last connection time of a known
// device. It reports false for unknown ids.
func (r *Registry) Touch(id, peerID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return false, nil
	}
	devices := r.copyDevices()
	if peerID != "" {
		devices[i].PeerID = peerID
	}
	devices[i].LastConnectedAt = now
	if err := r.commit(devices); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the device with the given id.
func (r *Registry) Get(id string) (RemoteDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(id)
	if i < 0 {
		return RemoteDevice{}, false
	}
	return r.devices[i].clone(), true
}

// ByPeerID returns the device currently reachable under peerID.
func (r *Registry) ByPeerID(peerID string) (RemoteDevice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.devices, func(d RemoteDevice) bool { return d.PeerID == peerID })
	if i < 0 {
		return RemoteDevice{}, false
	}
	return r.devices[i].clone(), true
}

// Resolve looks key up as a pairing code first and as a device id second,
// since pairing codes change across sessions.
func (r *Registry) Resolve(key string) (RemoteDevice, bool) {
	if dev, ok := r.ByPeerID(key); ok {
		return dev, true
	}
	return r.Get(key)
}

// List returns all devices, oldest pairing first.
func (r *Registry) List() []RemoteDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyDevices()
}

// ReconnectTargets returns the pairing codes of all devices.
func (r *Registry) ReconnectTargets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	targets := make([]string, 0, len(r.devices))
	for _, d := range r.devices {
		if d.PeerID != "" {
			targets = append(targets, d.PeerID)
		}
	}
	return targets
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Remove deletes the device resolved from key.
func (r *Registry) Remove(key string) (RemoteDevice, error) {
	dev, ok := r.Resolve(key)
	if !ok {
		return RemoteDevice{}, fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	devices := slices.DeleteFunc(r.copyDevices(), func(d RemoteDevice) bool { return d.ID == dev.ID })
	if err := r.commit(devices); err != nil {
		return RemoteDevice{}, err
	}
	r.logger.Info("device removed", log.ZDevice(dev.ID))
	return dev, nil
}

// Rename sets the user-assigned name of a device. An empty name restores
// the name the device announced.
func (r *Registry) Rename(key, name string) (RemoteDevice, error) {
	dev, ok := r.Resolve(key)
	if !ok {
		return RemoteDevice{}, fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.index(dev.ID)
	if i < 0 {
		return RemoteDevice{}, fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	devices := r.copyDevices()
	if name == "" {
		devices[i].CustomName = nil
	} else {
		devices[i].CustomName = &name
	}
	if err := r.commit(devices); err != nil {
		return RemoteDevice{}, err
	}
	return r.devices[i].clone(), nil
}
