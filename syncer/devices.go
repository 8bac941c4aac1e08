package syncer

import (
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/registry"
)

// Devices lists the paired devices.
func (m *Manager) Devices() []registry.RemoteDevice {
	return m.registry.List()
}

// RenameDevice sets the custom name of the device with id or pairing code
// key. An empty name restores the announced one.
func (m *Manager) RenameDevice(key, name string) (registry.RemoteDevice, error) {
	dev, err := m.registry.Rename(key, name)
	if err != nil {
		return dev, err
	}
	m.events.EmitDeviceUpdated(dev)
	return dev, nil
}

// RemoveDevice forgets the device with id or pairing code key and closes its
// connection. Removing the last device also stops polling, closes the
// endpoint and drops the pairing code.
func (m *Manager) RemoveDevice(key string) error {
	dev, err := m.registry.Remove(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	cn := m.connections[dev.PeerID]
	m.mu.Unlock()
	if cn != nil {
		cn.conn.Close()
	}
	m.logger.Info("device removed", zap.Object("device", dev))
	m.events.EmitDeviceRemoved(dev)

	if m.registry.Len() > 0 {
		return nil
	}
	m.scheduler.Stop()
	if err := m.transport.Close(); err != nil {
		m.logger.Debug("close endpoint", zap.Error(err))
	}
	return m.identity.ClearPeerID()
}

// ResetReconnect clears the reconnect attempts of peerID, or of every device
// when peerID is empty, and resumes polling.
func (m *Manager) ResetReconnect(peerID string) {
	m.scheduler.Reset(peerID)
}
