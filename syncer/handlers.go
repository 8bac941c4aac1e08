package syncer

import (
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/merge"
	"github.com/jd-code76/provinent-scripture-study-sub000/protocol"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

func (m *Manager) onChallengeResponse(cn *connection, resp *protocol.ChallengeResponse) {
	if err := m.auth.Verify(cn.peerID, resp); err != nil {
		authRejected.Inc()
		m.logger.Warn("authentication failed", log.ZPeer(cn.peerID), zap.Error(err))
		m.events.EmitAuthFailed(cn.peerID, err)
		cn.conn.Close()
		return
	}
	m.mu.Lock()
	if m.connections[cn.peerID] != cn || cn.authenticated {
		m.mu.Unlock()
		return
	}
	cn.authenticated = true
	cn.deviceID = resp.DeviceID
	deviceID := m.deviceID
	m.mu.Unlock()

	authOK.Inc()
	liveConnections.Inc()
	m.logger.Info("peer authenticated", log.ZPeer(cn.peerID), log.ZDevice(resp.DeviceID))
	if !m.AutoSync() {
		if err := m.SetAutoSync(true); err != nil {
			m.logger.Warn("enable auto-sync", zap.Error(err))
		}
	}
	m.events.EmitPeerConnected(cn.peerID)
	m.send(cn, protocol.NewHandshake(deviceID, m.deviceName))
	m.send(cn, protocol.NewSyncRequest())
}

func (m *Manager) onHandshake(cn *connection, hs *protocol.Handshake) {
	m.mu.Lock()
	expected := cn.deviceID
	m.mu.Unlock()
	if hs.DeviceID != expected {
		m.logger.Warn("handshake device does not match authenticated device",
			log.ZPeer(cn.peerID),
			log.ZDevice(hs.DeviceID),
			zap.String("authenticated", expected),
		)
		return
	}
	dev, added, err := m.registry.Upsert(hs.DeviceID, cn.peerID, hs.DeviceName, m.clock.Now())
	if err != nil {
		m.logger.Error("register device", log.ZDevice(hs.DeviceID), zap.Error(err))
		return
	}
	if added {
		m.logger.Info("device added", zap.Object("device", dev))
		m.events.EmitDeviceAdded(dev)
	} else {
		m.events.EmitDeviceUpdated(dev)
	}
	m.scheduler.Reset(cn.peerID)
}

func (m *Manager) onSyncRequest(cn *connection) {
	data, err := m.wireSnapshot()
	if err != nil {
		m.logger.Error("snapshot for sync request", log.ZPeer(cn.peerID), zap.Error(err))
		return
	}
	m.send(cn, data)
}

func (m *Manager) wireSnapshot() (*protocol.SyncData, error) {
	snap, err := m.store.Snapshot()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	deviceID := m.deviceID
	m.mu.Unlock()
	return protocol.NewSyncData(snap.ForWire(deviceID, state.FromTime(m.clock.Now()))), nil
}

// onSyncData starts a merge unless one from the same peer is still running.
// Merges run off the connection goroutine. Overlapping snapshots are
// dropped, not queued.
func (m *Manager) onSyncData(cn *connection, msg *protocol.SyncData) {
	if msg.Payload == nil {
		dropMalformed.Inc()
		return
	}
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	if _, busy := m.syncInProgress[cn.peerID]; busy {
		m.mu.Unlock()
		dropBusy.Inc()
		m.logger.Debug("sync already in progress, snapshot ignored", log.ZPeer(cn.peerID))
		return
	}
	m.syncInProgress[cn.peerID] = struct{}{}
	m.eg.Go(func() error {
		m.merge(cn.peerID, msg.Payload)
		m.mu.Lock()
		delete(m.syncInProgress, cn.peerID)
		m.mu.Unlock()
		m.events.EmitSyncComplete(cn.peerID)
		return nil
	})
	m.mu.Unlock()
}

func (m *Manager) merge(peerID string, incoming *state.Snapshot) {
	m.events.EmitSyncInProgress(peerID)
	start := m.clock.Now()
	var result merge.Result
	err := m.store.Update(func(s *state.Snapshot) (bool, error) {
		result = merge.Merge(s, incoming)
		return result.Changed, nil
	})
	mergeDuration.Observe(m.clock.Since(start).Seconds())
	if err != nil {
		mergeFailed.Inc()
		m.logger.Error("merge snapshot", log.ZPeer(peerID), zap.Error(err))
		return
	}
	if incoming.DeviceID != "" {
		if _, err := m.registry.Touch(incoming.DeviceID, peerID, m.clock.Now()); err != nil {
			m.logger.Warn("touch device", log.ZDevice(incoming.DeviceID), zap.Error(err))
		}
	}
	if !result.Changed {
		mergeUnchanged.Inc()
		m.logger.Debug("snapshot merged without changes", log.ZPeer(peerID))
		return
	}
	mergeChanged.Inc()
	m.logger.Info("snapshot merged", log.ZPeer(peerID), zap.Object("result", result))
	m.events.EmitSyncMerged(peerID, incoming.DeviceID, result)
}
