package syncer

import (
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/protocol"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

// SetHighlight colors the verse ref.
func (m *Manager) SetHighlight(ref, color string) error {
	return m.apply(state.Change{Field: state.FieldHighlight, Key: ref, Value: color})
}

// DeleteHighlight removes the highlight on ref, leaving a tombstone.
func (m *Manager) DeleteHighlight(ref string) error {
	return m.apply(state.Change{Field: state.FieldHighlight, Key: ref, Delete: true})
}

// SetNotes replaces the note.
func (m *Manager) SetNotes(text string) error {
	return m.apply(state.Change{Field: state.FieldNotes, Value: text})
}

// SetSetting stores a setting. Device-local keys are stored but never sent.
func (m *Manager) SetSetting(key string, value any) error {
	return m.apply(state.Change{Field: state.FieldSetting, Key: key, Value: value})
}

func (m *Manager) apply(c state.Change) error {
	ts, err := m.store.ApplyLocalChange(c)
	if err != nil {
		return err
	}
	m.logger.Debug("local change",
		zap.String("field", string(c.Field)),
		zap.String("key", c.Key),
		zap.Bool("delete", c.Delete),
		zap.Int64("ts", int64(ts)),
	)
	if m.AutoSync() {
		m.scheduleSync()
	}
	return nil
}

// scheduleSync pushes the state after AutoSyncDelay without further edits.
func (m *Manager) scheduleSync() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.destroyed {
		return
	}
	if m.autoSyncTimer != nil {
		m.autoSyncTimer.Stop()
	}
	m.autoSyncTimer = m.clock.AfterFunc(m.cfg.AutoSyncDelay, func() {
		if err := m.SyncNow(); err != nil && !errors.Is(err, ErrDestroyed) {
			m.logger.Warn("auto-sync", zap.Error(err))
		}
	})
}

// SyncNow sends the full state to every authenticated peer.
func (m *Manager) SyncNow() error {
	if _, err := m.running(); err != nil {
		return err
	}
	data, err := m.wireSnapshot()
	if err != nil {
		return err
	}
	peers := m.authenticated()
	for _, cn := range peers {
		m.send(cn, data)
	}
	m.logger.Debug("state pushed", zap.Int("peers", len(peers)))
	return nil
}

// RequestSync asks peerID for its state.
func (m *Manager) RequestSync(peerID string) error {
	if _, err := m.running(); err != nil {
		return err
	}
	m.mu.Lock()
	cn := m.connections[peerID]
	ok := cn != nil && cn.authenticated
	m.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	m.logger.Debug("sync requested", log.ZPeer(peerID))
	m.send(cn, protocol.NewSyncRequest())
	return nil
}

func (m *Manager) authenticated() []*connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	var conns []*connection
	for _, cn := range m.connections {
		if cn.authenticated {
			conns = append(conns, cn)
		}
	}
	return conns
}

// AutoSync reports whether local changes are pushed automatically.
func (m *Manager) AutoSync() bool {
	b, err := m.store.Get(state.KeyAutoSync)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false
	case err != nil:
		m.logger.Warn("load auto-sync flag", zap.Error(err))
		return false
	}
	on, err := strconv.ParseBool(string(b))
	return err == nil && on
}

// SetAutoSync turns automatic pushes on or off. Turning them off cancels a
// pending push.
func (m *Manager) SetAutoSync(on bool) error {
	if err := m.store.Put(state.KeyAutoSync, []byte(strconv.FormatBool(on))); err != nil {
		return err
	}
	if !on {
		m.mu.Lock()
		if m.autoSyncTimer != nil {
			m.autoSyncTimer.Stop()
		}
		m.mu.Unlock()
	}
	m.logger.Info("auto-sync changed", zap.Bool("enabled", on))
	return nil
}
