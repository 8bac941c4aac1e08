package syncer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/protocol"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport"
)

var errChallengeExpired = errors.New("challenge expired")

// connection is one data channel to a remote peer. Fields other than conn,
// peerID, key, outbound and initiator are guarded by Manager.mu.
type connection struct {
	conn      transport.Conn
	peerID    string
	key       string
	outbound  bool
	initiator string

	authenticated bool
	deviceID      string
}

// supersedes reports whether cn replaces old when both connect the same
// peer. Two channels opened from the same side resolve to the newer one.
// Crossed dials resolve to the channel opened by the lower pairing code,
// which both sides compute alike. A losing inbound channel may mean the
// peer lost its side of old, so attach then rechecks old with a sync request.
func (cn *connection) supersedes(old *connection) bool {
	if old.outbound == cn.outbound {
		return true
	}
	return cn.initiator < old.initiator
}

func (m *Manager) accept(conn transport.Conn) {
	m.attach(conn, false)
}

func (m *Manager) attach(conn transport.Conn, outbound bool) {
	peer := conn.RemoteID()
	cn := &connection{
		conn:      conn,
		peerID:    peer,
		key:       fmt.Sprintf("%s#%d", peer, m.seq.Add(1)),
		outbound:  outbound,
		initiator: peer,
	}
	if outbound {
		cn.initiator = m.transport.ID()
	}
	logger := m.logger.With(log.ZPeer(peer), zap.Bool("outbound", outbound))

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		conn.SetHandlers(transport.Handlers{})
		conn.Close()
		return
	}
	m.conns.Add(1)
	old := m.connections[peer]
	keep := old == nil || cn.supersedes(old)
	recheck := !keep && !outbound && old.authenticated
	if keep {
		m.connections[peer] = cn
		if old != nil && old.authenticated {
			liveConnections.Dec()
		}
	}
	m.mu.Unlock()

	conn.SetHandlers(transport.Handlers{
		OnOpen:  func() { m.onOpen(cn) },
		OnData:  func(b []byte) { m.onData(cn, b) },
		OnClose: func() { m.onClose(cn) },
		OnError: func(err error) { m.onError(cn, err) },
	})
	switch {
	case !keep:
		logger.Debug("duplicate connection dropped", zap.Bool("recheck", recheck))
		conn.Close()
		if recheck {
			m.send(old, protocol.NewSyncRequest())
		}
	case old != nil:
		logger.Debug("connection replaced", zap.String("old", old.key))
		old.conn.Close()
	default:
		logger.Debug("connection attached", zap.String("key", cn.key))
	}
}

// current reports whether cn is the live connection to its peer, and
// whether it is authenticated.
func (m *Manager) current(cn *connection) (bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connections[cn.peerID] == cn, cn.authenticated
}

func (m *Manager) send(cn *connection, msg protocol.Message) {
	b, err := protocol.Encode(msg)
	if err != nil {
		m.logger.Error("encode message", zap.String("type", msg.Type()), zap.Error(err))
		return
	}
	if err := cn.conn.Send(b); err != nil {
		m.logger.Debug("send failed, closing connection",
			log.ZPeer(cn.peerID),
			zap.String("type", msg.Type()),
			zap.Error(err),
		)
		cn.conn.Close()
	}
}

func (m *Manager) onOpen(cn *connection) {
	if ok, _ := m.current(cn); !ok {
		return
	}
	ch, err := m.auth.Begin(cn.peerID)
	if err != nil {
		m.logger.Error("begin challenge", log.ZPeer(cn.peerID), zap.Error(err))
		cn.conn.Close()
		return
	}
	m.send(cn, ch)
}

func (m *Manager) onData(cn *connection, b []byte) {
	if !m.limiter.Allow(cn.key) {
		dropRateLimited.Inc()
		m.logger.Warn("message rate exceeded, closing connection",
			log.ZPeer(cn.peerID),
			zap.Int("limit", m.cfg.RateLimitMessages),
			zap.Duration("window", m.cfg.RateLimitWindow),
		)
		cn.conn.Close()
		return
	}
	msg, err := protocol.Decode(b, m.cfg.MaxMessageSize)
	if err != nil {
		dropMalformed.Inc()
		m.logger.Debug("malformed message dropped", log.ZPeer(cn.peerID), zap.Error(err))
		return
	}
	ok, authenticated := m.current(cn)
	if !ok {
		return
	}
	messagesReceived.WithLabelValues(msg.Type()).Inc()

	if !authenticated {
		switch msg.(type) {
		case *protocol.Challenge, *protocol.ChallengeResponse:
		default:
			dropUnauthenticated.Inc()
			m.logger.Warn("message before authentication dropped",
				log.ZPeer(cn.peerID),
				zap.String("type", msg.Type()),
			)
			return
		}
	} else if v := msg.ProtocolVersion(); v != protocol.Version {
		dropVersion.Inc()
		m.logger.Warn("protocol version mismatch, closing connection",
			log.ZPeer(cn.peerID),
			zap.String("local", protocol.Version),
			zap.String("remote", v),
		)
		m.events.EmitVersionMismatch(cn.peerID, protocol.Version, v)
		cn.conn.Close()
		return
	}

	switch msg := msg.(type) {
	case *protocol.Challenge:
		m.send(cn, m.auth.Respond(msg))
	case *protocol.ChallengeResponse:
		m.onChallengeResponse(cn, msg)
	case *protocol.Handshake:
		m.onHandshake(cn, msg)
	case *protocol.SyncRequest:
		m.onSyncRequest(cn)
	case *protocol.SyncData:
		m.onSyncData(cn, msg)
	}
}

func (m *Manager) onError(cn *connection, err error) {
	if ok, _ := m.current(cn); !ok {
		return
	}
	m.transportError(cn.peerID, err)
}

func (m *Manager) onClose(cn *connection) {
	defer m.conns.Done()
	m.limiter.Forget(cn.key)
	m.mu.Lock()
	ok := m.connections[cn.peerID] == cn
	if ok {
		delete(m.connections, cn.peerID)
	}
	authenticated := cn.authenticated
	destroyed := m.destroyed
	ctx := m.ctx
	m.mu.Unlock()
	if !ok {
		return
	}

	m.auth.Forget(cn.peerID)
	if authenticated {
		liveConnections.Dec()
	}
	m.logger.Info("peer disconnected", log.ZPeer(cn.peerID), zap.Bool("authenticated", authenticated))
	m.events.EmitPeerDisconnected(cn.peerID)
	if !destroyed && m.registry.Len() > 0 {
		m.scheduler.Start(ctx)
	}
}

func (m *Manager) onChallengeExpired(peerID string) {
	m.mu.Lock()
	cn := m.connections[peerID]
	expired := cn != nil && !cn.authenticated
	m.mu.Unlock()
	if !expired {
		return
	}
	authExpired.Inc()
	m.logger.Warn("peer did not answer challenge", log.ZPeer(peerID))
	m.events.EmitAuthFailed(peerID, errChallengeExpired)
	cn.conn.Close()
}
