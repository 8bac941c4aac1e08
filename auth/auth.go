// Package auth runs the per-connection challenge/response exchange that
// gates all other traffic.
//
// The response is an unkeyed digest of the challenge nonce and the
// responder's device id. It shows that the peer knows a device id and speaks
// the protocol; it does not prove possession of a secret.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/jd-code76/provinent-scripture-study-sub000/hash"
	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/protocol"
)

const nonceSize = 32

// ErrRejected is returned when a peer fails the challenge.
var ErrRejected = errors.New("auth: rejected")

// State of a connection in the exchange.
type State int

const (
	Unauthenticated State = iota
	ChallengeSent
	Authenticated
	Rejected
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case ChallengeSent:
		return "challenge-sent"
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Digest computes the expected response to nonce from deviceID.
func Digest(nonce, deviceID string) string {
	sum := hash.Sum([]byte(nonce), []byte(deviceID))
	return hex.EncodeToString(sum[:])
}

// Opt configures an Authenticator.
type Opt func(*Authenticator)

// WithRand sets the nonce source.
func WithRand(r io.Reader) Opt {
	return func(a *Authenticator) {
		a.rand = r
	}
}

// WithTimeout sets how long a challenge stays answerable.
func WithTimeout(d time.Duration) Opt {
	return func(a *Authenticator) {
		a.timeout = d
	}
}

// WithOnExpired is called with the peer whose challenge went unanswered.
func WithOnExpired(fn func(peerID string)) Opt {
	return func(a *Authenticator) {
		a.onExpired = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// Authenticator tracks the exchange for every connection of one device.
type Authenticator struct {
	logger    *zap.Logger
	deviceID  string
	rand      io.Reader
	timeout   time.Duration
	onExpired func(peerID string)

	mu      sync.Mutex
	states  map[string]State
	pending *ttlcache.Cache[string, string]
	stop    sync.Once
}

// New returns an Authenticator answering challenges as deviceID.
func New(deviceID string, opts ...Opt) *Authenticator {
	a := &Authenticator{
		logger:   zap.NewNop(),
		deviceID: deviceID,
		rand:     rand.Reader,
		timeout:  30 * time.Second,
		states:   map[string]State{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.pending = ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](a.timeout),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	a.pending.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, string]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		peer := item.Key()
		a.mu.Lock()
		expired := a.states[peer] == ChallengeSent
		if expired {
			a.states[peer] = Rejected
		}
		a.mu.Unlock()
		if expired {
			a.logger.Debug("challenge expired", log.ZPeer(peer))
			if a.onExpired != nil {
				a.onExpired(peer)
			}
		}
	})
	go a.pending.Start()
	return a
}

// DeviceID returns the id this Authenticator answers with.
func (a *Authenticator) DeviceID() string {
	return a.deviceID
}

// Begin issues a fresh challenge to peerID.
func (a *Authenticator) Begin(peerID string) (*protocol.Challenge, error) {
	buf := make([]byte, nonceSize)
	if _, err := io.ReadFull(a.rand, buf); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	nonce := hex.EncodeToString(buf)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending.Set(peerID, nonce, ttlcache.DefaultTTL)
	a.states[peerID] = ChallengeSent
	return protocol.NewChallenge(nonce), nil
}

// Respond answers a challenge received from a peer.
func (a *Authenticator) Respond(ch *protocol.Challenge) *protocol.ChallengeResponse {
	return protocol.NewChallengeResponse(Digest(ch.Nonce, a.deviceID), a.deviceID)
}

// Verify checks resp against the challenge issued to peerID. On success the
// peer is Authenticated; otherwise it is Rejected and ErrRejected returned.
func (a *Authenticator) Verify(peerID string, resp *protocol.ChallengeResponse) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	item := a.pending.Get(peerID)
	if item == nil || a.states[peerID] != ChallengeSent {
		a.states[peerID] = Rejected
		return fmt.Errorf("%w: no outstanding challenge for %s", ErrRejected, peerID)
	}
	a.pending.Delete(peerID)
	expected := Digest(item.Value(), resp.DeviceID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(resp.Response)) != 1 {
		a.states[peerID] = Rejected
		return fmt.Errorf("%w: response mismatch from %s", ErrRejected, peerID)
	}
	a.states[peerID] = Authenticated
	return nil
}

// State returns the exchange state of peerID.
func (a *Authenticator) State(peerID string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[peerID]
}

// Forget drops everything known about peerID.
func (a *Authenticator) Forget(peerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, peerID)
	a.pending.Delete(peerID)
}

// Close stops the expiry loop.
func (a *Authenticator) Close() {
	a.stop.Do(a.pending.Stop)
}
