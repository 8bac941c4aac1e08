package auth

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
	"github.com/jd-code76/provinent-scripture-study-sub000/protocol"
)

func newAuth(t *testing.T, deviceID string, opts ...Opt) *Authenticator {
	a := New(deviceID, append([]Opt{WithLogger(logtest.New(t))}, opts...)...)
	t.Cleanup(a.Close)
	return a
}

func TestMutualAuthentication(t *testing.T) {
	alice := newAuth(t, "device-alice")
	bob := newAuth(t, "device-bob")

	// both sides challenge each other as soon as the channel opens
	toBob, err := alice.Begin("BOBCODE1")
	require.NoError(t, err)
	toAlice, err := bob.Begin("ALICECD1")
	require.NoError(t, err)
	require.Equal(t, ChallengeSent, alice.State("BOBCODE1"))
	require.NotEqual(t, toBob.Nonce, toAlice.Nonce)

	require.NoError(t, alice.Verify("BOBCODE1", bob.Respond(toBob)))
	require.NoError(t, bob.Verify("ALICECD1", alice.Respond(toAlice)))
	require.Equal(t, Authenticated, alice.State("BOBCODE1"))
	require.Equal(t, Authenticated, bob.State("ALICECD1"))
}

func TestDigest(t *testing.T) {
	require.Equal(t, Digest("n", "d"), Digest("n", "d"))
	require.NotEqual(t, Digest("n", "d"), Digest("n", "e"))
	require.Len(t, Digest("n", "d"), 64)
}

func TestRejectMismatch(t *testing.T) {
	alice := newAuth(t, "device-alice")
	ch, err := alice.Begin("PEER0001")
	require.NoError(t, err)

	forged := protocol.NewChallengeResponse(Digest(ch.Nonce, "device-bob"), "device-mallory")
	require.ErrorIs(t, alice.Verify("PEER0001", forged), ErrRejected)
	require.Equal(t, Rejected, alice.State("PEER0001"))

	// the nonce is spent, a correct late answer is rejected as well
	late := protocol.NewChallengeResponse(Digest(ch.Nonce, "device-bob"), "device-bob")
	require.ErrorIs(t, alice.Verify("PEER0001", late), ErrRejected)
}

func TestRejectUnsolicited(t *testing.T) {
	alice := newAuth(t, "device-alice")
	resp := protocol.NewChallengeResponse("00", "device-bob")
	require.ErrorIs(t, alice.Verify("PEER0001", resp), ErrRejected)
	require.Equal(t, Rejected, alice.State("PEER0001"))
}

func TestForget(t *testing.T) {
	alice := newAuth(t, "device-alice")
	_, err := alice.Begin("PEER0001")
	require.NoError(t, err)
	alice.Forget("PEER0001")
	require.Equal(t, Unauthenticated, alice.State("PEER0001"))
}

func TestChallengeExpires(t *testing.T) {
	var expired atomic.Value
	alice := newAuth(t, "device-alice",
		WithTimeout(50*time.Millisecond),
		WithOnExpired(func(peer string) { expired.Store(peer) }),
	)
	bob := newAuth(t, "device-bob")
	ch, err := alice.Begin("PEER0001")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return expired.Load() == "PEER0001"
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, Rejected, alice.State("PEER0001"))
	require.ErrorIs(t, alice.Verify("PEER0001", bob.Respond(ch)), ErrRejected)
}
