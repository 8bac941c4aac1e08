package identity

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

func seeded(seed byte) *rand.ChaCha8 {
	return rand.NewChaCha8([32]byte{seed})
}

func TestDeviceIDIsStable(t *testing.T) {
	kv := store.NewMemory()
	id, err := New(kv, WithRand(seeded(1))).DeviceID()
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	// a fresh instance with a different random source reads the stored id
	again, err := New(kv, WithRand(seeded(2))).DeviceID()
	require.NoError(t, err)
	require.Equal(t, id, again)

	stored, err := kv.Get(state.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, id, string(stored))
}

func TestGenerateCode(t *testing.T) {
	rng := seeded(3)
	seen := map[string]struct{}{}
	for range 100 {
		code, err := GenerateCode(rng, DefaultCodeLength)
		require.NoError(t, err)
		require.Len(t, code, DefaultCodeLength)
		require.True(t, ValidCode(code), code)
		seen[code] = struct{}{}
	}
	require.Len(t, seen, 100)
}

func TestGenerateCodeSkipsBiasedBytes(t *testing.T) {
	// 252..255 are discarded, 0 maps to 'A', 35 to '9' and 61 to 'Z'
	src := bytes.NewReader([]byte{255, 0, 253, 35, 36, 252, 61, 1})
	code, err := GenerateCode(src, 4)
	require.NoError(t, err)
	require.Equal(t, "A9AZ", code)
}

func TestGenerateCodeShortRead(t *testing.T) {
	_, err := GenerateCode(bytes.NewReader([]byte{1, 2}), 8)
	require.Error(t, err)
}

func TestValidCode(t *testing.T) {
	require.True(t, ValidCode("K7Q2M9XA"))
	require.False(t, ValidCode("k7q2m9xa"))
	require.False(t, ValidCode("K7Q"))
	require.False(t, ValidCode("K7Q2-M9XA"))
	require.False(t, ValidCode(""))
}

func TestPeerID(t *testing.T) {
	kv := store.NewMemory()
	id := New(kv, WithRand(seeded(4)))

	code, err := id.PeerID()
	require.NoError(t, err)
	require.Empty(t, code)

	current, err := id.CurrentCode()
	require.NoError(t, err)
	require.True(t, ValidCode(current))
	again, err := id.CurrentCode()
	require.NoError(t, err)
	require.Equal(t, current, again)

	next, err := id.RegenerateCode()
	require.NoError(t, err)
	require.NotEqual(t, current, next)
	stored, err := id.PeerID()
	require.NoError(t, err)
	require.Equal(t, next, stored)

	require.ErrorIs(t, id.SetPeerID("bad code"), ErrInvalidCode)
	require.NoError(t, id.ClearPeerID())
	code, err = id.PeerID()
	require.NoError(t, err)
	require.Empty(t, code)
}

func TestCodeLength(t *testing.T) {
	id := New(store.NewMemory(), WithRand(seeded(5)), WithCodeLength(12))
	code, err := id.NewCode()
	require.NoError(t, err)
	require.Len(t, code, 12)
}

type failingKV struct{ store.KV }

func (failingKV) Get(string) ([]byte, error) { return nil, errors.New("disk on fire") }

func TestDeviceIDLoadError(t *testing.T) {
	_, err := New(failingKV{store.NewMemory()}).DeviceID()
	require.ErrorContains(t, err, "disk on fire")
}
