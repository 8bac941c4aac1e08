package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

func TestLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)

	_, err = Open(dir)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, b.Close())
	b, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, b.Close())
}

func TestLocalRecordsPersist(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, b.Put(state.KeyPeerID, []byte("K7Q2M9XA")))
	require.NoError(t, b.Put(state.KeyDeviceID, []byte("dev")))
	require.NoError(t, b.Delete(state.KeyDeviceID))
	require.NoError(t, b.Close())

	b, err = Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	v, err := b.Get(state.KeyPeerID)
	require.NoError(t, err)
	require.Equal(t, "K7Q2M9XA", string(v))
	_, err = b.Get(state.KeyDeviceID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelayedFlush(t *testing.T) {
	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	b, err := Open(dir, WithFlushDelay(time.Second), WithClock(clock), WithLogger(logtest.New(t)))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	first := state.New()
	first.Notes = "first"
	require.NoError(t, b.SaveSnapshot(first))
	second := state.New()
	second.Notes = "second"
	require.NoError(t, b.SaveSnapshot(second))

	_, err = b.LoadSnapshot()
	require.ErrorIs(t, err, store.ErrNotFound)

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		s, err := b.LoadSnapshot()
		return err == nil && s.Notes == "second"
	}, time.Second, 10*time.Millisecond)
}

func TestCloseFlushesPending(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(dir, WithFlushDelay(time.Hour))
	require.NoError(t, err)
	r, err := store.NewReplica(b)
	require.NoError(t, err)
	_, err = r.ApplyLocalChange(state.Change{Field: state.FieldHighlight, Key: "Ps 23:1", Value: "green"})
	require.NoError(t, err)
	require.NoError(t, r.Close())

	require.FileExists(t, filepath.Join(dir, snapshotFile))
	data, err := os.ReadFile(filepath.Join(dir, snapshotFile))
	require.NoError(t, err)
	s, err := state.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, "green", s.Highlights["Ps 23:1"])
}
