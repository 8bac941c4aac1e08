package levelstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

func TestReplicaSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	logger := logtest.New(t)

	backend, err := Open(path, logger)
	require.NoError(t, err)
	r, err := store.NewReplica(backend)
	require.NoError(t, err)
	_, err = r.ApplyLocalChange(state.Change{Field: state.FieldHighlight, Key: "John 3:16", Value: "yellow"})
	require.NoError(t, err)
	_, err = r.ApplyLocalChange(state.Change{Field: state.FieldSetting, Key: "fontScale", Value: 1.5})
	require.NoError(t, err)
	require.NoError(t, r.Put(state.KeyDeviceID, []byte("device-1")))
	require.NoError(t, r.Close())

	backend, err = Open(path, logger)
	require.NoError(t, err)
	r, err = store.NewReplica(backend)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close()) })

	s, err := r.Snapshot()
	require.NoError(t, err)
	require.Equal(t, "yellow", s.Highlights["John 3:16"])
	require.NotZero(t, s.HighlightMeta("John 3:16").Ts)
	require.Equal(t, json.Number("1.5"), s.Settings["fontScale"])

	v, err := r.Get(state.KeyDeviceID)
	require.NoError(t, err)
	require.Equal(t, []byte("device-1"), v)
}

func TestLocalKeysDoNotCollideWithSnapshot(t *testing.T) {
	backend, err := OpenInMemory(logtest.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	_, err = backend.LoadSnapshot()
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, backend.Put(snapshotKey, []byte("not a snapshot")))
	_, err = backend.LoadSnapshot()
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, backend.SaveSnapshot(state.New()))
	s, err := backend.LoadSnapshot()
	require.NoError(t, err)
	require.Empty(t, s.Highlights)

	_, err = backend.Get("missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
