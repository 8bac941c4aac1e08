package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
)

var t0 = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, kv store.KV) *Registry {
	r, err := New(kv, WithLogger(logtest.New(t)))
	require.NoError(t, err)
	return r
}

func TestUpsert(t *testing.T) {
	kv := store.NewMemory()
	r := newRegistry(t, kv)

	dev, added, err := r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.NoError(t, err)
	require.True(t, added)
	require.Equal(t, t0, dev.ConnectedAt)
	require.Equal(t, "phone", dev.DisplayName())

	// the remote regenerated its code
	dev, added, err = r.Upsert("dev-b", "CCCCCCCC", "", t0.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, added)
	require.Equal(t, "CCCCCCCC", dev.PeerID)
	require.Equal(t, "phone", dev.Name)
	require.Equal(t, t0, dev.ConnectedAt)
	require.Equal(t, t0.Add(time.Hour), dev.LastConnectedAt)
	require.Equal(t, 1, r.Len())

	var persisted []RemoteDevice
	data, err := kv.Get(state.KeyConnectedDevices)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 1)
	require.Equal(t, "CCCCCCCC", persisted[0].PeerID)
}

func TestReload(t *testing.T) {
	kv := store.NewMemory()
	r := newRegistry(t, kv)
	_, _, err := r.Upsert("dev-c", "CCCCCCCC", "tablet", t0.Add(time.Minute))
	require.NoError(t, err)
	_, _, err = r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.NoError(t, err)
	_, err = r.Rename("dev-b", "Kitchen phone")
	require.NoError(t, err)

	reloaded := newRegistry(t, kv)
	list := reloaded.List()
	require.Len(t, list, 2)
	require.Equal(t, "dev-b", list[0].ID)
	require.Equal(t, "Kitchen phone", list[0].DisplayName())
	require.Equal(t, []string{"BBBBBBBB", "CCCCCCCC"}, reloaded.ReconnectTargets())
}

func TestResolveFallsBackToID(t *testing.T) {
	r := newRegistry(t, store.NewMemory())
	_, _, err := r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.NoError(t, err)

	dev, ok := r.Resolve("BBBBBBBB")
	require.True(t, ok)
	require.Equal(t, "dev-b", dev.ID)
	dev, ok = r.Resolve("dev-b")
	require.True(t, ok)
	require.Equal(t, "BBBBBBBB", dev.PeerID)
	_, ok = r.Resolve("ZZZZZZZZ")
	require.False(t, ok)
}

func TestTouch(t *testing.T) {
	r := newRegistry(t, store.NewMemory())
	ok, err := r.Touch("dev-x", "XXXXXXXX", t0)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.NoError(t, err)
	ok, err = r.Touch("dev-b", "DDDDDDDD", t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	dev, _ := r.Get("dev-b")
	require.Equal(t, "DDDDDDDD", dev.PeerID)
	require.Equal(t, t0.Add(time.Minute), dev.LastConnectedAt)
}

func TestRenameAndRemove(t *testing.T) {
	r := newRegistry(t, store.NewMemory())
	_, _, err := r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.NoError(t, err)

	dev, err := r.Rename("BBBBBBBB", "Work phone")
	require.NoError(t, err)
	require.Equal(t, "Work phone", dev.DisplayName())
	dev, err = r.Rename("dev-b", "")
	require.NoError(t, err)
	require.Nil(t, dev.CustomName)
	require.Equal(t, "phone", dev.DisplayName())

	_, err = r.Rename("nope", "x")
	require.ErrorIs(t, err, ErrUnknownDevice)

	removed, err := r.Remove("BBBBBBBB")
	require.NoError(t, err)
	require.Equal(t, "dev-b", removed.ID)
	require.Zero(t, r.Len())
	_, err = r.Remove("dev-b")
	require.ErrorIs(t, err, ErrUnknownDevice)
}

func TestListIsCopy(t *testing.T) {
	r := newRegistry(t, store.NewMemory())
	_, _, err := r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.NoError(t, err)
	_, err = r.Rename("dev-b", "mine")
	require.NoError(t, err)

	list := r.List()
	*list[0].CustomName = "changed"
	list[0].PeerID = "changed"
	dev, _ := r.Get("dev-b")
	require.Equal(t, "mine", *dev.CustomName)
	require.Equal(t, "BBBBBBBB", dev.PeerID)
}

type failingPut struct{ store.KV }

func (failingPut) Put(string, []byte) error { return errors.New("read-only") }

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	r := newRegistry(t, failingPut{store.NewMemory()})
	_, _, err := r.Upsert("dev-b", "BBBBBBBB", "phone", t0)
	require.ErrorContains(t, err, "read-only")
	require.Zero(t, r.Len())
}

func TestCorruptList(t *testing.T) {
	kv := store.NewMemory()
	require.NoError(t, kv.Put(state.KeyConnectedDevices, []byte("{")))
	_, err := New(kv)
	require.Error(t, err)
}
