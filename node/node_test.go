package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jd-code76/provinent-scripture-study-sub000/config"
	"github.com/jd-code76/provinent-scripture-study-sub000/events"
	"github.com/jd-code76/provinent-scripture-study-sub000/log/logtest"
	"github.com/jd-code76/provinent-scripture-study-sub000/state"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
[main]
device-name = "study-laptop"
store = "file"

[sync]
reconnect-interval = "5s"
max-reconnect-attempts = 4
`)
	conf := config.DefaultConfig()
	require.NoError(t, loadConfig(&conf, "", path))
	require.Equal(t, "study-laptop", conf.DeviceName)
	require.Equal(t, config.StoreFile, conf.Store)
	require.Equal(t, 5*time.Second, conf.Sync.ReconnectInterval)
	require.Equal(t, 4, conf.Sync.MaxReconnectAttempts)
	require.Equal(t, config.DefaultSyncConfig().AutoSyncDelay, conf.Sync.AutoSyncDelay)
	require.NoError(t, conf.Validate())
}

func TestLoadConfigPresetFromFile(t *testing.T) {
	path := writeConfig(t, `
preset = "standalone"

[sync]
auto-sync-delay = "2s"
`)
	conf := config.DefaultConfig()
	require.NoError(t, loadConfig(&conf, "", path))
	require.Equal(t, "standalone", conf.Preset)
	require.Equal(t, config.StoreMemory, conf.Store)
	require.Equal(t, 2*time.Second, conf.Sync.AutoSyncDelay)
}

func TestLoadConfigPresetOnly(t *testing.T) {
	conf := config.DefaultConfig()
	require.NoError(t, loadConfig(&conf, "fastnet", ""))
	require.Equal(t, "fastnet", conf.Preset)
	require.Equal(t, 2*time.Second, conf.Sync.ReconnectInterval)
}

func TestLoadConfigErrors(t *testing.T) {
	conf := config.DefaultConfig()
	require.Error(t, loadConfig(&conf, "", filepath.Join(t.TempDir(), "missing.toml")))
	require.Error(t, loadConfig(&conf, "mainnet", ""))

	path := writeConfig(t, `
[sync]
unknown-option = 1
`)
	require.ErrorContains(t, loadConfig(&conf, "", path), "unknown-option")
}

func TestOpenStore(t *testing.T) {
	for _, backend := range []string{config.StoreMemory, config.StoreFile, config.StoreLevelDB} {
		t.Run(backend, func(t *testing.T) {
			conf := config.DefaultConfig()
			conf.DataDir = t.TempDir()
			conf.Store = backend
			st, err := openStore(&conf, logtest.New(t))
			require.NoError(t, err)

			_, err = st.ApplyLocalChange(state.Change{Field: state.FieldNotes, Value: "persisted"})
			require.NoError(t, err)
			require.NoError(t, st.Put(state.KeyDeviceID, []byte("device")))
			require.NoError(t, st.Close())
			if backend == config.StoreMemory {
				return
			}

			st, err = openStore(&conf, logtest.New(t))
			require.NoError(t, err)
			defer st.Close()
			snap, err := st.Snapshot()
			require.NoError(t, err)
			require.Equal(t, "persisted", snap.Notes)
			id, err := st.Get(state.KeyDeviceID)
			require.NoError(t, err)
			require.Equal(t, "device", string(id))
		})
	}
}

func TestOpenStoreUnknown(t *testing.T) {
	conf := config.DefaultConfig()
	conf.Store = "sqlite"
	_, err := openStore(&conf, logtest.New(t))
	require.ErrorContains(t, err, "sqlite")
}

func TestLogEventDoesNotPanic(t *testing.T) {
	observe := logEvent(logtest.New(t))
	observe(events.Event{Type: events.TypePeerReady, PeerID: "ABCD1234", Help: "ready"})
	observe(events.Event{Type: events.TypeAuthFailed, PeerID: "ABCD1234", Failure: true})
}

func TestGetCommand(t *testing.T) {
	c := GetCommand()
	names := []string{}
	for _, sub := range c.Commands() {
		names = append(names, sub.Name())
	}
	require.ElementsMatch(t, []string{"node", "signal", "version"}, names)
	require.NotNil(t, c.PersistentFlags().Lookup("signal-url"))
	require.NotNil(t, c.PersistentFlags().Lookup("data-dir"))
	require.NotNil(t, c.PersistentFlags().Lookup("device-name"))
	require.NotNil(t, c.PersistentFlags().Lookup("metrics"))
	node, _, err := c.Find([]string{"node"})
	require.NoError(t, err)
	require.NotNil(t, node.Flags().Lookup("connect"))
}
