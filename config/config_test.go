package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	vip := viper.New()
	err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), vip)
	require.ErrorContains(t, err, "failed to read config file")
}

func TestUnmarshal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[main]
device-name = "study-laptop"
store = "file"

[sync]
reconnect-interval = "15s"
rate-limit-messages = 20

[transport]
ice-servers = "stun:a.example:3478,stun:b.example:3478"

[logging]
syncer = "debug"
`), 0o600))

	vip := viper.New()
	require.NoError(t, LoadConfig(path, vip))
	conf := DefaultConfig()
	require.NoError(t, Unmarshal(vip, &conf))

	require.Equal(t, "study-laptop", conf.DeviceName)
	require.Equal(t, StoreFile, conf.Store)
	require.Equal(t, 15*time.Second, conf.Sync.ReconnectInterval)
	require.Equal(t, 20, conf.Sync.RateLimitMessages)
	require.Equal(t, 3, conf.Sync.MaxReconnectAttempts)
	require.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, conf.Transport.ICEServers)
	require.Equal(t, "debug", conf.LOGGING.SyncerLoggerLevel)
	require.NoError(t, conf.Validate())
}

func TestUnmarshalRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nmax-reconect-attempts = 4\n"), 0o600))

	vip := viper.New()
	require.NoError(t, LoadConfig(path, vip))
	conf := DefaultConfig()
	require.ErrorContains(t, Unmarshal(vip, &conf), "max-reconect-attempts")
}

func TestValidate(t *testing.T) {
	conf := DefaultConfig()
	require.NoError(t, conf.Validate())

	conf.Sync.MaxReconnectAttempts = 0
	conf.Sync.RateLimitWindow = -time.Second
	conf.Store = "sqlite"
	err := conf.Validate()
	require.ErrorContains(t, err, "sync.max-reconnect-attempts")
	require.ErrorContains(t, err, "sync.rate-limit-window")
	require.ErrorContains(t, err, "unknown backend")
}

func TestValidateSyncConfig(t *testing.T) {
	require.NoError(t, DefaultSyncConfig().Validate())

	err := SyncConfig{MaxReconnectAttempts: 5}.Validate()
	require.ErrorContains(t, err, "sync.reconnect-interval")
	require.ErrorContains(t, err, "sync.rate-limit-messages")
	require.NotContains(t, err.Error(), "sync.max-reconnect-attempts")

	cfg := DefaultSyncConfig()
	cfg.PeerUnavailableRetry = -time.Second
	require.ErrorContains(t, cfg.Validate(), "peer-unavailable-retry-delay")
}
