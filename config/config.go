// Package config contains peersync node configuration definitions.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

const (
	defaultConfigFileName = "./config.toml"
	defaultDataDirName    = "peersync"
)

// Store backends.
const (
	StoreLevelDB = "leveldb"
	StoreFile    = "file"
	StoreMemory  = "memory"
)

var defaultDataDir = filepath.Join(userHomeDir(), defaultDataDirName)

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return home
}

// Config defines the top level configuration for a peersync node.
type Config struct {
	BaseConfig `mapstructure:"main"`
	Preset     string          `mapstructure:"preset"`
	Sync       SyncConfig      `mapstructure:"sync"`
	Transport  TransportConfig `mapstructure:"transport"`
	Signal     SignalConfig    `mapstructure:"signal"`
	LOGGING    LoggerConfig    `mapstructure:"logging"`
}

// BaseConfig defines the default configuration options for the node.
type BaseConfig struct {
	DataDir    string `mapstructure:"data-dir"`
	ConfigFile string `mapstructure:"config"`
	DeviceName string `mapstructure:"device-name"`
	Store      string `mapstructure:"store"`

	CollectMetrics bool `mapstructure:"metrics"`
	MetricsPort    int  `mapstructure:"metrics-port"`
}

// SyncConfig tunes the replication engine.
type SyncConfig struct {
	MaxReconnectAttempts int           `mapstructure:"max-reconnect-attempts"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect-interval"`
	PeerUnavailableRetry time.Duration `mapstructure:"peer-unavailable-retry-delay"`
	RateLimitWindow      time.Duration `mapstructure:"rate-limit-window"`
	RateLimitMessages    int           `mapstructure:"rate-limit-messages"`
	AutoSyncDelay        time.Duration `mapstructure:"auto-sync-delay"`
	ChallengeTimeout     time.Duration `mapstructure:"challenge-timeout"`
	MaxMessageSize       int           `mapstructure:"max-message-size"`
	PairingCodeLength    int           `mapstructure:"pairing-code-length"`
	OpenAttempts         int           `mapstructure:"open-attempts"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (c SyncConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("max_reconnect_attempts", c.MaxReconnectAttempts)
	enc.AddDuration("reconnect_interval", c.ReconnectInterval)
	enc.AddDuration("rate_limit_window", c.RateLimitWindow)
	enc.AddInt("rate_limit_messages", c.RateLimitMessages)
	enc.AddDuration("auto_sync_delay", c.AutoSyncDelay)
	enc.AddInt("max_message_size", c.MaxMessageSize)
	return nil
}

// TransportConfig configures the peer connection provider.
type TransportConfig struct {
	SignalURL      string        `mapstructure:"signal-url"`
	ICEServers     []string      `mapstructure:"ice-servers"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
}

// SignalConfig configures the rendezvous server.
type SignalConfig struct {
	Listen            string        `mapstructure:"listen"`
	Path              string        `mapstructure:"path"`
	ExpireTimeout     time.Duration `mapstructure:"expire-timeout"`
	MessagesPerSecond float64       `mapstructure:"messages-per-second"`
	Burst             int           `mapstructure:"burst"`
	MaxMessageSize    int64         `mapstructure:"max-message-size"`
}

// DefaultConfig returns the default configuration for a peersync node.
func DefaultConfig() Config {
	return Config{
		BaseConfig: DefaultBaseConfig(),
		Sync:       DefaultSyncConfig(),
		Transport:  DefaultTransportConfig(),
		Signal:     DefaultSignalConfig(),
		LOGGING:    DefaultLoggingConfig(),
	}
}

// DefaultBaseConfig returns the default base configuration.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		DataDir:     defaultDataDir,
		ConfigFile:  defaultConfigFileName,
		DeviceName:  hostname(),
		Store:       StoreLevelDB,
		MetricsPort: 1010,
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "peersync"
	}
	return name
}

// DefaultSyncConfig returns the default replication settings.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxReconnectAttempts: 3,
		ReconnectInterval:    12 * time.Second,
		PeerUnavailableRetry: 2 * time.Second,
		RateLimitWindow:      10 * time.Second,
		RateLimitMessages:    50,
		AutoSyncDelay:        5 * time.Second,
		ChallengeTimeout:     30 * time.Second,
		MaxMessageSize:       4 << 20,
		PairingCodeLength:    8,
		OpenAttempts:         5,
	}
}

// DefaultTransportConfig returns the default transport settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		SignalURL:      "ws://127.0.0.1:9000/peerjs",
		ICEServers:     []string{"stun:stun.l.google.com:19302"},
		ConnectTimeout: 15 * time.Second,
	}
}

// DefaultSignalConfig returns the default rendezvous server settings.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		Listen:            ":9000",
		Path:              "/peerjs",
		ExpireTimeout:     10 * time.Second,
		MessagesPerSecond: 20,
		Burst:             40,
		MaxMessageSize:    64 << 10,
	}
}

// Validate checks that all limits are usable.
func (cfg *Config) Validate() error {
	errs := []error{cfg.Sync.Validate()}
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("transport.connect-timeout", int64(cfg.Transport.ConnectTimeout))
	positive("signal.burst", int64(cfg.Signal.Burst))
	positive("signal.max-message-size", cfg.Signal.MaxMessageSize)
	if cfg.Signal.MessagesPerSecond <= 0 {
		errs = append(errs, errors.New("signal.messages-per-second must be positive"))
	}
	switch cfg.Store {
	case StoreLevelDB, StoreFile, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("main.store: unknown backend %q", cfg.Store))
	}
	return errors.Join(errs...)
}

// Validate checks that the replication limits are usable.
func (c SyncConfig) Validate() error {
	var errs []error
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("sync.max-reconnect-attempts", int64(c.MaxReconnectAttempts))
	positive("sync.reconnect-interval", int64(c.ReconnectInterval))
	positive("sync.rate-limit-window", int64(c.RateLimitWindow))
	positive("sync.rate-limit-messages", int64(c.RateLimitMessages))
	positive("sync.auto-sync-delay", int64(c.AutoSyncDelay))
	positive("sync.challenge-timeout", int64(c.ChallengeTimeout))
	positive("sync.max-message-size", int64(c.MaxMessageSize))
	positive("sync.pairing-code-length", int64(c.PairingCodeLength))
	positive("sync.open-attempts", int64(c.OpenAttempts))
	if c.PeerUnavailableRetry < 0 {
		errs = append(errs, errors.New("sync.peer-unavailable-retry-delay must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads the config file at fileLocation into vip.
func LoadConfig(fileLocation string, vip *viper.Viper) error {
	if fileLocation == "" {
		fileLocation = defaultConfigFileName
	}
	vip.SetConfigFile(fileLocation)
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %w", err)
	}
	return nil
}

// Unmarshal decodes the values loaded into vip on top of cfg.
func Unmarshal(vip *viper.Viper, cfg *Config) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		WithZeroFields(),
		WithIgnoreUntagged(),
		WithErrorUnused(),
	}
	if err := vip.Unmarshal(cfg, opts...); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func WithZeroFields() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ZeroFields = true
	}
}

func WithIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func WithErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
