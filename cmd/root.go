// Package cmd holds the flags and build info shared by the peersync commands.
package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/jd-code76/provinent-scripture-study-sub000/config"
	"github.com/jd-code76/provinent-scripture-study-sub000/config/presets"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the App. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// AddFlags adds the node flags to fs, bound to the fields of cfg.
func AddFlags(fs *pflag.FlagSet, cfg *config.Config) (configPath *string) {
	fs.StringVarP(&cfg.Preset, "preset", "p", cfg.Preset,
		fmt.Sprintf("preset overwrites default values of the config. options %+s", presets.Options()))
	configPath = fs.StringP("config", "c", "", "load configuration from file")

	/** ======================== BaseConfig Flags ========================== **/
	fs.StringVarP(&cfg.DataDir, "data-dir", "d", cfg.DataDir,
		"directory for the local replica and device records")
	fs.StringVar(&cfg.DeviceName, "device-name", cfg.DeviceName,
		"name announced to paired devices")
	fs.StringVar(&cfg.Store, "store", cfg.Store,
		fmt.Sprintf("storage backend (%s, %s, %s)", config.StoreLevelDB, config.StoreFile, config.StoreMemory))
	fs.BoolVar(&cfg.CollectMetrics, "metrics", cfg.CollectMetrics,
		"serve prometheus metrics")
	fs.IntVar(&cfg.MetricsPort, "metrics-port", cfg.MetricsPort,
		"metrics server port")

	/** ======================== Sync Flags ========================== **/
	fs.IntVar(&cfg.Sync.MaxReconnectAttempts, "max-reconnect-attempts", cfg.Sync.MaxReconnectAttempts,
		"polling attempts per device before giving up")
	fs.DurationVar(&cfg.Sync.ReconnectInterval, "reconnect-interval", cfg.Sync.ReconnectInterval,
		"interval between reconnect polls")
	fs.DurationVar(&cfg.Sync.AutoSyncDelay, "auto-sync-delay", cfg.Sync.AutoSyncDelay,
		"quiet period after a local change before it is pushed")
	fs.IntVar(&cfg.Sync.RateLimitMessages, "rate-limit-messages", cfg.Sync.RateLimitMessages,
		"messages a connection may send per rate limit window")
	fs.DurationVar(&cfg.Sync.RateLimitWindow, "rate-limit-window", cfg.Sync.RateLimitWindow,
		"rate limit window")

	/** ======================== Transport Flags ========================== **/
	fs.StringVar(&cfg.Transport.SignalURL, "signal-url", cfg.Transport.SignalURL,
		"websocket url of the rendezvous server")
	fs.StringSliceVar(&cfg.Transport.ICEServers, "ice-server", cfg.Transport.ICEServers,
		"STUN/TURN server url, can be passed multiple times")
	fs.DurationVar(&cfg.Transport.ConnectTimeout, "connect-timeout", cfg.Transport.ConnectTimeout,
		"time allowed for a data channel to open")

	/** ======================== Signal Flags ========================== **/
	fs.StringVar(&cfg.Signal.Listen, "listen", cfg.Signal.Listen,
		"address the rendezvous server listens on")
	fs.StringVar(&cfg.Signal.Path, "path", cfg.Signal.Path,
		"websocket path of the rendezvous server")
	fs.DurationVar(&cfg.Signal.ExpireTimeout, "expire-timeout", cfg.Signal.ExpireTimeout,
		"idle time after which a silent endpoint is dropped")

	/** ======================== Logging Flags ========================== **/
	fs.StringVar(&cfg.LOGGING.Encoder, "log-encoder", cfg.LOGGING.Encoder,
		"log as json or console text")
	fs.StringVar(&cfg.LOGGING.AppLoggerLevel, "log-level", cfg.LOGGING.AppLoggerLevel,
		"most verbose level any component may log at")
	return configPath
}
