// Package node contains the peersync commands: a headless device and the
// rendezvous server.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/jd-code76/provinent-scripture-study-sub000/cmd"
	"github.com/jd-code76/provinent-scripture-study-sub000/config"
	"github.com/jd-code76/provinent-scripture-study-sub000/config/presets"
	"github.com/jd-code76/provinent-scripture-study-sub000/events"
	"github.com/jd-code76/provinent-scripture-study-sub000/log"
	"github.com/jd-code76/provinent-scripture-study-sub000/metrics"
	rendezvous "github.com/jd-code76/provinent-scripture-study-sub000/signal"
	"github.com/jd-code76/provinent-scripture-study-sub000/store"
	"github.com/jd-code76/provinent-scripture-study-sub000/store/filestore"
	"github.com/jd-code76/provinent-scripture-study-sub000/store/levelstore"
	"github.com/jd-code76/provinent-scripture-study-sub000/syncer"
	"github.com/jd-code76/provinent-scripture-study-sub000/transport/rtc"
)

const (
	levelDBDir    = "state.db"
	fileStoreDir  = "state"
	fileFlushWait = time.Second
)

// GetCommand returns the peersync root command.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var connect string
	c := &cobra.Command{
		Use:          "peersync",
		Short:        "replicate highlights, notes and settings between paired devices",
		SilenceUsage: true,
	}
	configPath := cmd.AddFlags(c.PersistentFlags(), &conf)

	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "run a headless device",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, &conf); err != nil {
				return err
			}
			// os.Interrupt for all systems, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runNode(ctx, &conf, connect)
		},
	}
	nodeCmd.Flags().StringVar(&connect, "connect", "", "pairing code of a device to connect to on start")
	c.AddCommand(nodeCmd)

	signalCmd := &cobra.Command{
		Use:   "signal",
		Short: "run the rendezvous server",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(c, *configPath, &conf); err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runSignal(ctx, &conf)
		},
	}
	c.AddCommand(signalCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Print(cmd.Version)
			if cmd.Commit != "" {
				fmt.Printf("+%s+%s", cmd.Branch, cmd.Commit)
			}
			fmt.Println()
		},
	}
	c.AddCommand(versionCmd)
	return c
}

func configure(c *cobra.Command, configPath string, conf *config.Config) error {
	preset := conf.Preset // might be set via CLI flag
	if err := loadConfig(conf, preset, configPath); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// apply CLI args to config
	if err := c.ParseFlags(os.Args[1:]); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	return conf.Validate()
}

func loadConfig(conf *config.Config, preset, path string) error {
	v := viper.New()
	if path != "" {
		if err := config.LoadConfig(path, v); err != nil {
			return err
		}
	}

	// override default config with preset if provided
	if len(preset) == 0 && v.IsSet("preset") {
		preset = v.GetString("preset")
	}
	if len(preset) > 0 {
		p, err := presets.Get(preset)
		if err != nil {
			return err
		}
		*conf = p
	}
	if path == "" {
		return nil
	}
	return config.Unmarshal(v, conf)
}

type loggers struct {
	app  *zap.Logger
	conf config.LoggerConfig
}

func newLoggers(conf config.LoggerConfig) (*loggers, error) {
	lvl, err := log.ParseLevel(conf.AppLoggerLevel, zapcore.InfoLevel)
	if err != nil {
		return nil, err
	}
	// the root level caps every child, so it is the most verbose one
	root := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	app := log.New("peersync", root, conf.Encoder)
	return &loggers{
		app:  log.Named(app, "app", lvl),
		conf: conf,
	}, nil
}

// named returns a component logger at level, falling back to info for
// unparsable levels.
func (l *loggers) named(name, level string) *zap.Logger {
	lvl, err := log.ParseLevel(level, zapcore.InfoLevel)
	if err != nil {
		l.app.Warn("invalid log level", zap.String("component", name), zap.Error(err))
		lvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return log.Named(l.app, name, lvl)
}

func openStore(conf *config.Config, logger *zap.Logger) (store.Store, error) {
	var (
		backend store.Backend
		err     error
	)
	switch conf.Store {
	case config.StoreMemory:
		return store.NewMemory(store.WithLogger(logger)), nil
	case config.StoreFile:
		backend, err = filestore.Open(filepath.Join(conf.DataDir, fileStoreDir),
			filestore.WithLogger(logger),
			filestore.WithFlushDelay(fileFlushWait),
		)
	case config.StoreLevelDB:
		if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("ensure data dir exists: %w", err)
		}
		backend, err = levelstore.Open(filepath.Join(conf.DataDir, levelDBDir), logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", conf.Store)
	}
	if err != nil {
		return nil, err
	}
	st, err := store.NewReplica(backend, store.WithLogger(logger))
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}
	return st, nil
}

func logEvent(logger *zap.Logger) events.Observer {
	return func(ev events.Event) {
		fields := []zap.Field{
			zap.String("type", string(ev.Type)),
			log.ZPeer(ev.PeerID),
			log.ZDevice(ev.DeviceID),
			zap.Any("details", ev.Details),
		}
		if ev.Failure {
			logger.Warn(ev.Help, fields...)
			return
		}
		logger.Info(ev.Help, fields...)
	}
}

func serveMetrics(ctx context.Context, eg *errgroup.Group, conf *config.Config, logger *zap.Logger) {
	if !conf.CollectMetrics {
		return
	}
	srv := metrics.NewServer(fmt.Sprintf(":%d", conf.MetricsPort), logger)
	eg.Go(func() error {
		return srv.Run(ctx)
	})
}

func runNode(ctx context.Context, conf *config.Config, connect string) error {
	lg, err := newLoggers(conf.LOGGING)
	if err != nil {
		return err
	}
	defer lg.app.Sync()

	st, err := openStore(conf, lg.named("store", lg.conf.StoreLoggerLevel))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	eventsLogger := lg.named("events", lg.conf.EventsLoggerLevel)
	bus := events.NewBus(events.WithLogger(eventsLogger))
	defer bus.Close()
	stop := bus.Observe(64, logEvent(eventsLogger))
	defer stop()

	provider := rtc.NewProvider(conf.Transport, rtc.WithLogger(lg.named("rtc", lg.conf.RTCLoggerLevel)))
	m, err := syncer.New(st, provider,
		syncer.WithConfig(conf.Sync),
		syncer.WithLogger(lg.named("syncer", lg.conf.SyncerLoggerLevel)),
		syncer.WithEvents(bus),
		syncer.WithDeviceName(conf.DeviceName),
	)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	serveMetrics(ctx, eg, conf, lg.named("metrics", lg.conf.MetricsLoggerLevel))
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	defer m.Destroy()

	code, err := m.StartPairing(ctx)
	if err != nil {
		return fmt.Errorf("open endpoint: %w", err)
	}
	lg.app.Info("ready to pair", zap.String("code", code), zap.String("device", conf.DeviceName))
	if connect != "" {
		if err := m.Connect(ctx, connect); err != nil {
			lg.app.Warn("initial connect failed", log.ZPeer(connect), zap.Error(err))
		}
	}

	eg.Go(func() error {
		<-ctx.Done()
		lg.app.Info("shutting down")
		return nil
	})
	return eg.Wait()
}

func runSignal(ctx context.Context, conf *config.Config) error {
	lg, err := newLoggers(conf.LOGGING)
	if err != nil {
		return err
	}
	defer lg.app.Sync()

	srv := rendezvous.NewServer(conf.Signal, rendezvous.WithLogger(lg.named("signal", lg.conf.SignalLoggerLevel)))
	eg, ctx := errgroup.WithContext(ctx)
	serveMetrics(ctx, eg, conf, lg.named("metrics", lg.conf.MetricsLoggerLevel))
	eg.Go(func() error {
		return srv.Run(ctx)
	})
	return eg.Wait()
}
