package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/limitwatch/limitwatch/internal/config"
	"github.com/limitwatch/limitwatch/internal/database"
	"github.com/limitwatch/limitwatch/internal/history"
	"github.com/limitwatch/limitwatch/internal/logging"
	"github.com/limitwatch/limitwatch/internal/monitor"
	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/internal/rules"
	"github.com/limitwatch/limitwatch/internal/snapshot"
	"github.com/limitwatch/limitwatch/pkg/detector"
	"github.com/limitwatch/limitwatch/pkg/window"
)

func defaultConfigHint() string {
	return config.ConfigFile()
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Loader, *config.Config, error) {
	loader, err := config.NewLoader(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logLevel != "" {
		if !logging.ValidLevel(logLevel) {
			return nil, nil, fmt.Errorf("invalid log level: %s", logLevel)
		}
		cfg.Log.Level = logLevel
	}
	return loader, cfg, nil
}

func openRepository(cfg *config.Config) (*database.DB, *database.Repository, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, database.NewRepository(db), nil
}

type appOptions struct {
	notifyMode string        // overrides cfg.Notify.Mode when set
	interval   time.Duration // overrides cfg.Monitor.PollInterval when set
	in         io.Reader
	out        io.Writer
}

// app is a fully wired monitor with its history recorder
type app struct {
	cfg      *config.Config
	loader   *config.Loader
	logger   *slog.Logger
	provider *snapshot.Provider
	monitor  *monitor.Monitor
	db       *database.DB
	repo     *database.Repository
	recorder *history.Recorder

	logCloser io.Closer
}

func newApp(opts appOptions) (*app, error) {
	loader, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if opts.interval > 0 {
		if err := cfg.SetPollInterval(opts.interval); err != nil {
			return nil, err
		}
	}
	if opts.notifyMode != "" {
		cfg.Notify.Mode = opts.notifyMode
	}
	if opts.in == nil {
		opts.in = os.Stdin
	}
	if opts.out == nil {
		opts.out = os.Stdout
	}

	logger, logCloser, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, loader: loader, logger: logger, logCloser: logCloser}

	a.db, a.repo, err = openRepository(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.recorder = history.NewRecorder(a.repo, logger)

	var windows window.Lister
	if wl, err := detector.NewWindowLister(logger); err != nil {
		logger.Warn("window source unavailable", "err", err)
	} else {
		windows = wl
	}
	processes, err := detector.NewProcessLister(cfg.Snapshot.ProcessSource)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = snapshot.NewProvider(windows, processes,
		snapshot.WithTimeouts(cfg.Snapshot.WindowTimeout, cfg.Snapshot.ProcessTimeout),
		snapshot.WithLogger(logger),
		snapshot.WithErrorHook(a.recorder.RecordReadError),
	)

	det, err := rules.New(cfg.Rules)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := notify.New(cfg.Notify.Mode, logger, opts.in, opts.out)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.monitor = monitor.New(a.provider, det, notifier,
		monitor.WithLogger(logger),
		monitor.WithInterval(cfg.Monitor.PollInterval),
		monitor.WithExtendMinutes(cfg.Monitor.ExtendMinutes),
	)

	loader.Watch(logger, func(next *config.Config) {
		d, err := rules.New(next.Rules)
		if err != nil {
			logger.Warn("ignoring invalid rules", "err", err)
			return
		}
		a.monitor.SetDetector(d)
	})

	return a, nil
}

// Run drives the monitor and the history recorder, starts monitoring, and
// then runs each extra service until ctx is cancelled or one of them fails.
func (a *app) Run(ctx context.Context, services ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	transitions, unsubscribe := a.monitor.Subscribe()
	defer unsubscribe()

	g.Go(func() error { return a.monitor.Run(ctx) })
	g.Go(func() error {
		a.recorder.Run(ctx, transitions)
		return nil
	})

	if err := a.monitor.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		if errors.Is(err, monitor.ErrClosed) {
			return nil
		}
		return err
	}
	a.logger.Info("monitor running", "interval", a.cfg.Monitor.PollInterval, "notify", a.cfg.Notify.Mode)
	a.logger.Debug(a.cfg.String())

	for _, svc := range services {
		g.Go(func() error { return svc(ctx) })
	}

	return g.Wait()
}

func (a *app) Close() {
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Warn("failed to close window source", "err", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// errQuit ends an app run without reporting a failure
var errQuit = errors.New("quit")
