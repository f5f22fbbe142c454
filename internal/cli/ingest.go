package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/config"
	"github.com/runnerr0/tabtally/internal/daemon"
	"github.com/runnerr0/tabtally/internal/export"
	"github.com/runnerr0/tabtally/internal/logging"
	"github.com/runnerr0/tabtally/internal/metrics"
	"github.com/runnerr0/tabtally/internal/platform"
	"github.com/runnerr0/tabtally/internal/storage"
	"github.com/runnerr0/tabtally/internal/tracker"
)

// Execute implements the go-flags Commander interface for IngestCommand.
func (c *IngestCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	c.applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	baseDir, err := cfg.StorageDir()
	if err != nil {
		return err
	}
	logCloser, err := logging.Setup(cfg.Logging, baseDir)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()
	if c.globals.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	store, closeStore, err := openStore(cfg, c.globals.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	reason, err := c.startupReason(context.Background(), store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", c.version).Str("backend", cfg.Storage.Backend).Msg("tabtally starting")
	return runDaemon(ctx, cfg, store, reason)
}

func (c *IngestCommand) applyOverrides(cfg *config.Config) {
	if c.Host != "" {
		cfg.Daemon.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.CDPURL != "" {
		cfg.Browser.CDPURL = c.CDPURL
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
}

// startupReason resolves --reason. "auto" treats an empty store as a fresh
// install and anything else as a browser restart.
func (c *IngestCommand) startupReason(ctx context.Context, store storage.Store) (tracker.StartupReason, error) {
	if c.Reason != "" && c.Reason != "auto" {
		return tracker.ParseStartupReason(c.Reason)
	}
	stats, err := store.GetStats(ctx)
	if err != nil {
		return "", fmt.Errorf("inspect store: %w", err)
	}
	if stats.TotalDays == 0 {
		return tracker.ReasonInstall, nil
	}
	return tracker.ReasonStartup, nil
}

// runDaemon wires the tracker to its sources and sinks and blocks until ctx
// is done.
func runDaemon(ctx context.Context, cfg *config.Config, store storage.Store, reason tracker.StartupReason) error {
	rt, err := newDaemonRuntime(cfg, store)
	if err != nil {
		return err
	}
	return rt.run(ctx, reason)
}

// daemonRuntime holds the collaborators of a running ingest daemon.
type daemonRuntime struct {
	cfg      *config.Config
	registry *platform.Registry
	board    *platform.Board
	rec      *tracker.Reconciler
	srv      *daemon.Server
}

func newDaemonRuntime(cfg *config.Config, store storage.Store) (*daemonRuntime, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := platform.NewRegistry()
	board := &platform.Board{}

	rec, err := tracker.New(tracker.Options{
		Store:          store,
		Tabs:           registry,
		Surface:        board,
		Clock:          quartz.NewReal(),
		DebounceWindow: cfg.Tracker.DebounceWindow(),
		StartupGrace:   cfg.Tracker.StartupGrace(),
		DisplayKey:     cfg.Tracker.DisplayKey,
		Metrics:        metrics.New(reg),
	})
	if err != nil {
		return nil, err
	}

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = reg
	}
	srv := daemon.NewServer(daemon.Options{
		Addr:           cfg.Daemon.Addr(),
		AuthToken:      cfg.Daemon.AuthToken,
		MaxRequestSize: int64(cfg.Daemon.MaxRequestSize),
		Tracker:        rec,
		Registry:       registry,
		Board:          board,
		Exporter:       export.New(store),
		Gatherer:       gatherer,
		MetricsPath:    cfg.Metrics.Path,
	})

	return &daemonRuntime{cfg: cfg, registry: registry, board: board, rec: rec, srv: srv}, nil
}

// run starts intake and blocks until ctx is done, then drains in order:
// HTTP server, watcher, event loop, final flush.
func (rt *daemonRuntime) run(ctx context.Context, reason tracker.StartupReason) error {
	var watcher *platform.ChromeWatcher
	if url := rt.cfg.Browser.CDPURL; url != "" {
		watcher = platform.NewChromeWatcher(url, rt.registry, rt.rec.Submit)
		if err := watcher.Connect(ctx); err != nil {
			return fmt.Errorf("connect to browser: %w", err)
		}
		defer watcher.Close()
	}

	if err := rt.rec.Start(ctx, reason); err != nil {
		return err
	}

	if err := rt.srv.Start(); err != nil {
		_ = rt.rec.Shutdown(context.Background())
		return err
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := rt.rec.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event loop stopped")
		}
	}()

	var wg sync.WaitGroup
	if watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("browser watcher stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if err := rt.srv.Stop(); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	wg.Wait()
	stopLoop()
	<-loopDone

	if err := rt.rec.Shutdown(context.Background()); err != nil {
		return err
	}
	log.Info().Msg("final state persisted")
	return nil
}
