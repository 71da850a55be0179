package command

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/docguard/internal/cli/config"
	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/infra/confloader"
	"github.com/yndnr/docguard/internal/infra/shutdown"
	"github.com/yndnr/docguard/internal/server/httpserver"
	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/telemetry/logger"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

const shutdownTimeout = 10 * time.Second

// MonitorCommand runs periodic verification with automatic recovery and
// serves metrics until interrupted.
func MonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Verify the document periodically, recover on failure and serve metrics",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Time between checks (overrides monitor.interval)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Listen address for /metrics and /healthz; empty disables",
			},
		},
		Action: runMonitor,
	}
}

// monitor holds the state of a running monitor command.
type monitor struct {
	store     *storage.Store
	metrics   *metric.Registry
	logger    *slog.Logger
	cfgPath   string
	overrides map[string]any

	reloadLimit *rate.Limiter
	warnLimit   *rate.Limiter
}

func newMonitor(e *env, s *storage.Store, reg *metric.Registry) *monitor {
	return &monitor{
		store:       s,
		metrics:     reg,
		logger:      e.logger.With("component", "monitor"),
		cfgPath:     e.cfgPath,
		overrides:   e.overrides,
		reloadLimit: rate.NewLimiter(rate.Every(time.Second), 1),
		warnLimit:   rate.NewLimiter(rate.Every(time.Minute), 3),
	}
}

// check verifies the live document and recovers it if verification fails.
func (m *monitor) check(ctx context.Context) error {
	err := m.store.Verify(ctx)
	m.metrics.IntegrityCheck(err)
	if err == nil || errors.Is(err, domain.ErrNoDocument) {
		return nil
	}

	if m.warnLimit.Allow() {
		m.logger.Warn("integrity check failed, recovering", "error", err)
	}
	if _, lerr := m.store.Load(ctx); lerr != nil {
		m.logger.Error("recovery failed", "error", lerr)
		return lerr
	}
	return nil
}

// reload re-reads the configuration file and applies the parts that can
// change at runtime: backup retention and log level.
func (m *monitor) reload(ctx context.Context) {
	if !m.reloadLimit.Allow() {
		m.logger.Debug("config reload throttled")
		return
	}
	cfg, err := config.Load(m.cfgPath, m.overrides)
	if err != nil {
		m.logger.Error("config reload failed, keeping current settings", "error", err)
		return
	}
	if err := m.store.SetRetention(ctx, cfg.RetentionPolicy()); err != nil {
		m.logger.Error("apply retention failed", "error", err)
		return
	}
	previous := logger.GetLevel()
	logger.SetLevel(cfg.Log.Level)
	m.logger.Info("configuration reloaded",
		"max_count", cfg.Backup.MaxCount,
		"retention_days", cfg.Backup.RetentionDays,
		"log_level", logger.GetLevel(),
		"previous_log_level", previous)
}

// loop runs check every interval until ctx is done.
func (m *monitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.check(ctx)
		}
	}
}

func runMonitor(c *cli.Context) error {
	e, err := loadEnv(c)
	if err != nil {
		return err
	}
	interval := e.cfg.Monitor.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	addr := e.cfg.Monitor.MetricsAddr
	if c.IsSet("metrics-addr") {
		addr = c.String("metrics-addr")
	}

	reg := metric.NewRegistry()
	s, err := openStore(e, reg)
	if err != nil {
		return err
	}
	if err := reg.Registerer().Register(metric.NewCollector(s.Stats)); err != nil {
		_ = s.Close(c.Context)
		return err
	}

	m := newMonitor(e, s, reg)
	h := shutdown.NewHandler(shutdownTimeout)
	h.OnShutdown(s.Close)

	if addr != "" {
		srv := httpserver.New(addr, httpserver.NewRouter(&httpserver.RouterConfig{
			Metrics: reg.Handler(),
			Health:  s.Verify,
			Logger:  e.logger,
		}), e.logger)
		if err := srv.Start(); err != nil {
			_ = s.Close(c.Context)
			return err
		}
		h.OnShutdown(srv.Shutdown)
	}

	if e.cfgPath != "" {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(e.logger))
		if err != nil {
			_ = h.Run()
			return err
		}
		if err := w.Watch(e.cfgPath); err != nil {
			_ = w.Stop()
			_ = h.Run()
			return err
		}
		w.OnChange(func(string) { m.reload(c.Context) })
		w.StartAsync()
		h.OnShutdown(func(context.Context) error { return w.Stop() })
	}

	loopCtx, cancel := context.WithCancel(c.Context)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.loop(loopCtx, interval)
	}()
	h.OnShutdown(func(context.Context) error {
		cancel()
		<-done
		return nil
	})

	m.logger.Info("monitor started", "interval", interval, "metrics_addr", addr, "backend", s.BackendName())
	err = h.Wait(c.Context)
	m.logger.Info("monitor stopped")
	return err
}
