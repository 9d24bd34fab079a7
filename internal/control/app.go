package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/classify"
	"github.com/vietddude/resilience/internal/core/config"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/core/worker"
	"github.com/vietddude/resilience/internal/execution"
	"github.com/vietddude/resilience/internal/health"
	"github.com/vietddude/resilience/internal/infra/crash"
	"github.com/vietddude/resilience/internal/infra/dispatch"
	"github.com/vietddude/resilience/internal/infra/network"
	"github.com/vietddude/resilience/internal/infra/notify"
	redisclient "github.com/vietddude/resilience/internal/infra/redis"
	"github.com/vietddude/resilience/internal/infra/storage"
	"github.com/vietddude/resilience/internal/infra/storage/memory"
	"github.com/vietddude/resilience/internal/infra/storage/postgres"
	"github.com/vietddude/resilience/internal/infra/storage/sqlite"
	"github.com/vietddude/resilience/internal/offline"
	"github.com/vietddude/resilience/internal/recovery"
)

// App owns one instance of every component: a single error handler, the
// offline queue and its reconnect trigger.
type App struct {
	cfg *config.AppConfig

	Handler *recovery.Handler
	Queue   *offline.Queue
	Runner  *execution.Runner
	Trigger *execution.ReconnectTrigger
	Network network.Monitor

	probe        *network.ProbeMonitor
	pruner       *worker.Pruner
	cancel       context.CancelFunc
	healthMon    *health.Monitor
	healthServer *health.Server
	storePing    health.Pinger
	closers      []func() error
	log          *slog.Logger
}

// Option customises NewApp.
type Option func(*options)

type options struct {
	handlers offline.Handlers
	monitor  network.Monitor
	reporter crash.Reporter
	notifier notify.Notifier
}

// WithHandlers registers queue handlers. They take precedence over the HTTP
// dispatcher for the same action type.
func WithHandlers(h offline.Handlers) Option {
	return func(o *options) { o.handlers = h }
}

// WithNetworkMonitor replaces the configured connectivity source.
func WithNetworkMonitor(m network.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

// WithReporter replaces the log-backed crash reporter.
func WithReporter(r crash.Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithNotifier replaces the log-backed notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	// 2. Collaborators
	reporter := o.reporter
	if reporter == nil {
		reporter = crash.NewLogReporter(nil)
	}
	notifier := o.notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}

	// 3. Error Handler
	a.Handler = recovery.NewHandler(classify.New(), reporter, notifier, &recovery.ExponentialBackoff{
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		MaxAttempts:  cfg.Retry.MaxAttempts,
	})

	// 4. Offline Queue
	a.Queue = offline.NewQueue(store, reporter, offline.Config{
		MaxSize:    cfg.Queue.MaxSize,
		MaxRetries: cfg.Queue.MaxRetries,
	})

	// 5. Network Monitor
	a.Network = o.monitor
	if a.Network == nil {
		if a.Network, err = a.openMonitor(); err != nil {
			a.close()
			return nil, err
		}
	}

	// 6. Execution
	a.Runner = execution.NewRunner(a.Queue, a.Network, notifier)
	a.Trigger = execution.NewReconnectTrigger(a.Network, a.Queue, a.buildHandlers(o.handlers), cfg.Network.SettleDelay)

	// 7. Retention
	a.pruner = worker.NewPruner(cfg.Queue.FailedRetention, a.Queue)

	// 8. Health
	a.healthMon = health.NewMonitor(a.Queue, a.Handler, a.Network, 2*time.Second)
	if a.storePing != nil {
		a.healthMon.SetStorage(a.storePing)
	}
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port)

	return a, nil
}

func (a *App) openStore(ctx context.Context) (storage.SyncQueueStore, error) {
	cfg := a.cfg
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.storePing = client
		a.log.Info("Using Redis queue storage", "key", cfg.Queue.Key)
		return redisclient.NewQueueStore(client, cfg.Queue.Key), nil

	case config.BackendPostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.storePing = db
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		a.log.Info("Using PostgreSQL queue storage", "key", cfg.Queue.Key)
		return postgres.NewQueueStore(db, cfg.Queue.Key), nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() error { return sqlite.Close(db) })
		a.log.Info("Using SQLite queue storage", "path", cfg.SQLite.Path)
		return sqlite.NewQueueStore(db, cfg.Queue.Key), nil

	default:
		a.log.Warn("Using in-memory queue storage, queued actions will not survive restarts")
		return memory.NewQueueStore(), nil
	}
}

func (a *App) openMonitor() (network.Monitor, error) {
	cfg := a.cfg.Network
	switch cfg.Probe {
	case config.ProbeHTTP:
		a.probe = network.NewProbeMonitor(network.NewHTTPProber(cfg.Target, cfg.Timeout), cfg.Interval, cfg.Timeout)
		return a.probe, nil
	case config.ProbeGRPC:
		prober, err := network.NewGRPCHealthProber(cfg.Target, cfg.Service)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, prober.Close)
		a.probe = network.NewProbeMonitor(prober, cfg.Interval, cfg.Timeout)
		return a.probe, nil
	default:
		return network.NewManualMonitor(network.Online), nil
	}
}

func (a *App) buildHandlers(custom offline.Handlers) offline.Handlers {
	handlers := make(offline.Handlers)
	if a.cfg.Dispatch.URL != "" {
		d := dispatch.NewHTTPDispatcher(a.cfg.Dispatch.URL, a.cfg.Dispatch.Timeout)
		handlers = d.Handlers(domain.ActionTypes...)
	}
	for typ, h := range custom {
		handlers[typ] = h
	}
	if len(handlers) == 0 {
		a.log.Warn("No queue handlers configured, queued actions will fail when processed")
	}
	return handlers
}

// Start recovers items stranded by a previous run, starts connectivity
// monitoring, the reconnect trigger and the health server. If the device is
// online a first sync pass runs in the background.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Queue.RecoverStale(ctx); err != nil {
		return fmt.Errorf("failed to recover queue: %w", err)
	}

	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	ctx, a.cancel = context.WithCancel(ctx)
	a.Trigger.Start(ctx)
	if a.probe != nil {
		a.probe.Start(ctx)
	}
	go a.pruner.Start(ctx)

	if !a.Network.Status().IsOffline() {
		a.Trigger.SyncAsync(ctx)
	}

	a.log.Info("Resilience service started", "port", a.cfg.Server.Port, "backend", a.cfg.Queue.Backend)
	return nil
}

// SyncNow runs one queue pass unless one is already running.
func (a *App) SyncNow(ctx context.Context) (offline.Result, bool, error) {
	return a.Trigger.SyncNow(ctx)
}

// CheckHealth returns the current health report.
func (a *App) CheckHealth(ctx context.Context) health.HealthReport {
	return a.healthMon.CheckHealth(ctx)
}

// Stop shuts every component down. Retry timers are cancelled and an
// in-flight sync pass is allowed to finish.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping resilience service...")

	if a.cancel != nil {
		a.cancel()
	}

	if a.probe != nil {
		a.probe.Stop()
	}
	a.Trigger.Stop()
	a.Handler.Cleanup()

	if err := a.healthServer.Stop(ctx); err != nil {
		a.log.Warn("Failed to stop health server", "error", err)
	}
	a.close()
	return nil
}

// Close releases storage without starting anything. Used by one-shot CLI
// commands.
func (a *App) Close() {
	a.Handler.Cleanup()
	a.close()
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}
