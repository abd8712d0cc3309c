// Package app wires the gate, discovery, approval and scheduler components
// together and owns their lifecycles.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wardenbot/internal/approval"
	"wardenbot/internal/config"
	"wardenbot/internal/discovery"
	"wardenbot/internal/gate"
	"wardenbot/internal/jobs"
	"wardenbot/internal/logging"
	"wardenbot/internal/metrics"
	"wardenbot/internal/storage"
	"wardenbot/internal/transport"
	"wardenbot/internal/transport/telegram"
)

const updateQueueSize = 256

type App struct {
	cfg     *config.Config
	cfgPath string
	log     zerolog.Logger

	store     *storage.Store
	adapter   transport.Adapter
	gate      *gate.Gate
	discovery *discovery.Coordinator
	resolver  *approval.Resolver
	scheduler *jobs.Scheduler
	registry  *jobs.Registry
	router    *router
	metrics   *metrics.Server

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds the full component graph. Nothing talks to the network yet;
// that happens in Start.
func New(cfg *config.Config, cfgPath string, log zerolog.Logger) (*App, error) {
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With().Str("comp", "storage").Logger())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log.With().Str("comp", "telegram").Logger())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}

	operatorChat := transport.ChatTarget{ChatID: cfg.Telegram.OperatorID}

	registry := jobs.NewRegistry()
	registry.Register("notify", jobs.NewNotifyExecutor(adapter))
	registry.Register("noop", jobs.NewNoopExecutor())

	a := &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		log:     log,
		store:   store,
		adapter: adapter,
		gate:    gate.New(store, log.With().Str("comp", "gate").Logger()),
		discovery: discovery.New(store, adapter, operatorChat,
			log.With().Str("comp", "discovery").Logger()),
		resolver: approval.New(store, adapter, cfg.Telegram.OperatorID,
			log.With().Str("comp", "approval").Logger()),
		scheduler: jobs.NewScheduler(store, registry, cfg.PollInterval(),
			log.With().Str("comp", "scheduler").Logger()),
		registry: registry,
	}
	a.router = newRouter(a, log.With().Str("comp", "router").Logger())
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewServer(cfg.MetricsAddr(), log.With().Str("comp", "metrics").Logger())
	}
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates := make(chan transport.Update, updateQueueSize)
	if err := a.adapter.Start(runCtx, updates); err != nil {
		cancel()
		return fmt.Errorf("start adapter: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(runCtx, updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.scheduler.Run(runCtx)
	}()

	if a.metrics != nil {
		a.metrics.Start()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := config.Watch(runCtx, a.cfgPath, a.log, a.applyConfig); err != nil {
			a.log.Warn().Err(err).Msg("config watcher unavailable")
		}
	}()

	a.log.Info().Int64("operator", a.cfg.Telegram.OperatorID).
		Dur("poll_interval", a.cfg.PollInterval()).Msg("wardenbot started")
	return nil
}

// applyConfig handles live-reloadable settings. Anything structural (token,
// storage path, operator) requires a restart and is intentionally ignored.
func (a *App) applyConfig(cfg *config.Config) {
	if err := logging.SetLevel(cfg.Logging.Level); err != nil {
		a.log.Warn().Err(err).Msg("reload: bad log level")
		return
	}
	a.log.Info().Str("level", cfg.Logging.Level).Msg("log level applied")
}

func (a *App) Stop(ctx context.Context) error {
	if !a.started {
		return nil
	}
	a.started = false

	a.cancel()
	_ = a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn().Msg("shutdown timed out waiting for workers")
	case <-time.After(10 * time.Second):
		a.log.Warn().Msg("shutdown timed out waiting for workers")
	}

	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing storage")
	}
	a.log.Info().Msg("wardenbot stopped")
	return nil
}
