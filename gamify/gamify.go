// Package gamify assembles a ready-to-use ScoreService from storage, event
// dispatch and optional sinks.
package gamify

import (
	"context"
	"log/slog"
	"time"

	mem "agriscore/adapters/memory"
	"agriscore/analytics"
	"agriscore/core"
	"agriscore/engine"
	"agriscore/integrations/webhook"
	"agriscore/realtime"
)

// Option configures the service builder.
type Option func(*config)

type config struct {
	storage   engine.Storage
	mode      engine.DispatchMode
	busOpts   []engine.BusOption
	svcOpts   []engine.Option
	directory engine.Directory
	hub       *realtime.Hub
	sinks     []*webhook.Sink
	hooks     []analytics.Hook
	logger    *slog.Logger
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithQueue sizes the async dispatch queue and worker pool.
func WithQueue(size, workers int) Option {
	return func(c *config) {
		c.busOpts = append(c.busOpts, engine.WithQueueSize(size), engine.WithWorkers(workers))
	}
}

// WithCatalog replaces the default catalog.
func WithCatalog(cat core.Catalog) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, engine.WithCatalog(cat)) }
}

// WithRules replaces the derivation rules.
func WithRules(rules ...core.Rule) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, engine.WithRules(rules...)) }
}

// WithLocation sets the zone used for day boundaries.
func WithLocation(loc *time.Location) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, engine.WithLocation(loc)) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, engine.WithClock(now)) }
}

// WithEngineOptions passes options straight to engine.NewScoreService.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(c *config) { c.svcOpts = append(c.svcOpts, opts...) }
}

// WithDirectory sets where leaderboard display names come from. By default the
// storage is used when it can serve profiles.
func WithDirectory(d engine.Directory) Option { return func(c *config) { c.directory = d } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithWebhook forwards events to an HTTP sink.
func WithWebhook(s *webhook.Sink) Option {
	return func(c *config) {
		if s != nil {
			c.sinks = append(c.sinks, s)
		}
	}
}

// WithAnalytics feeds every event into the given hooks.
func WithAnalytics(hooks ...analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, hooks...) }
}

// WithLogger sets the logger for the service and its event bus.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured ScoreService. If not provided, defaults are used:
//   - storage: in-memory
//   - catalog: core.DefaultCatalog
//   - dispatch: async
func New(opts ...Option) (*engine.ScoreService, error) {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		cfg.storage = mem.New()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.directory == nil {
		if d, ok := cfg.storage.(engine.Directory); ok {
			cfg.directory = d
		}
	}

	bus := engine.NewEventBus(cfg.mode, append(cfg.busOpts, engine.WithBusLogger(cfg.logger))...)
	svcOpts := append([]engine.Option{engine.WithLogger(cfg.logger)}, cfg.svcOpts...)
	if cfg.directory != nil {
		svcOpts = append(svcOpts, engine.WithDirectory(cfg.directory))
	}
	svc, err := engine.NewScoreService(cfg.storage, bus, svcOpts...)
	if err != nil {
		bus.Close()
		return nil, err
	}

	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	for _, s := range cfg.sinks {
		bus.SubscribeAll(s.OnEvent)
	}
	if len(cfg.hooks) > 0 {
		analytics.Attach(bus, analytics.NewBridge(cfg.hooks...))
	}
	return svc, nil
}

// Drain blocks until ctx is done or svc has delivered every queued event.
func Drain(ctx context.Context, svc *engine.ScoreService) error {
	done := make(chan struct{})
	go func() {
		svc.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
