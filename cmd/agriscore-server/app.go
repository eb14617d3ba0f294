package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"agriscore/adapters/jsonfile"
	mem "agriscore/adapters/memory"
	redisAdapter "agriscore/adapters/redis"
	sqlxAdapter "agriscore/adapters/sqlx"
	"agriscore/analytics"
	"agriscore/api/httpapi"
	"agriscore/config"
	"agriscore/core"
	"agriscore/engine"
	"agriscore/gamify"
	"agriscore/integrations/webhook"
	"agriscore/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Metrics *analytics.EngagementMetrics
	Service *engine.ScoreService
	Handler http.Handler
	Server  *http.Server
}

func provideConfig() (*config.Config, error) {
	if path := os.Getenv("AGRISCORE_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideLocation(cfg *config.Config) (*time.Location, error) {
	return cfg.Scoring.Location()
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideMetrics(cfg *config.Config, loc *time.Location) *analytics.EngagementMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return analytics.NewEngagementMetrics(loc)
}

func provideWebhook(cfg *config.Config, logger *slog.Logger) *webhook.Sink {
	if len(cfg.Webhooks.Endpoints) == 0 {
		return nil
	}
	types := []core.EventType{core.EventBadgeAwarded, core.EventLevelUp, core.EventAchievementUnlocked}
	if len(cfg.Webhooks.EventTypes) > 0 {
		types = types[:0]
		for _, t := range cfg.Webhooks.EventTypes {
			types = append(types, core.EventType(t))
		}
	}
	return webhook.New(cfg.Webhooks.Endpoints,
		webhook.WithClient(&http.Client{Timeout: cfg.Webhooks.Timeout}),
		webhook.WithEventTypes(types...),
		webhook.WithSecret(cfg.Webhooks.Secret),
		webhook.WithLogger(logger.With("component", "webhook")),
	)
}

func provideStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Storage, func(), error) {
	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Error("closing storage", "adapter", cfg.Storage.Adapter, "error", err)
			}
		}
	}
	return store, cleanup, nil
}

func provideService(
	cfg *config.Config,
	logger *slog.Logger,
	loc *time.Location,
	storage engine.Storage,
	hub *realtime.Hub,
	sink *webhook.Sink,
	metrics *analytics.EngagementMetrics,
) (*engine.ScoreService, func(), error) {
	opts := []gamify.Option{
		gamify.WithStorage(storage),
		gamify.WithLogger(logger),
		gamify.WithLocation(loc),
		gamify.WithRealtime(hub),
		gamify.WithDispatchMode(engine.ParseDispatchMode(cfg.Scoring.DispatchMode)),
		gamify.WithQueue(cfg.Scoring.QueueSize, cfg.Scoring.Workers),
		gamify.WithWebhook(sink),
		gamify.WithEngineOptions(
			engine.WithActivityLogLimit(cfg.Scoring.ActivityLogLimit),
			engine.WithLeaderboardLimits(cfg.Scoring.LeaderboardDefaultSize, cfg.Scoring.LeaderboardMaxSize),
		),
	}
	if metrics != nil {
		opts = append(opts, gamify.WithAnalytics(metrics))
	}
	svc, err := gamify.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := gamify.Drain(ctx, svc); err != nil {
			logger.Warn("event queue not drained before shutdown", "error", err)
		}
	}
	return svc, cleanup, nil
}

func provideHandler(cfg *config.Config, logger *slog.Logger, svc *engine.ScoreService, hub *realtime.Hub, metrics *analytics.EngagementMetrics) http.Handler {
	return httpapi.NewMux(svc, hub, metrics, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowedOrigins:   cfg.Server.CORSOrigins,
		APIKeys:          cfg.Security.APIKeys,
		JWTSecret:        cfg.Auth.JWTSecret,
		JWTIssuer:        cfg.Auth.JWTIssuer,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		RequestTimeout:   cfg.Server.RequestTimeout,
		Logger:           logger.With("component", "http"),
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}
	return newLogger(cfg.Logging, out)
}

func newLogger(lc config.LoggingConfig, out io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(lc.Level),
	}

	switch lc.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(lc.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(lc.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage creates the appropriate storage adapter based on configuration.
func setupStorage(_ context.Context, cfg *config.Config) (engine.Storage, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis)
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL)
	case "file":
		return jsonfile.New(cfg.Storage.File.Path)
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
