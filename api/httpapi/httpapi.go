package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"agriscore/analytics"
	wsadapter "agriscore/adapters/websocket"
	"agriscore/engine"
	"agriscore/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowedOrigins enables CORS for the listed origins (use "*" for any).
	AllowedOrigins []string
	// APIKeys, if non-empty, enables static API key auth via X-API-Key or, when
	// JWT identity is off, Authorization: Bearer.
	APIKeys []string
	// JWTSecret, if set, makes caller identity come from an HS256 bearer token's
	// sub claim instead of the X-User-ID header.
	JWTSecret string
	// JWTIssuer, if set, is required in the iss claim.
	JWTIssuer string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// RequestTimeout bounds non-streaming handlers; zero disables it.
	RequestTimeout time.Duration
	// Logger receives access and error logs.
	Logger *slog.Logger
}

type api struct {
	svc      *engine.ScoreService
	metrics  *analytics.EngagementMetrics
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewMux builds an http.Handler exposing the scoring REST API and WebSocket stream.
// Routes (all under PathPrefix):
//   - POST /activities                  score an activity for the caller
//   - POST /users/{id}/activities       score an activity on behalf of a user
//   - GET  /scores/me, /scores/me/rank
//   - GET  /users/{id}/score, /users/{id}/rank
//   - GET  /leaderboard?limit=&period=
//   - GET  /catalog/{badges,levels,achievements,activities}
//   - GET  /stats/engagement
//   - GET  /healthz
//   - WS   /ws
func NewMux(svc *engine.ScoreService, hub *realtime.Hub, metrics *analytics.EngagementMetrics, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{
		svc:      svc,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
	ident := newIdentifier(opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-User-ID"},
			ExposedHeaders: []string{middleware.RequestIDHeader},
		}).Handler)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", a.health)

		r.Group(func(r chi.Router) {
			if len(opts.APIKeys) > 0 {
				r.Use(withAPIKeyAuth(opts.APIKeys, opts.JWTSecret == ""))
			}
			if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
				r.Use(withRateLimit(opts.RateLimitRPM, opts.RateLimitBurst, opts.JWTSecret == ""))
			}
			r.Use(ident.middleware)

			if hub != nil {
				r.Handle("/ws", wsadapter.Handler(hub, wsadapter.WithUserResolver(callerFromRequest)))
			}

			r.Group(func(r chi.Router) {
				if opts.RequestTimeout > 0 {
					r.Use(middleware.Timeout(opts.RequestTimeout))
				}
				r.With(requireCaller).Post("/activities", a.logMyActivity)
				r.Post("/users/{id}/activities", a.logUserActivity)
				r.With(requireCaller).Get("/scores/me", a.myScore)
				r.With(requireCaller).Get("/scores/me/rank", a.myRank)
				r.Get("/users/{id}/score", a.userScore)
				r.Get("/users/{id}/rank", a.userRank)
				r.Get("/leaderboard", a.leaderboard)
				r.Route("/catalog", func(r chi.Router) {
					r.Get("/badges", a.badgeCatalog)
					r.Get("/levels", a.levelCatalog)
					r.Get("/achievements", a.achievementCatalog)
					r.Get("/activities", a.activityCatalog)
				})
				if metrics != nil {
					r.Get("/stats/engagement", a.engagement)
				}
			})
		})
	}

	prefix := trimPrefix(opts.PathPrefix)
	if prefix == "" {
		routes(r)
	} else {
		r.Route(prefix, routes)
	}
	return r
}

func trimPrefix(prefix string) string {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return prefix
}
