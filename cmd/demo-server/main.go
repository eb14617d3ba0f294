package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	mem "agriscore/adapters/memory"
	"agriscore/analytics"
	"agriscore/api/httpapi"
	"agriscore/core"
	"agriscore/engine"
	"agriscore/gamify"
	"agriscore/realtime"
)

type farmer struct {
	id      core.UserID
	profile core.Profile
	work    map[core.ActivityType]int
}

var farmers = []farmer{
	{"farmer-amina", core.Profile{DisplayName: "Amina Otieno", Region: "Kisumu"},
		map[core.ActivityType]int{core.ActivityLogin: 1, core.ActivitySoilUpload: 5, core.ActivityDiseaseUpload: 3}},
	{"farmer-joseph", core.Profile{DisplayName: "Joseph Mwangi", Region: "Nakuru"},
		map[core.ActivityType]int{core.ActivityLogin: 1, core.ActivityForumReply: 12, core.ActivityHelpfulReply: 4}},
	{"farmer-grace", core.Profile{DisplayName: "Grace Achieng", Region: "Eldoret"},
		map[core.ActivityType]int{core.ActivityLogin: 1, core.ActivityWeatherCheck: 20, core.ActivityNewsRead: 6}},
	{"farmer-peter", core.Profile{DisplayName: "Peter Kamau", Region: "Meru"},
		map[core.ActivityType]int{core.ActivityLogin: 1, core.ActivityTaskCompleted: 8, core.ActivityForumPost: 2}},
}

func main() {
	// Use readable text logging for development/demo
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	store := mem.New()
	for _, f := range farmers {
		store.PutProfile(f.id, f.profile)
	}
	hub := realtime.NewHub()
	metrics := analytics.NewEngagementMetrics(time.UTC)
	svc, err := gamify.New(
		gamify.WithStorage(store),
		gamify.WithRealtime(hub),
		gamify.WithAnalytics(metrics),
		gamify.WithDispatchMode(engine.DispatchAsync),
		gamify.WithLogger(logger),
	)
	if err != nil {
		logger.Error("building score service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := seed(context.Background(), svc); err != nil {
		logger.Error("seeding demo data", "error", err)
		os.Exit(1)
	}

	handler := httpapi.NewMux(svc, hub, metrics, httpapi.Options{
		PathPrefix:     "/api",
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})

	logger.Info("starting demo server on :8080", "farmers", len(farmers))
	srv := &http.Server{Addr: ":8080", Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, svc *engine.ScoreService) error {
	for _, f := range farmers {
		for _, t := range core.ActivityTypes() {
			for i := 0; i < f.work[t]; i++ {
				if _, err := svc.LogActivity(ctx, f.id, t, "demo seed"); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
