package gamify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "agriscore/adapters/memory"
	"agriscore/analytics"
	"agriscore/core"
	"agriscore/engine"
	"agriscore/integrations/webhook"
	"agriscore/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	store := mem.New()
	store.PutProfile("alice", core.Profile{DisplayName: "Alice Wanjiru", Region: "Nakuru"})
	svc, err := New(
		WithRealtime(hub),
		WithStorage(store),
		WithDispatchMode(engine.DispatchSync),
	)
	require.NoError(t, err)

	_, ch := hub.Subscribe(8, realtime.Filter{UserID: "alice"})
	res, err := svc.LogActivity(context.Background(), "alice", core.ActivityLogin, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.TotalPoints)

	ev := <-ch
	assert.Equal(t, core.UserID("alice"), ev.UserID)

	board, err := svc.GetLeaderboard(context.Background(), 0, engine.PeriodAllTime)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "Alice Wanjiru", board[0].DisplayName, "storage doubles as directory")
	assert.Equal(t, "Nakuru", board[0].Region)
}

func TestInMemoryFallback(t *testing.T) {
	svc, err := New()
	require.NoError(t, err)
	_, err = svc.LogActivity(context.Background(), "bob", core.ActivityNewsRead, "")
	require.NoError(t, err)
	require.NoError(t, Drain(context.Background(), svc))

	score, err := svc.GetMyScore(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), score.TotalPoints)
}

func TestInvalidCatalogRejected(t *testing.T) {
	cat := core.DefaultCatalog()
	cat.Levels = nil
	_, err := New(WithCatalog(cat))
	assert.ErrorIs(t, err, core.ErrInvalidCatalog)
}

func TestWebhookAndAnalyticsWiring(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev core.Event
		if json.NewDecoder(r.Body).Decode(&ev) == nil && ev.Type == core.EventActivityLogged {
			delivered.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	metrics := analytics.NewEngagementMetrics(time.UTC)
	svc, err := New(
		WithWebhook(webhook.New([]string{srv.URL}, webhook.WithEventTypes(core.EventActivityLogged))),
		WithAnalytics(metrics),
		WithQueue(64, 2),
	)
	require.NoError(t, err)

	for _, u := range []core.UserID{"a", "b", "c"} {
		_, err := svc.LogActivity(context.Background(), u, core.ActivityWeatherCheck, "")
		require.NoError(t, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Drain(ctx, svc))

	assert.Equal(t, int32(3), delivered.Load())
	report := metrics.Snapshot(time.Now(), 0)
	assert.Equal(t, 3, report.DailyActiveUsers)
	assert.Equal(t, int64(9), report.PointsToday)
}
