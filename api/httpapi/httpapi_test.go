package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "agriscore/adapters/memory"
	"agriscore/analytics"
	"agriscore/core"
	"agriscore/engine"
)

func newTestService(t *testing.T, store engine.Storage) *engine.ScoreService {
	t.Helper()
	svc, err := engine.NewScoreService(store, engine.NewEventBus(engine.DispatchSync))
	require.NoError(t, err)
	return svc
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestLogActivityForCaller(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{PathPrefix: "/api"})

	rec := do(t, h, http.MethodPost, "/api/activities", `{"activity_type":"soil_upload","description":"plot 4"}`,
		map[string]string{UserHeader: "farmer-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res engine.ActivityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, core.UserID("farmer-1"), res.UserID)
	assert.Equal(t, int64(30), res.PointsEarned)
	assert.Equal(t, int64(30), res.TotalPoints)
	assert.Equal(t, "Beginner Farmer", res.LevelName)
}

func TestLogActivityRequiresCaller(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{})

	rec := do(t, h, http.MethodPost, "/activities", `{"activity_type":"login"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)
}

func TestLogActivityInvalidType(t *testing.T) {
	store := mem.New()
	h := NewMux(newTestService(t, store), nil, nil, Options{})

	rec := do(t, h, http.MethodPost, "/users/farmer-1/activities", `{"activity_type":"soil_uplod"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "invalid_activity_type", e.Code)
	assert.Equal(t, map[string]any{"suggestion": "soil_upload"}, e.Details)
	assert.NotEmpty(t, e.RequestID)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLogActivityValidation(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{})

	rec := do(t, h, http.MethodPost, "/users/farmer-1/activities", `{"description":"no type"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "invalid_request", e.Code)
	assert.Equal(t, map[string]any{"activity_type": "required"}, e.Details)

	rec = do(t, h, http.MethodPost, "/users/farmer-1/activities", `{"activity_type":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/users/farmer-1/activities", `{"activity_type":"login","points":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")
}

func TestBlankUserRejected(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{})

	rec := do(t, h, http.MethodGet, "/users/%20/score", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_user", decodeError(t, rec).Code)
}

type downStore struct{ *mem.Store }

func (downStore) Mutate(context.Context, core.UserID, core.UserScore, func(*core.UserScore) error) (core.UserScore, error) {
	return core.UserScore{}, errors.New("connection refused")
}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestPersistenceFailureIsRetryable(t *testing.T) {
	h := NewMux(newTestService(t, downStore{mem.New()}), nil, nil, Options{})

	rec := do(t, h, http.MethodPost, "/users/farmer-1/activities", `{"activity_type":"login"}`, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "persistence_unavailable", decodeError(t, rec).Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScoreAndRank(t *testing.T) {
	svc := newTestService(t, mem.New())
	h := NewMux(svc, nil, nil, Options{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.LogActivity(ctx, "amina", core.ActivitySoilUpload, "")
		require.NoError(t, err)
	}
	_, err := svc.LogActivity(ctx, "joseph", core.ActivityLogin, "")
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/scores/me", "", map[string]string{UserHeader: "joseph"})
	require.Equal(t, http.StatusOK, rec.Code)
	var score core.UserScore
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &score))
	assert.Equal(t, int64(5), score.TotalPoints)
	assert.Equal(t, int64(2), score.Rank)

	rec = do(t, h, http.MethodGet, "/users/amina/rank", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rank engine.RankResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rank))
	assert.Equal(t, int64(1), rank.Rank)
	assert.Equal(t, int64(90), rank.TotalPoints)

	rec = do(t, h, http.MethodGet, "/scores/me/rank", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLeaderboard(t *testing.T) {
	svc := newTestService(t, mem.New())
	h := NewMux(svc, nil, nil, Options{})
	ctx := context.Background()
	_, err := svc.LogActivity(ctx, "a", core.ActivityLogin, "")
	require.NoError(t, err)
	_, err = svc.LogActivity(ctx, "b", core.ActivitySoilUpload, "")
	require.NoError(t, err)
	_, err = svc.LogActivity(ctx, "c", core.ActivityForumPost, "")
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/leaderboard?limit=2&period=weekly", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Period  engine.Period             `json:"period"`
		Entries []engine.LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, engine.PeriodWeek, body.Period)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, core.UserID("b"), body.Entries[0].UserID)
	assert.Equal(t, core.UserID("c"), body.Entries[1].UserID)
	assert.Equal(t, int64(2), body.Entries[1].Rank)
	assert.Equal(t, "c", body.Entries[1].DisplayName)

	rec = do(t, h, http.MethodGet, "/leaderboard?period=yearly", "", nil)
	assert.Equal(t, "invalid_period", decodeError(t, rec).Code)
	rec = do(t, h, http.MethodGet, "/leaderboard?limit=-1", "", nil)
	assert.Equal(t, "invalid_limit", decodeError(t, rec).Code)
	rec = do(t, h, http.MethodGet, "/leaderboard?limit=ten", "", nil)
	assert.Equal(t, "invalid_limit", decodeError(t, rec).Code)
}

func TestCatalogRoutes(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{PathPrefix: "/api/"})

	rec := do(t, h, http.MethodGet, "/api/catalog/levels", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var levels []core.LevelThreshold
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &levels))
	require.Len(t, levels, 8)
	assert.Equal(t, "Farming Legend", levels[7].Name)

	rec = do(t, h, http.MethodGet, "/api/catalog/activities", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var points map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &points))
	assert.Equal(t, int64(20), points["disease_upload"])

	for _, path := range []string{"/api/catalog/badges", "/api/catalog/achievements"} {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, path, "", nil).Code, path)
	}

	rec = do(t, h, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestEngagementStats(t *testing.T) {
	svc := newTestService(t, mem.New())
	metrics := analytics.NewEngagementMetrics(svc.Location())
	svc.Subscribe(core.EventActivityLogged, metrics.OnEvent)
	h := NewMux(svc, nil, metrics, Options{})

	do(t, h, http.MethodPost, "/users/a/activities", `{"activity_type":"login"}`, nil)
	do(t, h, http.MethodPost, "/users/b/activities", `{"activity_type":"news_read"}`, nil)

	rec := do(t, h, http.MethodGet, "/stats/engagement", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report analytics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.DailyActiveUsers)
	assert.Equal(t, int64(7), report.PointsToday)

	h = NewMux(svc, nil, nil, Options{})
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/stats/engagement", "", nil).Code)
}

func TestJWTIdentity(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{JWTSecret: "s3cret", JWTIssuer: "agriscore-auth"})

	tok, err := IssueToken("s3cret", "agriscore-auth", "farmer-7")
	require.NoError(t, err)
	rec := do(t, h, http.MethodPost, "/activities", `{"activity_type":"weather_check"}`,
		map[string]string{"Authorization": "Bearer " + tok})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res engine.ActivityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, core.UserID("farmer-7"), res.UserID)

	// header identity is ignored once tokens are required
	rec = do(t, h, http.MethodGet, "/scores/me", "", map[string]string{UserHeader: "farmer-7"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := IssueToken("other", "agriscore-auth", "farmer-7")
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/scores/me", "", map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	wrongIssuer, err := IssueToken("s3cret", "someone-else", "farmer-7")
	require.NoError(t, err)
	rec = do(t, h, http.MethodGet, "/scores/me", "", map[string]string{"Authorization": "Bearer " + wrongIssuer})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{APIKeys: []string{"k1", " "}})

	rec := do(t, h, http.MethodGet, "/leaderboard", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing API key", decodeError(t, rec).Message)

	rec = do(t, h, http.MethodGet, "/leaderboard", "", map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/leaderboard", "", map[string]string{"X-API-Key": "k1"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/leaderboard", "", map[string]string{"Authorization": "Bearer k1"}).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code, "health is public")
}

func TestAPIKeyWithJWTUsesHeaderOnly(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{APIKeys: []string{"k1"}, JWTSecret: "s3cret"})
	tok, err := IssueToken("s3cret", "", "farmer-1")
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/scores/me", "", map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/scores/me", "", map[string]string{"Authorization": "Bearer " + tok, "X-API-Key": "k1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   2,
	})
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/catalog/levels", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/catalog/levels", "", nil).Code)
	rec := do(t, h, http.MethodGet, "/catalog/levels", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewMux(newTestService(t, mem.New()), nil, nil, Options{AllowedOrigins: []string{"https://app.example.org"}})

	req := httptest.NewRequest(http.MethodOptions, "/activities", nil)
	req.Header.Set("Origin", "https://app.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterRefill(t *testing.T) {
	l := newRateLimiter(60, 1)
	now := l.now()
	l.now = func() time.Time { return now }
	assert.True(t, l.allow("k"))
	assert.False(t, l.allow("k"))
	now = now.Add(2 * time.Second)
	assert.True(t, l.allow("k"))
}
