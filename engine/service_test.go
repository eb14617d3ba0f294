package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "agriscore/adapters/memory"
	"agriscore/core"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// flakyStore fails every Mutate while fail is set, after running fn on a scratch copy.
type flakyStore struct {
	*mem.Store
	fail atomic.Bool
}

func (f *flakyStore) Mutate(ctx context.Context, user core.UserID, seed core.UserScore, fn func(*core.UserScore) error) (core.UserScore, error) {
	if f.fail.Load() {
		scratch := seed.Clone()
		_ = fn(&scratch)
		return core.UserScore{}, errors.New("disk full")
	}
	return f.Store.Mutate(ctx, user, seed, fn)
}

type brokenDirectory struct{}

func (brokenDirectory) Profiles(context.Context, []core.UserID) (map[core.UserID]core.Profile, error) {
	return nil, errors.New("user service down")
}

func newService(t *testing.T, store Storage, clock *testClock, opts ...Option) *ScoreService {
	t.Helper()
	opts = append([]Option{WithClock(clock.now)}, opts...)
	svc, err := NewScoreService(store, NewEventBus(DispatchSync), opts...)
	require.NoError(t, err)
	return svc
}

func TestPointsPerActivity(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	ctx := context.Background()
	want := map[core.ActivityType]int64{
		core.ActivityLogin: 5, core.ActivityTaskCompleted: 15, core.ActivityDiseaseUpload: 20,
		core.ActivitySoilUpload: 30, core.ActivityWeatherCheck: 3, core.ActivityForumPost: 10,
		core.ActivityForumReply: 8, core.ActivityHelpfulReply: 15, core.ActivityNewsRead: 2,
	}
	var total int64
	for _, typ := range core.ActivityTypes() {
		res, err := svc.LogActivity(ctx, "farmer", typ, "")
		require.NoError(t, err)
		assert.Equal(t, want[typ], res.PointsEarned, typ)
		total += want[typ]
		assert.Equal(t, total, res.TotalPoints)
	}
	assert.Equal(t, want, svc.ActivityPoints())
}

func TestLogActivityRequiresExactType(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock())
	ctx := context.Background()

	for raw, want := range map[core.ActivityType]core.ActivityType{
		"LOGIN":           core.ActivityLogin,
		" Weather_Check ": core.ActivityWeatherCheck,
	} {
		_, err := svc.LogActivity(ctx, "farmer", raw, "")
		require.ErrorIs(t, err, core.ErrInvalidActivityType)
		var typed *core.InvalidActivityTypeError
		require.True(t, errors.As(err, &typed))
		assert.Equal(t, want, typed.Suggestion)
	}
	all, _ := store.List(ctx)
	assert.Empty(t, all)
}

func TestInvalidActivityLeavesNoTrace(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock())
	var events int
	svc.bus.SubscribeAll(func(context.Context, core.Event) { events++ })

	_, err := svc.LogActivity(context.Background(), "farmer", "soil_uplod", "")
	require.ErrorIs(t, err, core.ErrInvalidActivityType)
	var typed *core.InvalidActivityTypeError
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, core.ActivitySoilUpload, typed.Suggestion)

	all, _ := store.List(context.Background())
	assert.Empty(t, all)
	assert.Zero(t, events)
}

func TestEmptyUserRejected(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	_, err := svc.LogActivity(context.Background(), "  ", core.ActivityLogin, "")
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
	_, err = svc.GetMyScore(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
}

func TestLoginStreakAcrossDays(t *testing.T) {
	clock := newClock()
	svc := newService(t, mem.New(), clock)
	ctx := context.Background()
	log := func() {
		_, err := svc.LogActivity(ctx, "farmer", core.ActivityLogin, "")
		require.NoError(t, err)
	}

	log()
	clock.advance(24 * time.Hour)
	log()
	clock.advance(2 * time.Hour)
	log() // same day
	clock.advance(48 * time.Hour)
	log() // skipped a day

	score, err := svc.GetMyScore(ctx, "farmer")
	require.NoError(t, err)
	assert.Equal(t, int64(4), score.Stats.TotalLogins)
	assert.Equal(t, int64(1), score.Streaks.CurrentLoginStreak)
	assert.Equal(t, int64(2), score.Streaks.LongestLoginStreak)
	assert.Equal(t, score.Streaks.CurrentLoginStreak, score.Stats.ConsecutiveLogins)
	require.NotNil(t, score.Stats.LastLoginDate)
	assert.True(t, score.Stats.LastLoginDate.Equal(clock.now()))
}

func TestLevelUpBadgeAndAchievement(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	ctx := context.Background()
	var seen []core.EventType
	svc.bus.SubscribeAll(func(_ context.Context, e core.Event) { seen = append(seen, e.Type) })

	var res ActivityResult
	var err error
	for i := 1; i <= 3; i++ {
		res, err = svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
		require.NoError(t, err)
		assert.False(t, res.LeveledUp)
	}

	res, err = svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, "Learning Farmer", res.LevelName)
	assert.Empty(t, res.NewBadges)

	seen = nil
	res, err = svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
	require.NoError(t, err)
	require.Len(t, res.NewBadges, 1)
	assert.Equal(t, core.BadgeID("soil_expert"), res.NewBadges[0].BadgeID)
	assert.Equal(t, []core.AchievementID{core.AchievementSoilExpert}, res.CompletedAchievements)
	assert.Equal(t, []core.EventType{core.EventActivityLogged, core.EventAchievementUnlocked, core.EventBadgeAwarded}, seen)

	res, err = svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
	require.NoError(t, err)
	assert.Empty(t, res.NewBadges, "badge is issued once")
	assert.NotNil(t, res.NewBadges)

	score, _ := svc.GetMyScore(ctx, "farmer")
	assert.Len(t, score.Badges, 1)
	assert.True(t, score.Achievements.SoilExpert.Completed)
	assert.Equal(t, int64(6), score.Stats.SoilReportsUploaded)
}

func TestActivityLogBounded(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	ctx := context.Background()
	for i := 0; i < 51; i++ {
		_, err := svc.LogActivity(ctx, "farmer", core.ActivityNewsRead, fmt.Sprintf("article %d", i))
		require.NoError(t, err)
	}
	score, _ := svc.GetMyScore(ctx, "farmer")
	require.Len(t, score.RecentActivities, DefaultActivityLogLimit)
	assert.Equal(t, "article 50", score.RecentActivities[0].Description)
	assert.Equal(t, "article 1", score.RecentActivities[49].Description)
	assert.Equal(t, int64(102), score.TotalPoints)
}

func TestConcurrentActivitiesForOneUser(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.LogActivity(ctx, "farmer", core.ActivityTaskCompleted, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	score, _ := svc.GetMyScore(ctx, "farmer")
	assert.Equal(t, int64(40*15), score.TotalPoints)
	assert.Equal(t, int64(40), score.Stats.TasksCompleted)
	assert.Len(t, score.RecentActivities, 40)
	assert.Zero(t, svc.locks.size())
}

func TestPersistenceFailureIsAllOrNothing(t *testing.T) {
	store := &flakyStore{Store: mem.New()}
	svc := newService(t, store, newClock())
	ctx := context.Background()
	var events int
	svc.bus.SubscribeAll(func(context.Context, core.Event) { events++ })

	_, err := svc.LogActivity(ctx, "farmer", core.ActivityLogin, "")
	require.NoError(t, err)
	before := events

	store.fail.Store(true)
	_, err = svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
	require.ErrorIs(t, err, ErrPersistence)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Retryable())
	assert.Equal(t, before, events, "no events for an unpersisted mutation")

	score, _ := store.Load(ctx, "farmer", core.UserScore{})
	assert.Equal(t, int64(5), score.TotalPoints)
	assert.Zero(t, score.Stats.SoilReportsUploaded)
	assert.Len(t, score.RecentActivities, 1)
}

func TestEventsSeeDurableState(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock())
	ctx := context.Background()
	var observed int64
	svc.Subscribe(core.EventActivityLogged, func(ctx context.Context, e core.Event) {
		rec, _ := store.Load(ctx, e.UserID, core.UserScore{})
		observed = rec.TotalPoints
	})
	_, err := svc.LogActivity(ctx, "farmer", core.ActivityForumPost, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), observed)
}

func setPoints(t *testing.T, store *mem.Store, points map[core.UserID]int64) {
	t.Helper()
	for user, pts := range points {
		pts := pts
		_, err := store.Mutate(context.Background(), user, core.NewUserScore(user, core.DefaultCatalog(), time.Now()),
			func(rec *core.UserScore) error {
				rec.TotalPoints = pts
				rec.Level = core.LevelFor(core.DefaultCatalog().Levels, pts).Level
				return nil
			})
		require.NoError(t, err)
	}
}

func TestLeaderboardOrderAndRank(t *testing.T) {
	store := mem.New()
	store.PutProfile("A", core.Profile{DisplayName: "Amina", Region: "Kaduna"})
	svc := newService(t, store, newClock(), WithDirectory(store))
	ctx := context.Background()
	setPoints(t, store, map[core.UserID]int64{"A": 500, "B": 900, "C": 200})

	board, err := svc.GetLeaderboard(ctx, 10, PeriodAllTime)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, core.UserID("B"), board[0].UserID)
	assert.Equal(t, core.UserID("A"), board[1].UserID)
	assert.Equal(t, core.UserID("C"), board[2].UserID)
	for i, e := range board {
		assert.Equal(t, int64(i+1), e.Rank)
	}
	assert.Equal(t, "Amina", board[1].DisplayName)
	assert.Equal(t, "Kaduna", board[1].Region)
	assert.Equal(t, "B", board[0].DisplayName)
	assert.Equal(t, 4, board[1].Level)

	rank, err := svc.GetMyRank(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank.Rank)
	assert.Equal(t, int64(500), rank.TotalPoints)

	top, err := svc.GetLeaderboard(ctx, 2, "")
	require.NoError(t, err)
	assert.Len(t, top, 2)

	score, _ := svc.GetMyScore(ctx, "C")
	assert.Equal(t, int64(3), score.Rank)
}

func TestTiedUsersShareRank(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock())
	setPoints(t, store, map[core.UserID]int64{"x": 100, "y": 100, "z": 300})
	for _, u := range []core.UserID{"x", "y"} {
		r, err := svc.GetMyRank(context.Background(), u)
		require.NoError(t, err)
		assert.Equal(t, int64(2), r.Rank)
	}
}

func TestLeaderboardLimits(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock(), WithLeaderboardLimits(2, 3))
	points := map[core.UserID]int64{}
	for i := 0; i < 5; i++ {
		points[core.UserID(fmt.Sprintf("u%d", i))] = int64(i * 10)
	}
	setPoints(t, store, points)
	ctx := context.Background()

	def, err := svc.GetLeaderboard(ctx, 0, PeriodAllTime)
	require.NoError(t, err)
	assert.Len(t, def, 2)

	clamped, err := svc.GetLeaderboard(ctx, 50, PeriodAllTime)
	require.NoError(t, err)
	assert.Len(t, clamped, 3)

	_, err = svc.GetLeaderboard(ctx, -1, PeriodAllTime)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = svc.GetLeaderboard(ctx, 5, Period("decade"))
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestWindowedLeaderboard(t *testing.T) {
	clock := newClock()
	svc := newService(t, mem.New(), clock)
	ctx := context.Background()

	_, err := svc.LogActivity(ctx, "veteran", core.ActivitySoilUpload, "")
	require.NoError(t, err)
	clock.advance(10 * 24 * time.Hour)
	_, err = svc.LogActivity(ctx, "newcomer", core.ActivityLogin, "")
	require.NoError(t, err)

	week, err := svc.GetLeaderboard(ctx, 10, PeriodWeek)
	require.NoError(t, err)
	require.Len(t, week, 1)
	assert.Equal(t, core.UserID("newcomer"), week[0].UserID)
	assert.Equal(t, int64(5), week[0].TotalPoints)

	month, err := svc.GetLeaderboard(ctx, 10, PeriodMonth)
	require.NoError(t, err)
	require.Len(t, month, 2)
	assert.Equal(t, core.UserID("veteran"), month[0].UserID)
}

func TestLeaderboardFallsBackWhenDirectoryFails(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock(), WithDirectory(brokenDirectory{}))
	setPoints(t, store, map[core.UserID]int64{"amina": 10})
	board, err := svc.GetLeaderboard(context.Background(), 10, PeriodAllTime)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "amina", board[0].DisplayName)
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{
		"": PeriodAllTime, "all": PeriodAllTime, "All-Time": PeriodAllTime,
		"week": PeriodWeek, "weekly": PeriodWeek, "month": PeriodMonth, "monthly": PeriodMonth,
	} {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParsePeriod("year")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestGetMyScoreCreatesRecord(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock())
	score, err := svc.GetMyScore(context.Background(), "newbie")
	require.NoError(t, err)
	assert.Zero(t, score.TotalPoints)
	assert.Equal(t, 1, score.Level)
	assert.Equal(t, int64(1), score.Rank)
	assert.Empty(t, score.Badges)
}

func TestTrackDegradesSoftly(t *testing.T) {
	store := &flakyStore{Store: mem.New()}
	svc := newService(t, store, newClock())
	ctx := context.Background()

	out := svc.Track(ctx, "farmer", "plant_tree", "")
	assert.False(t, out.Scored())
	assert.False(t, out.Retryable())

	store.fail.Store(true)
	out = svc.Track(ctx, "farmer", core.ActivityLogin, "")
	assert.False(t, out.Scored())
	assert.True(t, out.Retryable())

	store.fail.Store(false)
	out = svc.Track(ctx, "farmer", core.ActivityLogin, "")
	assert.True(t, out.Scored())
	assert.Equal(t, int64(5), out.Result.TotalPoints)
}

func TestTrackAsyncDetachedFromCaller(t *testing.T) {
	store := mem.New()
	svc := newService(t, store, newClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := <-svc.TrackAsync(ctx, "farmer", core.ActivityWeatherCheck, "")
	require.True(t, out.Scored())

	for i := 0; i < 10; i++ {
		svc.TrackAsync(context.Background(), "farmer", core.ActivityWeatherCheck, "")
	}
	svc.Close()
	score, _ := store.Load(context.Background(), "farmer", core.UserScore{})
	assert.Equal(t, int64(11*3), score.TotalPoints)
}

func TestRecomputeAfterCatalogChange(t *testing.T) {
	store := mem.New()
	clock := newClock()
	svc := newService(t, store, clock)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
		require.NoError(t, err)
	}

	cat := core.DefaultCatalog()
	for i := range cat.Badges {
		if cat.Badges[i].ID == "soil_expert" {
			cat.Badges[i].Threshold = 2
		}
	}
	svc2 := newService(t, store, clock, WithCatalog(cat))
	events, err := svc2.Recompute(ctx, "farmer")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventBadgeAwarded, events[0].Type)

	again, err := svc2.Recompute(ctx, "farmer")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestInvalidCatalogRejected(t *testing.T) {
	cat := core.DefaultCatalog()
	cat.Levels = nil
	_, err := NewScoreService(mem.New(), NewEventBus(DispatchSync), WithCatalog(cat))
	assert.ErrorIs(t, err, core.ErrInvalidCatalog)
}

func TestPing(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestSyncSubscriberMayScoreSameUser(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	ctx := context.Background()

	var bonus atomic.Int32
	svc.Subscribe(core.EventBadgeAwarded, func(ctx context.Context, e core.Event) {
		_, err := svc.LogActivity(ctx, e.UserID, core.ActivityNewsRead, "badge bonus")
		if err == nil {
			bonus.Add(1)
		}
	})

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			if _, err := svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, ""); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("LogActivity blocked while a subscriber scored the same user")
	}

	assert.Equal(t, int32(1), bonus.Load())
	score, err := svc.GetMyScore(ctx, "farmer")
	require.NoError(t, err)
	assert.Equal(t, int64(5*30+2), score.TotalPoints)
	assert.Zero(t, svc.locks.size())
}

func TestTrackAsyncAfterClose(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	svc.Close()

	out := <-svc.TrackAsync(context.Background(), "farmer", core.ActivityLogin, "")
	require.ErrorIs(t, out.Err, ErrClosed)
	assert.False(t, out.Scored())
	assert.False(t, out.Retryable())
}

func TestActivityResultReportsNextLevel(t *testing.T) {
	svc := newService(t, mem.New(), newClock())
	ctx := context.Background()

	res, err := svc.LogActivity(ctx, "farmer", core.ActivitySoilUpload, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.NextLevel)
	assert.Equal(t, int64(70), res.PointsToNextLevel)

	single := core.DefaultCatalog()
	single.Levels = single.Levels[:1]
	svc2 := newService(t, mem.New(), newClock(), WithCatalog(single))
	res, err = svc2.LogActivity(ctx, "farmer", core.ActivityLogin, "")
	require.NoError(t, err)
	assert.Zero(t, res.NextLevel)
	assert.Zero(t, res.PointsToNextLevel)
}
