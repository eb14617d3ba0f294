package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/closestmatch"

	"agriscore/core"
)

const (
	// DefaultActivityLogLimit bounds UserScore.RecentActivities.
	DefaultActivityLogLimit = 50
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// ActivityResult is returned to the producer that reported an activity.
type ActivityResult struct {
	UserID                core.UserID          `json:"user_id"`
	ActivityType          core.ActivityType    `json:"activity_type"`
	PointsEarned          int64                `json:"points_earned"`
	TotalPoints           int64                `json:"total_points"`
	Level                 int                  `json:"level"`
	LevelName             string               `json:"level_name"`
	LeveledUp             bool                 `json:"leveled_up"`
	NextLevel             int                  `json:"next_level,omitempty"`
	PointsToNextLevel     int64                `json:"points_to_next_level,omitempty"`
	NewBadges             []core.EarnedBadge   `json:"new_badges"`
	CompletedAchievements []core.AchievementID `json:"completed_achievements,omitempty"`
}

// ScoreService ingests activity events and answers score, rank and catalog queries.
type ScoreService struct {
	storage   Storage
	bus       *EventBus
	catalog   core.Catalog
	rules     []core.Rule
	directory Directory
	loc       *time.Location
	now       func() time.Time
	logLimit  int
	defLimit  int
	maxLimit  int
	logger    *slog.Logger

	locks    *lockTable
	matcher  *closestmatch.ClosestMatch
	inflight sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
}

// Option configures a ScoreService.
type Option func(*ScoreService)

// WithCatalog replaces the default catalog. The catalog is copied.
func WithCatalog(c core.Catalog) Option { return func(s *ScoreService) { s.catalog = c.Clone() } }

// WithRules replaces the derivation rules run after each stat update.
func WithRules(r ...core.Rule) Option { return func(s *ScoreService) { s.rules = r } }

// WithDirectory sets the user store used to decorate leaderboard rows.
func WithDirectory(d Directory) Option { return func(s *ScoreService) { s.directory = d } }

// WithLocation fixes the time zone used for calendar-day arithmetic.
func WithLocation(loc *time.Location) Option {
	return func(s *ScoreService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ScoreService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithActivityLogLimit bounds the recent activity log.
func WithActivityLogLimit(n int) Option {
	return func(s *ScoreService) {
		if n > 0 {
			s.logLimit = n
		}
	}
}

// WithLeaderboardLimits sets the default and maximum leaderboard sizes.
func WithLeaderboardLimits(def, max int) Option {
	return func(s *ScoreService) {
		if def > 0 {
			s.defLimit = def
		}
		if max > 0 {
			s.maxLimit = max
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *ScoreService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScoreService wires storage, the event bus and the catalog together.
func NewScoreService(storage Storage, bus *EventBus, opts ...Option) (*ScoreService, error) {
	if storage == nil || bus == nil {
		panic("NewScoreService requires non-nil storage and bus")
	}
	s := &ScoreService{
		storage:  storage,
		bus:      bus,
		catalog:  core.DefaultCatalog(),
		rules:    core.DefaultRules(),
		loc:      time.UTC,
		now:      func() time.Time { return time.Now() },
		logLimit: DefaultActivityLogLimit,
		defLimit: DefaultLeaderboardLimit,
		maxLimit: MaxLeaderboardLimit,
		logger:   slog.Default(),
		locks:    newLockTable(),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.catalog.Validate(); err != nil {
		return nil, err
	}
	if s.defLimit > s.maxLimit {
		s.defLimit = s.maxLimit
	}
	names := make([]string, 0, len(core.ActivityTypes()))
	for _, t := range core.ActivityTypes() {
		names = append(names, string(t))
	}
	s.matcher = closestmatch.New(names, []int{2, 3})
	return s, nil
}

// Subscribe convenience method.
func (s *ScoreService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

// SubscribeAll registers handler for every event type.
func (s *ScoreService) SubscribeAll(handler func(context.Context, core.Event)) func() {
	return s.bus.SubscribeAll(handler)
}

// Location returns the canonical time zone for day arithmetic.
func (s *ScoreService) Location() *time.Location { return s.loc }

// Close waits for in-flight async tracking and stops the event bus.
func (s *ScoreService) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()
	s.inflight.Wait()
	s.bus.Close()
}

func (s *ScoreService) seed(user core.UserID) core.UserScore {
	return core.NewUserScore(user, s.catalog, s.now().UTC())
}

// ParseActivity validates a raw activity type and suggests the closest known
// type when it is not recognized.
func (s *ScoreService) ParseActivity(raw string) (core.ActivityType, error) {
	t, err := core.ParseActivityType(raw)
	if err != nil {
		if folded := core.ActivityType(strings.ToLower(strings.TrimSpace(raw))); folded.Valid() {
			return "", &core.InvalidActivityTypeError{Got: raw, Suggestion: folded}
		}
		if guess := s.matcher.Closest(raw); guess != "" {
			return "", &core.InvalidActivityTypeError{Got: raw, Suggestion: core.ActivityType(guess)}
		}
		return "", err
	}
	return t, nil
}

// LogActivity scores one activity event for user. Unknown activity types are
// rejected before anything is read or written. Mutations for one user are
// serialized; rules see the post-mutation record, and events are published only
// once the record is durable.
func (s *ScoreService) LogActivity(ctx context.Context, user core.UserID, activity core.ActivityType, description string) (ActivityResult, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return ActivityResult{}, err
	}
	activity, err = s.ParseActivity(string(activity))
	if err != nil {
		return ActivityResult{}, err
	}
	points, ok := s.catalog.PointsFor(activity)
	if !ok {
		return ActivityResult{}, &core.InvalidActivityTypeError{Got: string(activity)}
	}

	var (
		res      ActivityResult
		events   []core.Event
		applyErr error
	)
	// Subscribers run after unlock so a sync handler may score the same user again.
	unlock := s.locks.lock(normalized)
	now := s.now().UTC()
	stored, err := s.storage.Mutate(ctx, normalized, s.seed(normalized), func(rec *core.UserScore) error {
		res, events, applyErr = s.apply(rec, activity, points, description, now)
		return applyErr
	})
	unlock()
	if applyErr != nil {
		return ActivityResult{}, applyErr
	}
	if err != nil {
		s.logger.Error("failed to persist activity",
			"user_id", normalized, "activity_type", activity, "error", err)
		return ActivityResult{}, &PersistenceError{Op: "log activity", User: normalized, Err: err}
	}

	res.TotalPoints = stored.TotalPoints
	res.Level = stored.Level
	res.LevelName = stored.LevelName
	if next, ok := core.NextLevel(s.catalog.Levels, stored.Level); ok {
		res.NextLevel = next.Level
		res.PointsToNextLevel = next.MinPoints - stored.TotalPoints
	}
	for _, ev := range events {
		s.bus.Publish(ctx, ev)
	}
	s.logger.Debug("activity scored",
		"user_id", normalized, "activity_type", activity,
		"points", points, "total", res.TotalPoints, "new_badges", len(res.NewBadges))
	return res, nil
}

func (s *ScoreService) apply(rec *core.UserScore, activity core.ActivityType, points int64, description string, now time.Time) (ActivityResult, []core.Event, error) {
	total, err := core.AddSafe(rec.TotalPoints, points)
	if err != nil {
		return ActivityResult{}, nil, fmt.Errorf("add points: %w", err)
	}
	rec.TotalPoints = total

	change, err := core.ApplyStats(rec, activity, now, s.loc)
	if err != nil {
		return ActivityResult{}, nil, err
	}
	core.PrependActivity(rec, core.ActivityEntry{
		ID:           uuid.NewString(),
		ActivityType: activity,
		Points:       points,
		Description:  description,
		Date:         now,
	}, s.logLimit)
	if err := core.AddDailyPoints(rec, core.DayKey(now, s.loc), points); err != nil {
		return ActivityResult{}, nil, err
	}
	rec.UpdatedAt = now

	events := []core.Event{core.NewActivityLogged(rec.UserID, activity, points, rec.TotalPoints, now)}
	switch activity {
	case core.ActivityLogin:
		events = append(events, core.NewStreakUpdated(rec.UserID, activity, rec.Streaks.CurrentLoginStreak, change, now))
	case core.ActivityTaskCompleted:
		events = append(events, core.NewStreakUpdated(rec.UserID, activity, rec.Streaks.CurrentTaskStreak, change, now))
	}
	derived := core.Derive(s.rules, s.catalog, rec, now)
	events = append(events, derived...)

	res := ActivityResult{
		UserID:       rec.UserID,
		ActivityType: activity,
		PointsEarned: points,
		NewBadges:    []core.EarnedBadge{},
	}
	collectDerived(&res, derived)
	return res, events, nil
}

func collectDerived(res *ActivityResult, derived []core.Event) {
	for _, ev := range derived {
		switch ev.Type {
		case core.EventBadgeAwarded:
			if ev.Badge != nil {
				res.NewBadges = append(res.NewBadges, *ev.Badge)
			}
		case core.EventLevelUp:
			res.LeveledUp = true
		case core.EventAchievementUnlocked:
			res.CompletedAchievements = append(res.CompletedAchievements, ev.Achievement)
		}
	}
}

// GetMyScore returns a snapshot of user's record, creating it on first access.
// Rank is filled in best-effort.
func (s *ScoreService) GetMyScore(ctx context.Context, user core.UserID) (core.UserScore, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserScore{}, err
	}
	rec, err := s.storage.Load(ctx, normalized, s.seed(normalized))
	if err != nil {
		return core.UserScore{}, &PersistenceError{Op: "load score", User: normalized, Err: err}
	}
	if rank, err := s.rankOf(ctx, rec.TotalPoints); err == nil {
		rec.Rank = rank
	} else {
		s.logger.Warn("rank lookup failed", "user_id", normalized, "error", err)
	}
	return rec, nil
}

// Recompute re-derives achievements, level and badges from the stored counters,
// for example after the catalog changed. It returns the events it produced.
func (s *ScoreService) Recompute(ctx context.Context, user core.UserID) ([]core.Event, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	var events []core.Event
	unlock := s.locks.lock(normalized)
	now := s.now().UTC()
	_, err = s.storage.Mutate(ctx, normalized, s.seed(normalized), func(rec *core.UserScore) error {
		events = core.Derive(s.rules, s.catalog, rec, now)
		if len(events) > 0 {
			rec.UpdatedAt = now
		}
		return nil
	})
	unlock()
	if err != nil {
		return nil, &PersistenceError{Op: "recompute score", User: normalized, Err: err}
	}
	for _, ev := range events {
		s.bus.Publish(ctx, ev)
	}
	return events, nil
}

// BadgeCatalog returns the badge definitions.
func (s *ScoreService) BadgeCatalog() []core.BadgeDefinition {
	return append([]core.BadgeDefinition(nil), s.catalog.Badges...)
}

// LevelCatalog returns the level thresholds in ascending order.
func (s *ScoreService) LevelCatalog() []core.LevelThreshold {
	return append([]core.LevelThreshold(nil), s.catalog.Levels...)
}

// AchievementCatalog returns the achievement definitions.
func (s *ScoreService) AchievementCatalog() []core.AchievementDefinition {
	return append([]core.AchievementDefinition(nil), s.catalog.Achievements...)
}

// ActivityPoints returns the point value of every activity type.
func (s *ScoreService) ActivityPoints() map[core.ActivityType]int64 {
	return s.catalog.Clone().Points
}

// Ping checks that storage answers.
func (s *ScoreService) Ping(ctx context.Context) error {
	if p, ok := s.storage.(Pinger); ok {
		return p.Ping(ctx)
	}
	_, err := s.storage.List(ctx)
	return err
}
