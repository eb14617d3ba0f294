package engine

import (
	"context"
	"fmt"
	"strings"

	"agriscore/core"
	"agriscore/leaderboard"
)

// Period selects the window a leaderboard ranks over.
type Period string

const (
	PeriodAllTime Period = "all"
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
)

// ParsePeriod accepts all/all-time/week/weekly/month/monthly; empty means all.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "all-time", "alltime":
		return PeriodAllTime, nil
	case "week", "weekly":
		return PeriodWeek, nil
	case "month", "monthly":
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Days is the window length in calendar days; zero means all time.
func (p Period) Days() int {
	switch p {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	}
	return 0
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int64       `json:"rank"`
	UserID      core.UserID `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Region      string      `json:"region,omitempty"`
	TotalPoints int64       `json:"total_points"`
	Level       int         `json:"level"`
	LevelName   string      `json:"level_name"`
	BadgeCount  int         `json:"badge_count"`
}

// RankResult answers "where do I stand".
type RankResult struct {
	UserID      core.UserID `json:"user_id"`
	Rank        int64       `json:"rank"`
	TotalPoints int64       `json:"total_points"`
	Level       int         `json:"level"`
	LevelName   string      `json:"level_name"`
}

// GetLeaderboard ranks users by points for period, highest first, ties broken by
// user id. Rank is the 1-based position. A limit of 0 selects the default; limits
// above the maximum are clamped. Windowed periods rank by points earned inside
// the window and omit users with none. The board is rebuilt from a storage
// snapshot on every call, so it may trail in-flight mutations.
func (s *ScoreService) GetLeaderboard(ctx context.Context, limit int, period Period) ([]LeaderboardEntry, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if limit == 0 {
		limit = s.defLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if period == "" {
		period = PeriodAllTime
	}
	if period.Days() == 0 && period != PeriodAllTime {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	records, err := s.storage.List(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list scores", Err: err}
	}
	today := core.DayKey(s.now(), s.loc)
	board := leaderboard.NewSkipList()
	byUser := make(map[core.UserID]core.UserScore, len(records))
	for _, rec := range records {
		score := rec.PointsSince(today, period.Days())
		if period != PeriodAllTime && score <= 0 {
			continue
		}
		board.Update(rec.UserID, score)
		byUser[rec.UserID] = rec
	}

	top := board.TopN(limit)
	ids := make([]core.UserID, 0, len(top))
	for _, e := range top {
		ids = append(ids, e.User)
	}
	profiles := s.profiles(ctx, ids)

	out := make([]LeaderboardEntry, 0, len(top))
	for i, e := range top {
		rec := byUser[e.User]
		p, ok := profiles[e.User]
		if !ok || p.DisplayName == "" {
			p.DisplayName = string(e.User)
		}
		out = append(out, LeaderboardEntry{
			Rank:        int64(i + 1),
			UserID:      e.User,
			DisplayName: p.DisplayName,
			Region:      p.Region,
			TotalPoints: e.Score,
			Level:       rec.Level,
			LevelName:   rec.LevelName,
			BadgeCount:  len(rec.Badges),
		})
	}
	return out, nil
}

func (s *ScoreService) profiles(ctx context.Context, ids []core.UserID) map[core.UserID]core.Profile {
	if s.directory == nil || len(ids) == 0 {
		return nil
	}
	profiles, err := s.directory.Profiles(ctx, ids)
	if err != nil {
		// identity join is decoration; fall back to raw ids
		s.logger.Warn("profile lookup failed", "users", len(ids), "error", err)
		return nil
	}
	return profiles
}

// GetMyRank returns the user's all-time rank: one more than the number of users
// with strictly more points. Users with equal points share a rank.
func (s *ScoreService) GetMyRank(ctx context.Context, user core.UserID) (RankResult, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return RankResult{}, err
	}
	rec, err := s.storage.Load(ctx, normalized, s.seed(normalized))
	if err != nil {
		return RankResult{}, &PersistenceError{Op: "load score", User: normalized, Err: err}
	}
	rank, err := s.rankOf(ctx, rec.TotalPoints)
	if err != nil {
		return RankResult{}, &PersistenceError{Op: "rank score", User: normalized, Err: err}
	}
	return RankResult{
		UserID:      normalized,
		Rank:        rank,
		TotalPoints: rec.TotalPoints,
		Level:       rec.Level,
		LevelName:   rec.LevelName,
	}, nil
}

func (s *ScoreService) rankOf(ctx context.Context, points int64) (int64, error) {
	if rc, ok := s.storage.(RankCounter); ok {
		above, err := rc.CountAbove(ctx, points)
		if err != nil {
			return 0, err
		}
		return above + 1, nil
	}
	records, err := s.storage.List(ctx)
	if err != nil {
		return 0, err
	}
	board := leaderboard.NewSkipList()
	for _, rec := range records {
		board.Update(rec.UserID, rec.TotalPoints)
	}
	return int64(board.CountAbove(points)) + 1, nil
}
