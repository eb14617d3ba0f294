// Package analytics aggregates engagement KPIs from scoring events.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agriscore/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(ctx context.Context, e core.Event)
}

// EngagementMetrics keeps running engagement counters. Activity is bucketed by
// calendar day, ISO week and month in the configured zone.
type EngagementMetrics struct {
	mu  sync.RWMutex
	loc *time.Location

	dailyActive   map[string]map[core.UserID]struct{}
	weeklyActive  map[string]map[core.UserID]struct{}
	monthlyActive map[string]map[core.UserID]struct{}

	pointsByDay      map[string]int64
	pointsByActivity map[core.ActivityType]int64
	activityCounts   map[core.ActivityType]int64

	badgesByDay  map[string]int64
	badgesByID   map[core.BadgeID]int64
	badgeHolders map[core.BadgeID]map[core.UserID]struct{}

	levelsReached map[int]int64
	achievements  map[core.AchievementID]int64
	streakResets  int64
}

func NewEngagementMetrics(loc *time.Location) *EngagementMetrics {
	if loc == nil {
		loc = time.UTC
	}
	return &EngagementMetrics{
		loc:              loc,
		dailyActive:      make(map[string]map[core.UserID]struct{}),
		weeklyActive:     make(map[string]map[core.UserID]struct{}),
		monthlyActive:    make(map[string]map[core.UserID]struct{}),
		pointsByDay:      make(map[string]int64),
		pointsByActivity: make(map[core.ActivityType]int64),
		activityCounts:   make(map[core.ActivityType]int64),
		badgesByDay:      make(map[string]int64),
		badgesByID:       make(map[core.BadgeID]int64),
		badgeHolders:     make(map[core.BadgeID]map[core.UserID]struct{}),
		levelsReached:    make(map[int]int64),
		achievements:     make(map[core.AchievementID]int64),
	}
}

func (m *EngagementMetrics) OnEvent(_ context.Context, e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := core.DayKey(e.Time, m.loc)
	switch e.Type {
	case core.EventActivityLogged:
		touch(m.dailyActive, day, e.UserID)
		touch(m.weeklyActive, m.WeekKey(e.Time), e.UserID)
		touch(m.monthlyActive, m.MonthKey(e.Time), e.UserID)
		m.pointsByDay[day] += e.Points
		m.pointsByActivity[e.Activity] += e.Points
		m.activityCounts[e.Activity]++
	case core.EventBadgeAwarded:
		if e.Badge == nil {
			return
		}
		m.badgesByDay[day]++
		m.badgesByID[e.Badge.BadgeID]++
		if m.badgeHolders[e.Badge.BadgeID] == nil {
			m.badgeHolders[e.Badge.BadgeID] = make(map[core.UserID]struct{})
		}
		m.badgeHolders[e.Badge.BadgeID][e.UserID] = struct{}{}
	case core.EventLevelUp:
		m.levelsReached[e.Level]++
	case core.EventAchievementUnlocked:
		m.achievements[e.Achievement]++
	case core.EventStreakUpdated:
		if e.Change == core.StreakReset {
			m.streakResets++
		}
	}
}

func touch(buckets map[string]map[core.UserID]struct{}, key string, user core.UserID) {
	if buckets[key] == nil {
		buckets[key] = make(map[core.UserID]struct{})
	}
	buckets[key][user] = struct{}{}
}

// WeekKey formats the ISO week of t, e.g. 2026-W11.
func (m *EngagementMetrics) WeekKey(t time.Time) string {
	year, week := t.In(m.loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// MonthKey formats the month of t, e.g. 2026-03.
func (m *EngagementMetrics) MonthKey(t time.Time) string {
	return t.In(m.loc).Format("2006-01")
}

func (m *EngagementMetrics) DailyActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dailyActive[day])
}

func (m *EngagementMetrics) WeeklyActiveUsers(week string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weeklyActive[week])
}

func (m *EngagementMetrics) MonthlyActiveUsers(month string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.monthlyActive[month])
}

func (m *EngagementMetrics) PointsAwardedOn(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointsByDay[day]
}

// UniqueBadgeHolders returns how many users hold badge.
func (m *EngagementMetrics) UniqueBadgeHolders(badge core.BadgeID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.badgeHolders[badge])
}

// ActivityStat is one row of the activity breakdown.
type ActivityStat struct {
	ActivityType core.ActivityType `json:"activity_type"`
	Count        int64             `json:"count"`
	Points       int64             `json:"points"`
}

// Report is a point-in-time summary of engagement.
type Report struct {
	Day                string                       `json:"day"`
	DailyActiveUsers   int                          `json:"daily_active_users"`
	WeeklyActiveUsers  int                          `json:"weekly_active_users"`
	MonthlyActiveUsers int                          `json:"monthly_active_users"`
	PointsToday        int64                        `json:"points_today"`
	TotalPoints        int64                        `json:"total_points"`
	TopActivities      []ActivityStat               `json:"top_activities"`
	BadgesAwarded      map[core.BadgeID]int64       `json:"badges_awarded"`
	LevelsReached      map[int]int64                `json:"levels_reached"`
	Achievements       map[core.AchievementID]int64 `json:"achievements"`
	StreakResets       int64                        `json:"streak_resets"`
	GeneratedAt        time.Time                    `json:"generated_at"`
}

// Snapshot summarizes the counters as seen at now. limit caps TopActivities;
// zero or less returns every activity type seen.
func (m *EngagementMetrics) Snapshot(now time.Time, limit int) Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := core.DayKey(now, m.loc)
	r := Report{
		Day:                day,
		DailyActiveUsers:   len(m.dailyActive[day]),
		WeeklyActiveUsers:  len(m.weeklyActive[m.WeekKey(now)]),
		MonthlyActiveUsers: len(m.monthlyActive[m.MonthKey(now)]),
		PointsToday:        m.pointsByDay[day],
		BadgesAwarded:      make(map[core.BadgeID]int64, len(m.badgesByID)),
		LevelsReached:      make(map[int]int64, len(m.levelsReached)),
		Achievements:       make(map[core.AchievementID]int64, len(m.achievements)),
		StreakResets:       m.streakResets,
		GeneratedAt:        now,
	}
	for t, n := range m.activityCounts {
		pts := m.pointsByActivity[t]
		r.TotalPoints += pts
		r.TopActivities = append(r.TopActivities, ActivityStat{ActivityType: t, Count: n, Points: pts})
	}
	sort.Slice(r.TopActivities, func(i, j int) bool {
		a, b := r.TopActivities[i], r.TopActivities[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		return a.ActivityType < b.ActivityType
	})
	if limit > 0 && len(r.TopActivities) > limit {
		r.TopActivities = r.TopActivities[:limit]
	}
	for k, v := range m.badgesByID {
		r.BadgesAwarded[k] = v
	}
	for k, v := range m.levelsReached {
		r.LevelsReached[k] = v
	}
	for k, v := range m.achievements {
		r.Achievements[k] = v
	}
	return r
}
