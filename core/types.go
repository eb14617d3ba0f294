package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

// UserID references a farmer identity owned by the external user store.
type UserID string

// ActivityType enumerates the actions producers may report for scoring.
type ActivityType string

const (
	ActivityLogin         ActivityType = "login"
	ActivityTaskCompleted ActivityType = "task_completed"
	ActivityDiseaseUpload ActivityType = "disease_upload"
	ActivitySoilUpload    ActivityType = "soil_upload"
	ActivityWeatherCheck  ActivityType = "weather_check"
	ActivityForumPost     ActivityType = "forum_post"
	ActivityForumReply    ActivityType = "forum_reply"
	ActivityHelpfulReply  ActivityType = "helpful_reply"
	ActivityNewsRead      ActivityType = "news_read"
)

// ActivityTypes lists every recognized activity type in catalog order.
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityLogin,
		ActivityTaskCompleted,
		ActivityDiseaseUpload,
		ActivitySoilUpload,
		ActivityWeatherCheck,
		ActivityForumPost,
		ActivityForumReply,
		ActivityHelpfulReply,
		ActivityNewsRead,
	}
}

// Valid reports whether t is one of the recognized activity types.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseActivityType returns the activity type spelled exactly as s.
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(s)
	if !t.Valid() {
		return "", &InvalidActivityTypeError{Got: s}
	}
	return t, nil
}

// Stats holds the named counters derived from ingested activities.
type Stats struct {
	TotalLogins         int64      `json:"total_logins"`
	ConsecutiveLogins   int64      `json:"consecutive_logins"`
	TasksCompleted      int64      `json:"tasks_completed"`
	DiseaseUploads      int64      `json:"disease_uploads"`
	SoilReportsUploaded int64      `json:"soil_reports_uploaded"`
	WeatherChecks       int64      `json:"weather_checks"`
	ForumPosts          int64      `json:"forum_posts"`
	ForumReplies        int64      `json:"forum_replies"`
	HelpfulReplies      int64      `json:"helpful_replies"`
	LastLoginDate       *time.Time `json:"last_login_date,omitempty"`
	LastTaskDate        *time.Time `json:"last_task_date,omitempty"`
}

// Streaks holds consecutive-day counters.
type Streaks struct {
	CurrentLoginStreak int64 `json:"current_login_streak"`
	LongestLoginStreak int64 `json:"longest_login_streak"`
	CurrentTaskStreak  int64 `json:"current_task_streak"`
	LongestTaskStreak  int64 `json:"longest_task_streak"`
}

// BadgeID identifies a badge in the catalog.
type BadgeID string

// EarnedBadge is a badge permanently issued to a user.
type EarnedBadge struct {
	BadgeID     BadgeID   `json:"badge_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Category    string    `json:"category"`
	EarnedDate  time.Time `json:"earned_date"`
}

// ActivityEntry is one row of the recent activity log.
type ActivityEntry struct {
	ID           string       `json:"id"`
	ActivityType ActivityType `json:"activity_type"`
	Points       int64        `json:"points"`
	Description  string       `json:"description,omitempty"`
	Date         time.Time    `json:"date"`
}

// DayPoints is the number of points earned on one calendar day.
type DayPoints struct {
	Day    string `json:"day"` // YYYY-MM-DD in the engine's canonical zone
	Points int64  `json:"points"`
}

// UserScore is the engagement record kept for one user.
// It is created lazily and only mutated by activity ingestion.
type UserScore struct {
	UserID           UserID          `json:"user_id"`
	TotalPoints      int64           `json:"total_points"`
	Level            int             `json:"level"`
	LevelName        string          `json:"level_name"`
	Stats            Stats           `json:"stats"`
	Streaks          Streaks         `json:"streaks"`
	Badges           []EarnedBadge   `json:"badges"`
	RecentActivities []ActivityEntry `json:"recent_activities"`
	Achievements     Achievements    `json:"achievements"`
	DailyPoints      []DayPoints     `json:"daily_points,omitempty"`
	// Rank is denormalized for display only; leaderboard queries recompute it.
	Rank      int64     `json:"rank,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasBadge reports whether id was already issued.
func (s *UserScore) HasBadge(id BadgeID) bool {
	for _, b := range s.Badges {
		if b.BadgeID == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices or pointers with storage.
func (s UserScore) Clone() UserScore {
	cp := s
	cp.Stats.LastLoginDate = cloneTime(s.Stats.LastLoginDate)
	cp.Stats.LastTaskDate = cloneTime(s.Stats.LastTaskDate)
	cp.Badges = append([]EarnedBadge(nil), s.Badges...)
	cp.RecentActivities = append([]ActivityEntry(nil), s.RecentActivities...)
	cp.DailyPoints = append([]DayPoints(nil), s.DailyPoints...)
	cp.Achievements = s.Achievements.clone()
	if cp.Badges == nil {
		cp.Badges = []EarnedBadge{}
	}
	if cp.RecentActivities == nil {
		cp.RecentActivities = []ActivityEntry{}
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Profile carries identity fields joined from the external user store.
type Profile struct {
	DisplayName string `json:"display_name"`
	Region      string `json:"region,omitempty"`
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims surrounding whitespace from a user identifier.
// Identifiers are opaque references issued elsewhere, so case is preserved.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", ErrEmptyUserID
	}
	return UserID(s), nil
}
