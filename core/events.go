package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventActivityLogged      EventType = "activity_logged"
	EventBadgeAwarded        EventType = "badge_awarded"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventLevelUp             EventType = "level_up"
	EventStreakUpdated       EventType = "streak_updated"
)

// EventTypes lists every event type the engine publishes.
func EventTypes() []EventType {
	return []EventType{EventActivityLogged, EventBadgeAwarded, EventAchievementUnlocked, EventLevelUp, EventStreakUpdated}
}

// Event represents an immutable domain event.
type Event struct {
	Type        EventType      `json:"type"`
	Time        time.Time      `json:"time"`
	UserID      UserID         `json:"user_id"`
	Activity    ActivityType   `json:"activity,omitempty"`
	Points      int64          `json:"points,omitempty"`
	Total       int64          `json:"total,omitempty"`
	Badge       *EarnedBadge   `json:"badge,omitempty"`
	Achievement AchievementID  `json:"achievement,omitempty"`
	Level       int            `json:"level,omitempty"`
	LevelName   string         `json:"level_name,omitempty"`
	Streak      int64          `json:"streak,omitempty"`
	Change      StreakChange   `json:"change,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewActivityLogged(user UserID, activity ActivityType, points, total int64, at time.Time) Event {
	return Event{Type: EventActivityLogged, Time: at, UserID: user, Activity: activity, Points: points, Total: total}
}

func NewBadgeAwarded(user UserID, badge EarnedBadge) Event {
	b := badge
	return Event{Type: EventBadgeAwarded, Time: badge.EarnedDate, UserID: user, Badge: &b}
}

func NewLevelUp(user UserID, level LevelThreshold, total int64, at time.Time) Event {
	return Event{Type: EventLevelUp, Time: at, UserID: user, Level: level.Level, LevelName: level.Name, Total: total}
}

func NewAchievementUnlocked(user UserID, id AchievementID, at time.Time) Event {
	return Event{Type: EventAchievementUnlocked, Time: at, UserID: user, Achievement: id}
}

func NewStreakUpdated(user UserID, activity ActivityType, streak int64, change StreakChange, at time.Time) Event {
	return Event{Type: EventStreakUpdated, Time: at, UserID: user, Activity: activity, Streak: streak, Change: change}
}
