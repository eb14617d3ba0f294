package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"agriscore/core"
)

// ActivityResult is returned after an activity was scored.
type ActivityResult struct {
	UserID                string             `json:"user_id"`
	ActivityType          string             `json:"activity_type"`
	PointsEarned          int64              `json:"points_earned"`
	TotalPoints           int64              `json:"total_points"`
	Level                 int                `json:"level"`
	LevelName             string             `json:"level_name"`
	LeveledUp             bool               `json:"leveled_up"`
	NextLevel             int                `json:"next_level,omitempty"`
	PointsToNextLevel     int64              `json:"points_to_next_level,omitempty"`
	NewBadges             []core.EarnedBadge `json:"new_badges"`
	CompletedAchievements []string           `json:"completed_achievements,omitempty"`
}

// Rank is a user's all-time position.
type Rank struct {
	UserID      string `json:"user_id"`
	Rank        int64  `json:"rank"`
	TotalPoints int64  `json:"total_points"`
	Level       int    `json:"level"`
	LevelName   string `json:"level_name"`
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank        int64  `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Region      string `json:"region,omitempty"`
	TotalPoints int64  `json:"total_points"`
	Level       int    `json:"level"`
	LevelName   string `json:"level_name"`
	BadgeCount  int    `json:"badge_count"`
}

// Leaderboard is the /leaderboard response.
type Leaderboard struct {
	Period  string             `json:"period"`
	Entries []LeaderboardEntry `json:"entries"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// APIError is the decoded error envelope of a failed call.
type APIError struct {
	Status    int            `json:"-"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Code, e.Status, e.Message)
}

// Retryable reports whether the same call may succeed later. The server did not
// apply the request in that case.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests
}

// Suggestion returns the closest known activity type for an invalid_activity_type error.
func (e *APIError) Suggestion() string {
	s, _ := e.Details["suggestion"].(string)
	return s
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "http_error"
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
