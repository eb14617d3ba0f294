package core

import (
	"fmt"
	"sort"
	"time"
)

// DailyPointsWindow is how many calendar days of per-day points a record keeps.
const DailyPointsWindow = 31

// NewUserScore builds an empty record with achievement targets from the catalog.
func NewUserScore(user UserID, cat Catalog, now time.Time) UserScore {
	lvl := LevelFor(cat.Levels, 0)
	return UserScore{
		UserID:           user,
		Level:            lvl.Level,
		LevelName:        lvl.Name,
		Badges:           []EarnedBadge{},
		RecentActivities: []ActivityEntry{},
		Achievements:     NewAchievements(cat.Achievements),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ApplyStats updates the counters bound to t. Login and task events also
// advance their streaks; the returned change is empty for other types.
func ApplyStats(s *UserScore, t ActivityType, at time.Time, loc *time.Location) (StreakChange, error) {
	st := &s.Stats
	switch t {
	case ActivityLogin:
		st.TotalLogins++
		return RecordLogin(s, at, loc), nil
	case ActivityTaskCompleted:
		st.TasksCompleted++
		return RecordTask(s, at, loc), nil
	case ActivityDiseaseUpload:
		st.DiseaseUploads++
	case ActivitySoilUpload:
		st.SoilReportsUploaded++
	case ActivityWeatherCheck:
		st.WeatherChecks++
	case ActivityForumPost:
		st.ForumPosts++
	case ActivityForumReply:
		st.ForumReplies++
	case ActivityHelpfulReply:
		st.HelpfulReplies++
	case ActivityNewsRead:
	default:
		return "", &InvalidActivityTypeError{Got: string(t)}
	}
	return "", nil
}

// PrependActivity adds e at the head of the log and trims it to limit entries.
func PrependActivity(s *UserScore, e ActivityEntry, limit int) {
	if limit <= 0 {
		limit = 1
	}
	n := len(s.RecentActivities) + 1
	if n > limit {
		n = limit
	}
	log := make([]ActivityEntry, 0, n)
	log = append(log, e)
	for _, old := range s.RecentActivities {
		if len(log) == n {
			break
		}
		log = append(log, old)
	}
	s.RecentActivities = log
}

// AddDailyPoints credits points to day and drops days older than the window,
// measured from day. Entries are kept newest first.
func AddDailyPoints(s *UserScore, day string, points int64) error {
	cur, err := time.Parse("2006-01-02", day)
	if err != nil {
		return fmt.Errorf("daily points: %w", err)
	}
	found := false
	for i := range s.DailyPoints {
		if s.DailyPoints[i].Day == day {
			next, err := AddSafe(s.DailyPoints[i].Points, points)
			if err != nil {
				return err
			}
			s.DailyPoints[i].Points = next
			found = true
			break
		}
	}
	if !found {
		s.DailyPoints = append(s.DailyPoints, DayPoints{Day: day, Points: points})
		sort.Slice(s.DailyPoints, func(i, j int) bool { return s.DailyPoints[i].Day > s.DailyPoints[j].Day })
	}
	kept := s.DailyPoints[:0]
	for _, dp := range s.DailyPoints {
		t, err := time.Parse("2006-01-02", dp.Day)
		if err != nil {
			continue
		}
		if age := int(cur.Sub(t).Hours() / 24); age < DailyPointsWindow {
			kept = append(kept, dp)
		}
	}
	s.DailyPoints = kept
	return nil
}

// PointsSince sums daily points for the days-long window ending at day
// (inclusive). days <= 0 returns TotalPoints.
func (s UserScore) PointsSince(day string, days int) int64 {
	if days <= 0 {
		return s.TotalPoints
	}
	end, err := time.Parse("2006-01-02", day)
	if err != nil {
		return 0
	}
	var sum int64
	for _, dp := range s.DailyPoints {
		t, err := time.Parse("2006-01-02", dp.Day)
		if err != nil {
			continue
		}
		if age := int(end.Sub(t).Hours() / 24); age >= 0 && age < days {
			sum += dp.Points
		}
	}
	return sum
}
