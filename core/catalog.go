package core

import (
	"fmt"
	"strings"
)

// Counter names a stat or streak field that badges and achievements are bound to.
type Counter string

const (
	CounterNone                Counter = ""
	CounterTotalLogins         Counter = "total_logins"
	CounterLoginStreak         Counter = "current_login_streak"
	CounterTasksCompleted      Counter = "tasks_completed"
	CounterTaskStreak          Counter = "current_task_streak"
	CounterDiseaseUploads      Counter = "disease_uploads"
	CounterSoilReportsUploaded Counter = "soil_reports_uploaded"
	CounterWeatherChecks       Counter = "weather_checks"
	CounterForumPosts          Counter = "forum_posts"
	CounterForumReplies        Counter = "forum_replies"
	CounterHelpfulReplies      Counter = "helpful_replies"
)

// Value reads the counter from a stats/streaks snapshot.
// The boolean is false for CounterNone and unknown counters.
func (c Counter) Value(stats Stats, streaks Streaks) (int64, bool) {
	switch c {
	case CounterTotalLogins:
		return stats.TotalLogins, true
	case CounterLoginStreak:
		return streaks.CurrentLoginStreak, true
	case CounterTasksCompleted:
		return stats.TasksCompleted, true
	case CounterTaskStreak:
		return streaks.CurrentTaskStreak, true
	case CounterDiseaseUploads:
		return stats.DiseaseUploads, true
	case CounterSoilReportsUploaded:
		return stats.SoilReportsUploaded, true
	case CounterWeatherChecks:
		return stats.WeatherChecks, true
	case CounterForumPosts:
		return stats.ForumPosts, true
	case CounterForumReplies:
		return stats.ForumReplies, true
	case CounterHelpfulReplies:
		return stats.HelpfulReplies, true
	}
	return 0, false
}

// LevelThreshold is one tier of the level table.
type LevelThreshold struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	MinPoints int64  `json:"min_points"`
}

// BadgeDefinition describes a badge and the threshold that issues it.
// A definition with CounterNone is reserved and never issued automatically.
type BadgeDefinition struct {
	ID          BadgeID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Category    string  `json:"category"`
	Counter     Counter `json:"counter,omitempty"`
	Threshold   int64   `json:"threshold,omitempty"`
}

// AchievementDefinition binds an achievement to one counter and a target.
type AchievementDefinition struct {
	ID          AchievementID `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Counter     Counter       `json:"counter"`
	Target      int64         `json:"target"`
}

// Catalog is the immutable reference data the engine scores against.
type Catalog struct {
	Points       map[ActivityType]int64  `json:"points"`
	Levels       []LevelThreshold        `json:"levels"`
	Badges       []BadgeDefinition       `json:"badges"`
	Achievements []AchievementDefinition `json:"achievements"`
}

// DefaultCatalog returns a fresh copy of the farmer engagement catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Points: map[ActivityType]int64{
			ActivityLogin:         5,
			ActivityTaskCompleted: 15,
			ActivityDiseaseUpload: 20,
			ActivitySoilUpload:    30,
			ActivityWeatherCheck:  3,
			ActivityForumPost:     10,
			ActivityForumReply:    8,
			ActivityHelpfulReply:  15,
			ActivityNewsRead:      2,
		},
		Levels: []LevelThreshold{
			{Level: 1, Name: "Beginner Farmer", MinPoints: 0},
			{Level: 2, Name: "Learning Farmer", MinPoints: 100},
			{Level: 3, Name: "Growing Farmer", MinPoints: 250},
			{Level: 4, Name: "Skilled Farmer", MinPoints: 500},
			{Level: 5, Name: "Experienced Farmer", MinPoints: 1000},
			{Level: 6, Name: "Expert Farmer", MinPoints: 2000},
			{Level: 7, Name: "Master Farmer", MinPoints: 3500},
			{Level: 8, Name: "Farming Legend", MinPoints: 5000},
		},
		Badges: []BadgeDefinition{
			{ID: "dedicated_farmer", Name: "Dedicated Farmer", Description: "Logged in 30 days in a row", Icon: "🔥", Category: "engagement", Counter: CounterLoginStreak, Threshold: 30},
			{ID: "soil_expert", Name: "Soil Expert", Description: "Uploaded 5 soil reports", Icon: "🌱", Category: "soil", Counter: CounterSoilReportsUploaded, Threshold: 5},
			{ID: "disease_detective", Name: "Disease Detective", Description: "Checked 20 crop images for disease", Icon: "🔬", Category: "crop_health", Counter: CounterDiseaseUploads, Threshold: 20},
			{ID: "community_helper", Name: "Community Helper", Description: "Replied 25 times in the forum", Icon: "🤝", Category: "community", Counter: CounterForumReplies, Threshold: 25},
			{ID: "expert_advisor", Name: "Expert Advisor", Description: "Gave 50 replies marked helpful", Icon: "🎓", Category: "community", Counter: CounterHelpfulReplies, Threshold: 50},
			{ID: "weather_watcher", Name: "Weather Watcher", Description: "Checked the weather 100 times", Icon: "🌦️", Category: "weather", Counter: CounterWeatherChecks, Threshold: 100},
			{ID: "pioneer_farmer", Name: "Pioneer Farmer", Description: "Reserved for early community members", Icon: "🏅", Category: "special"},
		},
		Achievements: []AchievementDefinition{
			{ID: AchievementHelpfulFarmer, Name: "Helpful Farmer", Description: "Receive 50 helpful marks on replies", Counter: CounterHelpfulReplies, Target: 50},
			{ID: AchievementConsistentLearner, Name: "Consistent Learner", Description: "Keep a 30 day login streak", Counter: CounterLoginStreak, Target: 30},
			{ID: AchievementDiseaseDetector, Name: "Disease Detector", Description: "Upload 20 crop images for diagnosis", Counter: CounterDiseaseUploads, Target: 20},
			{ID: AchievementSoilExpert, Name: "Soil Expert", Description: "Upload 5 soil reports", Counter: CounterSoilReportsUploaded, Target: 5},
			{ID: AchievementWeatherWatcher, Name: "Weather Watcher", Description: "Check the forecast 100 times", Counter: CounterWeatherChecks, Target: 100},
			{ID: AchievementCommunityHelper, Name: "Community Helper", Description: "Reply 25 times in the forum", Counter: CounterForumReplies, Target: 25},
		},
	}
}

// PointsFor returns the point value for t.
func (c Catalog) PointsFor(t ActivityType) (int64, bool) {
	p, ok := c.Points[t]
	return p, ok
}

// Validate checks the catalog is complete and internally consistent.
func (c Catalog) Validate() error {
	var errs []string

	for _, t := range ActivityTypes() {
		p, ok := c.Points[t]
		if !ok {
			errs = append(errs, fmt.Sprintf("points: missing value for %s", t))
			continue
		}
		if p < 0 {
			errs = append(errs, fmt.Sprintf("points: %s must not be negative", t))
		}
	}
	for t := range c.Points {
		if !t.Valid() {
			errs = append(errs, fmt.Sprintf("points: unknown activity type %s", t))
		}
	}

	if len(c.Levels) == 0 {
		errs = append(errs, "levels: at least one tier is required")
	} else if c.Levels[0].MinPoints != 0 {
		errs = append(errs, "levels: first tier must start at 0 points")
	}
	for i := 1; i < len(c.Levels); i++ {
		if c.Levels[i].MinPoints <= c.Levels[i-1].MinPoints {
			errs = append(errs, fmt.Sprintf("levels: tier %d must require more points than tier %d", c.Levels[i].Level, c.Levels[i-1].Level))
		}
		if c.Levels[i].Level <= c.Levels[i-1].Level {
			errs = append(errs, fmt.Sprintf("levels: tier numbers must ascend at index %d", i))
		}
	}

	seen := make(map[BadgeID]struct{}, len(c.Badges))
	for _, b := range c.Badges {
		if strings.TrimSpace(string(b.ID)) == "" {
			errs = append(errs, "badges: empty id")
			continue
		}
		if _, dup := seen[b.ID]; dup {
			errs = append(errs, fmt.Sprintf("badges: duplicate id %s", b.ID))
		}
		seen[b.ID] = struct{}{}
		if b.Counter != CounterNone {
			if _, ok := b.Counter.Value(Stats{}, Streaks{}); !ok {
				errs = append(errs, fmt.Sprintf("badges: %s bound to unknown counter %s", b.ID, b.Counter))
			}
			if b.Threshold <= 0 {
				errs = append(errs, fmt.Sprintf("badges: %s threshold must be positive", b.ID))
			}
		}
	}

	bound := make(map[AchievementID]struct{}, len(c.Achievements))
	for _, a := range c.Achievements {
		if !a.ID.Valid() {
			errs = append(errs, fmt.Sprintf("achievements: unknown id %s", a.ID))
			continue
		}
		if _, dup := bound[a.ID]; dup {
			errs = append(errs, fmt.Sprintf("achievements: duplicate id %s", a.ID))
		}
		bound[a.ID] = struct{}{}
		if _, ok := a.Counter.Value(Stats{}, Streaks{}); !ok {
			errs = append(errs, fmt.Sprintf("achievements: %s bound to unknown counter %s", a.ID, a.Counter))
		}
		if a.Target <= 0 {
			errs = append(errs, fmt.Sprintf("achievements: %s target must be positive", a.ID))
		}
	}
	for _, id := range AchievementIDs() {
		if _, ok := bound[id]; !ok {
			errs = append(errs, fmt.Sprintf("achievements: missing definition for %s", id))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(errs, "; "))
	}
	return nil
}

// Clone returns a deep copy so the engine never shares tables with its caller.
func (c Catalog) Clone() Catalog {
	cp := Catalog{
		Points:       make(map[ActivityType]int64, len(c.Points)),
		Levels:       append([]LevelThreshold(nil), c.Levels...),
		Badges:       append([]BadgeDefinition(nil), c.Badges...),
		Achievements: append([]AchievementDefinition(nil), c.Achievements...),
	}
	for k, v := range c.Points {
		cp.Points[k] = v
	}
	return cp
}
