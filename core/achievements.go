package core

import "time"

// AchievementID identifies one of the fixed achievements.
type AchievementID string

const (
	AchievementHelpfulFarmer     AchievementID = "helpfulFarmer"
	AchievementConsistentLearner AchievementID = "consistentLearner"
	AchievementDiseaseDetector   AchievementID = "diseaseDetector"
	AchievementSoilExpert        AchievementID = "soilExpert"
	AchievementWeatherWatcher    AchievementID = "weatherWatcher"
	AchievementCommunityHelper   AchievementID = "communityHelper"
)

// AchievementIDs lists the fixed achievement set.
func AchievementIDs() []AchievementID {
	return []AchievementID{
		AchievementHelpfulFarmer,
		AchievementConsistentLearner,
		AchievementDiseaseDetector,
		AchievementSoilExpert,
		AchievementWeatherWatcher,
		AchievementCommunityHelper,
	}
}

// Valid reports whether id names one of the fixed achievements.
func (id AchievementID) Valid() bool {
	for _, known := range AchievementIDs() {
		if id == known {
			return true
		}
	}
	return false
}

// AchievementProgress tracks one achievement. Completed is a one-way latch.
type AchievementProgress struct {
	Current     int64      `json:"current"`
	Target      int64      `json:"target"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Achievements holds progress for every fixed achievement.
type Achievements struct {
	HelpfulFarmer     AchievementProgress `json:"helpfulFarmer"`
	ConsistentLearner AchievementProgress `json:"consistentLearner"`
	DiseaseDetector   AchievementProgress `json:"diseaseDetector"`
	SoilExpert        AchievementProgress `json:"soilExpert"`
	WeatherWatcher    AchievementProgress `json:"weatherWatcher"`
	CommunityHelper   AchievementProgress `json:"communityHelper"`
}

// Progress returns a pointer to the progress slot for id, or nil if id is unknown.
func (a *Achievements) Progress(id AchievementID) *AchievementProgress {
	switch id {
	case AchievementHelpfulFarmer:
		return &a.HelpfulFarmer
	case AchievementConsistentLearner:
		return &a.ConsistentLearner
	case AchievementDiseaseDetector:
		return &a.DiseaseDetector
	case AchievementSoilExpert:
		return &a.SoilExpert
	case AchievementWeatherWatcher:
		return &a.WeatherWatcher
	case AchievementCommunityHelper:
		return &a.CommunityHelper
	}
	return nil
}

func (a Achievements) clone() Achievements {
	cp := a
	for _, id := range AchievementIDs() {
		p := cp.Progress(id)
		p.CompletedAt = cloneTime(p.CompletedAt)
	}
	return cp
}

// NewAchievements seeds targets from the catalog definitions.
func NewAchievements(defs []AchievementDefinition) Achievements {
	var a Achievements
	for _, d := range defs {
		if p := a.Progress(d.ID); p != nil {
			p.Target = d.Target
		}
	}
	return a
}

// TrackAchievements syncs every achievement with its bound counter and latches
// completion the first time current reaches target. It returns the ids that
// completed during this call.
func TrackAchievements(defs []AchievementDefinition, s *UserScore, now time.Time) []AchievementID {
	var completed []AchievementID
	for _, d := range defs {
		p := s.Achievements.Progress(d.ID)
		if p == nil {
			continue
		}
		v, ok := d.Counter.Value(s.Stats, s.Streaks)
		if !ok {
			continue
		}
		p.Current = v
		p.Target = d.Target
		if !p.Completed && p.Current >= p.Target {
			p.Completed = true
			at := now
			p.CompletedAt = &at
			completed = append(completed, d.ID)
		}
	}
	return completed
}
