package core

import "time"

// Rule derives state on a freshly mutated record and returns the events it caused.
// Rules run inside the same exclusive section as the stat update, so they always
// see post-mutation values.
type Rule interface {
	Apply(cat Catalog, s *UserScore, now time.Time) []Event
}

// AchievementRule syncs achievement progress with its bound counters.
type AchievementRule struct{}

func (AchievementRule) Apply(cat Catalog, s *UserScore, now time.Time) []Event {
	var out []Event
	for _, id := range TrackAchievements(cat.Achievements, s, now) {
		out = append(out, NewAchievementUnlocked(s.UserID, id, now))
	}
	return out
}

// LevelRule recomputes level and level name from TotalPoints.
type LevelRule struct{}

func (LevelRule) Apply(cat Catalog, s *UserScore, now time.Time) []Event {
	lvl := LevelFor(cat.Levels, s.TotalPoints)
	prev := s.Level
	s.Level = lvl.Level
	s.LevelName = lvl.Name
	if lvl.Level > prev {
		return []Event{NewLevelUp(s.UserID, lvl, s.TotalPoints, now)}
	}
	return nil
}

// BadgeRule issues newly qualifying badges.
type BadgeRule struct{}

func (BadgeRule) Apply(cat Catalog, s *UserScore, now time.Time) []Event {
	var out []Event
	for _, b := range EvaluateBadges(cat.Badges, s, now) {
		out = append(out, NewBadgeAwarded(s.UserID, b))
	}
	return out
}

// DefaultRules returns the derivation order used by ingestion.
func DefaultRules() []Rule {
	return []Rule{AchievementRule{}, LevelRule{}, BadgeRule{}}
}

// Derive applies rules in order and concatenates their events.
func Derive(rules []Rule, cat Catalog, s *UserScore, now time.Time) []Event {
	var out []Event
	for _, r := range rules {
		out = append(out, r.Apply(cat, s, now)...)
	}
	return out
}
