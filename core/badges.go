package core

import "time"

// Qualifies reports whether the snapshot meets the badge threshold.
// Reserved badges never qualify.
func (b BadgeDefinition) Qualifies(stats Stats, streaks Streaks) bool {
	if b.Counter == CounterNone {
		return false
	}
	v, ok := b.Counter.Value(stats, streaks)
	return ok && v >= b.Threshold
}

// Earned converts the definition into an issued badge record.
func (b BadgeDefinition) Earned(at time.Time) EarnedBadge {
	return EarnedBadge{
		BadgeID:     b.ID,
		Name:        b.Name,
		Description: b.Description,
		Icon:        b.Icon,
		Category:    b.Category,
		EarnedDate:  at,
	}
}

// EvaluateBadges appends every newly qualifying badge to s.Badges in one batch
// and returns the new subset. Badges already held are skipped, so repeated
// evaluation is a no-op.
func EvaluateBadges(defs []BadgeDefinition, s *UserScore, now time.Time) []EarnedBadge {
	var awarded []EarnedBadge
	for _, d := range defs {
		if s.HasBadge(d.ID) || !d.Qualifies(s.Stats, s.Streaks) {
			continue
		}
		dup := false
		for _, a := range awarded {
			if a.BadgeID == d.ID {
				dup = true
				break
			}
		}
		if !dup {
			awarded = append(awarded, d.Earned(now))
		}
	}
	s.Badges = append(s.Badges, awarded...)
	return awarded
}
