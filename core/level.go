package core

// LevelFor returns the highest tier whose MinPoints does not exceed totalPoints.
// Levels must be ordered ascending by MinPoints, as Catalog.Validate enforces.
func LevelFor(levels []LevelThreshold, totalPoints int64) LevelThreshold {
	for i := len(levels) - 1; i >= 0; i-- {
		if levels[i].MinPoints <= totalPoints {
			return levels[i]
		}
	}
	if len(levels) > 0 {
		return levels[0]
	}
	return LevelThreshold{Level: 1}
}

// NextLevel returns the tier after current, if any.
func NextLevel(levels []LevelThreshold, current int) (LevelThreshold, bool) {
	for _, l := range levels {
		if l.Level > current {
			return l, true
		}
	}
	return LevelThreshold{}, false
}
