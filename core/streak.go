package core

import "time"

// StreakChange describes what a qualifying event did to a streak.
type StreakChange string

const (
	StreakStarted   StreakChange = "started"
	StreakExtended  StreakChange = "extended"
	StreakUnchanged StreakChange = "unchanged"
	StreakReset     StreakChange = "reset"
)

// StreakState is one current/longest pair plus the time of the last qualifying event.
type StreakState struct {
	Current int64
	Longest int64
	Last    *time.Time
}

// DaysBetween counts calendar days from a to b in loc. Clock time is ignored,
// so 23:59 and 00:01 on the following day are one day apart.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// DayKey formats t as YYYY-MM-DD in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// Advance applies a qualifying event at time at.
//
// A repeat event on the same calendar day keeps the streak. An event dated
// before Last (clock skew, delayed producer) also keeps the streak and does
// not move Last backwards.
func (s StreakState) Advance(at time.Time, loc *time.Location) (StreakState, StreakChange) {
	next := s
	change := StreakUnchanged
	if s.Last == nil {
		next.Current = 1
		change = StreakStarted
	} else {
		switch d := DaysBetween(*s.Last, at, loc); {
		case d == 1:
			next.Current = s.Current + 1
			change = StreakExtended
		case d > 1:
			next.Current = 1
			change = StreakReset
		case d == 0 && s.Current == 0:
			next.Current = 1
			change = StreakStarted
		}
	}
	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	if s.Last == nil || at.After(*s.Last) {
		t := at
		next.Last = &t
	}
	return next, change
}

// RecordLogin advances the login streak and mirrors it into ConsecutiveLogins.
func RecordLogin(s *UserScore, at time.Time, loc *time.Location) StreakChange {
	st, change := StreakState{
		Current: s.Streaks.CurrentLoginStreak,
		Longest: s.Streaks.LongestLoginStreak,
		Last:    s.Stats.LastLoginDate,
	}.Advance(at, loc)
	s.Streaks.CurrentLoginStreak = st.Current
	s.Streaks.LongestLoginStreak = st.Longest
	s.Stats.LastLoginDate = st.Last
	s.Stats.ConsecutiveLogins = st.Current
	return change
}

// RecordTask advances the task completion streak.
func RecordTask(s *UserScore, at time.Time, loc *time.Location) StreakChange {
	st, change := StreakState{
		Current: s.Streaks.CurrentTaskStreak,
		Longest: s.Streaks.LongestTaskStreak,
		Last:    s.Stats.LastTaskDate,
	}.Advance(at, loc)
	s.Streaks.CurrentTaskStreak = st.Current
	s.Streaks.LongestTaskStreak = st.Longest
	s.Stats.LastTaskDate = st.Last
	return change
}
