// Package leaderboard keeps users ordered by score, highest first.
package leaderboard

import "agriscore/core"

// Entry is one ranked user.
type Entry struct {
	User  core.UserID
	Score int64
}

// Board orders entries by score descending, then user id ascending.
type Board interface {
	Update(user core.UserID, score int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
	// CountAbove returns how many entries score strictly more than score.
	CountAbove(score int64) int
	Len() int
}
