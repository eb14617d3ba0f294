package engine

import (
	"context"

	"agriscore/core"
)

// Storage abstracts durable persistence of UserScore records.
type Storage interface {
	// Mutate loads the user's record, creating it from seed when absent, applies fn
	// and persists the result as one atomic unit. When fn or the write fails the
	// stored record is left untouched. fn may run more than once if the adapter
	// retries an optimistic transaction, so it must only touch the record it is given.
	Mutate(ctx context.Context, user core.UserID, seed core.UserScore, fn func(*core.UserScore) error) (core.UserScore, error)
	// Load returns the user's record, or seed when absent. Durable adapters do not
	// write on read.
	Load(ctx context.Context, user core.UserID, seed core.UserScore) (core.UserScore, error)
	// List returns a point-in-time snapshot of every stored record.
	List(ctx context.Context) ([]core.UserScore, error)
}

// RankCounter is implemented by storage that can count records above a score natively.
type RankCounter interface {
	CountAbove(ctx context.Context, points int64) (int64, error)
}

// Pinger is implemented by storage with a cheap liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Directory resolves display identity from the external user store.
type Directory interface {
	Profiles(ctx context.Context, users []core.UserID) (map[core.UserID]core.Profile, error)
}
