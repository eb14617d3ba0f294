package memory

import (
	"context"
	"sort"
	"sync"

	"agriscore/core"
)

// Store is a concurrent in-memory score store. It also serves as a profile
// directory for tests and the demo server.
type Store struct {
	users    sync.Map // map[core.UserID]*userRecord
	profiles sync.Map // map[core.UserID]core.Profile
}

type userRecord struct {
	mu    sync.Mutex
	score core.UserScore
}

func New() *Store { return &Store{} }

func (s *Store) getOrCreate(user core.UserID, seed core.UserScore) *userRecord {
	if v, ok := s.users.Load(user); ok {
		return v.(*userRecord)
	}
	seed = seed.Clone()
	seed.UserID = user
	actual, _ := s.users.LoadOrStore(user, &userRecord{score: seed})
	return actual.(*userRecord)
}

// Mutate applies fn to a working copy and swaps it in only when fn succeeds.
func (s *Store) Mutate(_ context.Context, user core.UserID, seed core.UserScore, fn func(*core.UserScore) error) (core.UserScore, error) {
	rec := s.getOrCreate(user, seed)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next := rec.score.Clone()
	if err := fn(&next); err != nil {
		return core.UserScore{}, err
	}
	rec.score = next
	return next.Clone(), nil
}

func (s *Store) Load(_ context.Context, user core.UserID, seed core.UserScore) (core.UserScore, error) {
	rec := s.getOrCreate(user, seed)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.score.Clone(), nil
}

// List returns every record ordered by user id.
func (s *Store) List(_ context.Context) ([]core.UserScore, error) {
	var out []core.UserScore
	s.users.Range(func(_, v any) bool {
		rec := v.(*userRecord)
		rec.mu.Lock()
		out = append(out, rec.score.Clone())
		rec.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// CountAbove counts records holding strictly more than points.
func (s *Store) CountAbove(ctx context.Context, points int64) (int64, error) {
	var n int64
	s.users.Range(func(_, v any) bool {
		rec := v.(*userRecord)
		rec.mu.Lock()
		if rec.score.TotalPoints > points {
			n++
		}
		rec.mu.Unlock()
		return true
	})
	return n, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// PutProfile registers display identity for user.
func (s *Store) PutProfile(user core.UserID, p core.Profile) {
	s.profiles.Store(user, p)
}

// Profiles returns the known profiles among users; unknown ids are omitted.
func (s *Store) Profiles(_ context.Context, users []core.UserID) (map[core.UserID]core.Profile, error) {
	out := make(map[core.UserID]core.Profile, len(users))
	for _, u := range users {
		if v, ok := s.profiles.Load(u); ok {
			out[u] = v.(core.Profile)
		}
	}
	return out, nil
}

var _ interface {
	Mutate(context.Context, core.UserID, core.UserScore, func(*core.UserScore) error) (core.UserScore, error)
	Load(context.Context, core.UserID, core.UserScore) (core.UserScore, error)
	List(context.Context) ([]core.UserScore, error)
	CountAbove(context.Context, int64) (int64, error)
	Profiles(context.Context, []core.UserID) (map[core.UserID]core.Profile, error)
} = (*Store)(nil)
