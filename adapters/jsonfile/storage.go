package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"agriscore/core"
)

// Store persists every score record to a single JSON file.
// Suitable for demos and small single-node deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]core.UserScore
}

func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[core.UserID]core.UserScore{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]core.UserScore
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		s.data[core.UserID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]core.UserScore, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Mutate applies fn and rewrites the file. If the write fails the cached record
// is rolled back so memory never runs ahead of disk.
func (s *Store) Mutate(_ context.Context, user core.UserID, seed core.UserScore, fn func(*core.UserScore) error) (core.UserScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.data[user]
	next := seed.Clone()
	if existed {
		next = prev.Clone()
	}
	next.UserID = user
	if err := fn(&next); err != nil {
		return core.UserScore{}, err
	}
	s.data[user] = next
	if err := s.persist(); err != nil {
		if existed {
			s.data[user] = prev
		} else {
			delete(s.data, user)
		}
		return core.UserScore{}, fmt.Errorf("persist %s: %w", s.path, err)
	}
	return next.Clone(), nil
}

// Load returns the cached record, or seed when user has none. Reads do not
// create records on disk.
func (s *Store) Load(_ context.Context, user core.UserID, seed core.UserScore) (core.UserScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.data[user]; ok {
		return rec.Clone(), nil
	}
	seed = seed.Clone()
	seed.UserID = user
	return seed, nil
}

func (s *Store) List(_ context.Context) ([]core.UserScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserScore, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) CountAbove(_ context.Context, points int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, rec := range s.data {
		if rec.TotalPoints > points {
			n++
		}
	}
	return n, nil
}
