package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"agriscore/core"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" env:"AGRISCORE_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" yaml:"password" env:"AGRISCORE_REDIS_PASSWORD"`
	DB           int           `json:"db" yaml:"db" env:"AGRISCORE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"AGRISCORE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns" env:"AGRISCORE_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"AGRISCORE_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"AGRISCORE_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"AGRISCORE_REDIS_WRITE_TIMEOUT"`
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"AGRISCORE_REDIS_KEY_PREFIX"`
	// MaxRetries bounds optimistic transaction retries under contention.
	MaxRetries int `json:"max_retries" yaml:"max_retries" env:"AGRISCORE_REDIS_MAX_RETRIES"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "agriscore:",
		MaxRetries:   16,
	}
}

// ErrContention is returned when a record kept changing under every retry.
var ErrContention = errors.New("redis: too much contention on score record")

// Store keeps score records in Redis.
// Data structure:
// - {prefix}score:{user_id} -> JSON document of core.UserScore
// - {prefix}leaderboard:points -> sorted set of user ids scored by total points
// - {prefix}profile:{user_id} -> hash with display_name and region
type Store struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewWithClient(client)
	s.prefix = config.KeyPrefix
	if config.MaxRetries > 0 {
		s.maxRetries = config.MaxRetries
	}
	return s, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: DefaultConfig().KeyPrefix, maxRetries: DefaultConfig().MaxRetries}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) scoreKey(user core.UserID) string   { return s.prefix + "score:" + string(user) }
func (s *Store) profileKey(user core.UserID) string { return s.prefix + "profile:" + string(user) }
func (s *Store) boardKey() string                   { return s.prefix + "leaderboard:points" }

func decode(data []byte) (core.UserScore, error) {
	var rec core.UserScore
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.UserScore{}, fmt.Errorf("decode score: %w", err)
	}
	return rec, nil
}

// Mutate runs fn under WATCH on the user's document and commits the document and
// its leaderboard entry in one MULTI. A concurrent writer aborts the commit and
// the whole read-modify-write is retried, so fn may run more than once.
func (s *Store) Mutate(ctx context.Context, user core.UserID, seed core.UserScore, fn func(*core.UserScore) error) (core.UserScore, error) {
	key := s.scoreKey(user)
	var out core.UserScore
	txf := func(tx *redis.Tx) error {
		var rec core.UserScore
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			rec = seed.Clone()
		case err != nil:
			return fmt.Errorf("failed to read score: %w", err)
		default:
			if rec, err = decode(data); err != nil {
				return err
			}
		}
		rec.UserID = user
		if err := fn(&rec); err != nil {
			return err
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode score: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, b, 0)
			p.ZAdd(ctx, s.boardKey(), redis.Z{Score: float64(rec.TotalPoints), Member: string(user)})
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return core.UserScore{}, err
		}
		return out, nil
	}
	return core.UserScore{}, ErrContention
}

// Load returns the stored record or seed when the user has none.
func (s *Store) Load(ctx context.Context, user core.UserID, seed core.UserScore) (core.UserScore, error) {
	data, err := s.client.Get(ctx, s.scoreKey(user)).Bytes()
	if errors.Is(err, redis.Nil) {
		seed = seed.Clone()
		seed.UserID = user
		return seed, nil
	}
	if err != nil {
		return core.UserScore{}, fmt.Errorf("failed to read score: %w", err)
	}
	return decode(data)
}

// List returns every record indexed on the leaderboard, highest points first.
func (s *Store) List(ctx context.Context) ([]core.UserScore, error) {
	members, err := s.client.ZRevRange(ctx, s.boardKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list leaderboard: %w", err)
	}
	out := make([]core.UserScore, 0, len(members))
	const batch = 200
	for start := 0; start < len(members); start += batch {
		end := start + batch
		if end > len(members) {
			end = len(members)
		}
		keys := make([]string, 0, end-start)
		for _, m := range members[start:end] {
			keys = append(keys, s.scoreKey(core.UserID(m)))
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read scores: %w", err)
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue // index entry without a document
			}
			rec, err := decode([]byte(str))
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// CountAbove counts users with strictly more than points.
func (s *Store) CountAbove(ctx context.Context, points int64) (int64, error) {
	n, err := s.client.ZCount(ctx, s.boardKey(), "("+strconv.FormatInt(points, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count leaderboard: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PutProfile stores display identity for user.
func (s *Store) PutProfile(ctx context.Context, user core.UserID, p core.Profile) error {
	err := s.client.HSet(ctx, s.profileKey(user), "display_name", p.DisplayName, "region", p.Region).Err()
	if err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}

// Profiles fetches the profiles of users in one round trip. Users without a
// profile hash are omitted.
func (s *Store) Profiles(ctx context.Context, users []core.UserID) (map[core.UserID]core.Profile, error) {
	cmds := make([]*redis.MapStringStringCmd, len(users))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, u := range users {
			cmds[i] = p.HGetAll(ctx, s.profileKey(u))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	out := make(map[core.UserID]core.Profile, len(users))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out[users[i]] = core.Profile{DisplayName: fields["display_name"], Region: fields["region"]}
	}
	return out, nil
}
