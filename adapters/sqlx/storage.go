// Package sqlx stores score records in a relational database through jmoiron/sqlx.
// PostgreSQL, MySQL and SQLite are supported.
package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"agriscore/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite3"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver" yaml:"driver" env:"AGRISCORE_SQL_DRIVER"`
	DSN             string        `json:"dsn" yaml:"dsn" env:"AGRISCORE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"AGRISCORE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"AGRISCORE_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"AGRISCORE_SQL_CONN_MAX_LIFETIME"`
	// AutoMigrate creates the tables on startup when they are missing.
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" env:"AGRISCORE_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns pool defaults for driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	if driver == DriverSQLite {
		// sqlite allows one writer at a time
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Store keeps one row per user in user_scores. The full record lives in the
// document column; total_points is duplicated for ranking queries. Display
// identity is read from the users table.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens the database described by cfg and, when asked, migrates it.
func New(cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the tables used by the store.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func schema(d Driver) []string {
	switch d {
	case DriverMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS user_scores (
				user_id VARCHAR(191) NOT NULL PRIMARY KEY,
				total_points BIGINT NOT NULL DEFAULT 0,
				document LONGTEXT NOT NULL,
				updated_at DATETIME(6) NOT NULL,
				INDEX idx_user_scores_points (total_points)
			)`,
			`CREATE TABLE IF NOT EXISTS users (
				user_id VARCHAR(191) NOT NULL PRIMARY KEY,
				display_name VARCHAR(255) NOT NULL DEFAULT '',
				region VARCHAR(255) NOT NULL DEFAULT ''
			)`,
		}
	case DriverSQLite:
		return []string{
			`CREATE TABLE IF NOT EXISTS user_scores (
				user_id TEXT PRIMARY KEY,
				total_points INTEGER NOT NULL DEFAULT 0,
				document TEXT NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_scores_points ON user_scores(total_points)`,
			`CREATE TABLE IF NOT EXISTS users (
				user_id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL DEFAULT '',
				region TEXT NOT NULL DEFAULT ''
			)`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS user_scores (
				user_id TEXT PRIMARY KEY,
				total_points BIGINT NOT NULL DEFAULT 0,
				document TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_scores_points ON user_scores(total_points)`,
			`CREATE TABLE IF NOT EXISTS users (
				user_id TEXT PRIMARY KEY,
				display_name TEXT NOT NULL DEFAULT '',
				region TEXT NOT NULL DEFAULT ''
			)`,
		}
	}
}

func (s *Store) insertIfAbsent() string {
	const cols = ` INTO user_scores (user_id, total_points, document, updated_at) VALUES (?, ?, ?, ?)`
	switch s.driver {
	case DriverMySQL:
		return "INSERT IGNORE" + cols
	case DriverSQLite:
		return "INSERT OR IGNORE" + cols
	default:
		return "INSERT" + cols + " ON CONFLICT (user_id) DO NOTHING"
	}
}

func (s *Store) selectForUpdate() string {
	q := `SELECT document FROM user_scores WHERE user_id = ?`
	if s.driver != DriverSQLite {
		// sqlite serializes writers at the database level
		q += ` FOR UPDATE`
	}
	return q
}

func (s *Store) upsertProfile() string {
	const ins = `INSERT INTO users (user_id, display_name, region) VALUES (?, ?, ?)`
	switch s.driver {
	case DriverMySQL:
		return ins + ` ON DUPLICATE KEY UPDATE display_name = VALUES(display_name), region = VALUES(region)`
	default:
		return ins + ` ON CONFLICT (user_id) DO UPDATE SET display_name = excluded.display_name, region = excluded.region`
	}
}

func encode(rec core.UserScore) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode score: %w", err)
	}
	return string(b), nil
}

func decode(doc string) (core.UserScore, error) {
	var rec core.UserScore
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return core.UserScore{}, fmt.Errorf("decode score: %w", err)
	}
	return rec, nil
}

// Mutate locks the user's row inside a transaction, applies fn and writes the
// result back. Any failure rolls the transaction back.
func (s *Store) Mutate(ctx context.Context, user core.UserID, seed core.UserScore, fn func(*core.UserScore) error) (out core.UserScore, err error) {
	seed = seed.Clone()
	seed.UserID = user
	seedDoc, err := encode(seed)
	if err != nil {
		return core.UserScore{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.UserScore{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.db.Rebind(s.insertIfAbsent()),
		string(user), seed.TotalPoints, seedDoc, seed.UpdatedAt.UTC()); err != nil {
		return core.UserScore{}, fmt.Errorf("failed to create score: %w", err)
	}
	var doc string
	if err = tx.GetContext(ctx, &doc, s.db.Rebind(s.selectForUpdate()), string(user)); err != nil {
		return core.UserScore{}, fmt.Errorf("failed to lock score: %w", err)
	}
	rec, err := decode(doc)
	if err != nil {
		return core.UserScore{}, err
	}
	if err = fn(&rec); err != nil {
		return core.UserScore{}, err
	}
	if doc, err = encode(rec); err != nil {
		return core.UserScore{}, err
	}
	if _, err = tx.ExecContext(ctx,
		s.db.Rebind(`UPDATE user_scores SET total_points = ?, document = ?, updated_at = ? WHERE user_id = ?`),
		rec.TotalPoints, doc, rec.UpdatedAt.UTC(), string(user)); err != nil {
		return core.UserScore{}, fmt.Errorf("failed to update score: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return core.UserScore{}, fmt.Errorf("failed to commit score: %w", err)
	}
	return rec, nil
}

// Load returns the stored record or seed when the user has none.
func (s *Store) Load(ctx context.Context, user core.UserID, seed core.UserScore) (core.UserScore, error) {
	var doc string
	err := s.db.GetContext(ctx, &doc, s.db.Rebind(`SELECT document FROM user_scores WHERE user_id = ?`), string(user))
	if errors.Is(err, sql.ErrNoRows) {
		seed = seed.Clone()
		seed.UserID = user
		return seed, nil
	}
	if err != nil {
		return core.UserScore{}, fmt.Errorf("failed to load score: %w", err)
	}
	return decode(doc)
}

// List returns every record, highest points first.
func (s *Store) List(ctx context.Context) ([]core.UserScore, error) {
	var docs []string
	if err := s.db.SelectContext(ctx, &docs,
		`SELECT document FROM user_scores ORDER BY total_points DESC, user_id ASC`); err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	out := make([]core.UserScore, 0, len(docs))
	for _, d := range docs {
		rec, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CountAbove counts users with strictly more than points.
func (s *Store) CountAbove(ctx context.Context, points int64) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM user_scores WHERE total_points > ?`), points); err != nil {
		return 0, fmt.Errorf("failed to count scores: %w", err)
	}
	return n, nil
}

type profileRow struct {
	UserID      string `db:"user_id"`
	DisplayName string `db:"display_name"`
	Region      string `db:"region"`
}

// Profiles reads display identity from the users table.
func (s *Store) Profiles(ctx context.Context, users []core.UserID) (map[core.UserID]core.Profile, error) {
	out := make(map[core.UserID]core.Profile, len(users))
	if len(users) == 0 {
		return out, nil
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = string(u)
	}
	query, args, err := sqlx.In(`SELECT user_id, display_name, region FROM users WHERE user_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []profileRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	for _, r := range rows {
		out[core.UserID(r.UserID)] = core.Profile{DisplayName: r.DisplayName, Region: r.Region}
	}
	return out, nil
}

// PutProfile creates or replaces the users row for user.
func (s *Store) PutProfile(ctx context.Context, user core.UserID, p core.Profile) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(s.upsertProfile()), string(user), p.DisplayName, p.Region); err != nil {
		return fmt.Errorf("failed to store profile: %w", err)
	}
	return nil
}
