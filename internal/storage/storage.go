// Package storage is wardenbot's persistence layer: a single sqlite file
// holding the managed identities and the job queue.
//
// The store is the only durable state in the process. Everything
// the gate, the discovery path and the scheduler decide is reconstructible
// from these two tables after a restart.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when an identity or job row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrConflict is returned when an insert loses a uniqueness race.
	// Callers treat it as "row already exists", not as a failure.
	ErrConflict = errors.New("storage: already exists")
)

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store wraps the sqlite handle. All methods are safe for concurrent use;
// sqlite itself serializes writers (MaxOpenConns is pinned to 1).
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func Open(cfg Config, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
