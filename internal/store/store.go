// Package store owns the embedded SQLite database: schema and migrations,
// transactional writes, and the lexical, vector, and graph queries every
// other component reads through.
//
// One process writes at a time. Reads are concurrent; writes serialize
// behind a single connection, and busy contention from other processes is
// retried with bounded backoff before surfacing as StoreBusy.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite "modernc.org/sqlite"

	kerrors "github.com/kdex-dev/kdex/internal/errors"
)

// MemoryPath opens a private in-memory database, used by tests.
const MemoryPath = ":memory:"

// Store is the single persistence layer. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed bool

	// Lazily built ANN index over the embeddings table; dropped on any
	// write that touches vectors.
	vmu     sync.Mutex
	vectors *vectorIndex
}

// Open opens or creates the database at path, applies pending migrations,
// and verifies integrity of pre-existing files. The parent directory is
// created if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		if err := validateIntegrity(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite allows one writer, and funneling reads
	// through the same connection avoids cross-connection lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// The driver ignores DSN pragma parameters, so set them explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: slog.Default().With("component", "store"),
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// validateIntegrity checks an existing database before the real open so a
// corrupt file surfaces as StoreCorrupt instead of arbitrary query errors.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return kerrors.StoreCorrupt(path, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return kerrors.StoreCorrupt(path, err)
	}
	if result != "ok" {
		return kerrors.StoreCorrupt(path, fmt.Errorf("integrity check: %s", result))
	}
	return nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) checkOpen() error {
	if s.closed {
		return kerrors.Internal("store is closed", nil)
	}
	return nil
}

// isBusy reports whether err is SQLite lock contention worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == 5 || code == 6 // SQLITE_BUSY, SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// classify wraps lock contention as a retryable StoreBusy and leaves other
// errors alone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isBusy(err) {
		return kerrors.StoreBusy(err)
	}
	return err
}

// write runs fn with the store's busy-retry policy. fn must be safe to run
// again after a busy failure.
func (s *Store) write(ctx context.Context, fn func() error) error {
	return kerrors.Retry(ctx, kerrors.StoreRetryConfig(), func() error {
		return classify(fn())
	})
}
