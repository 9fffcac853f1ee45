// Package store is the per-project event log and state engine. It owns the
// SQLite database under <project>/.context-memory/ and exposes transactional
// insert/query primitives to the recorder, the RPC server, and hook ingestion.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// Sentinel errors surfaced to producers. Producers downgrade
// ErrStorageCapExceeded (mark source degraded, drop the event); the other two
// are reported to the caller and never retried.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNoActiveSession    = errors.New("no active session")
	ErrStorageCapExceeded = errors.New("storage cap exceeded")
)

// DefaultCapBytes is the per-project storage cap applied at registration.
const DefaultCapBytes = 500 * 1024 * 1024

// compactionThresholdRatio is the usage fraction of the cap at which
// compaction kicks in before an insert.
const compactionThresholdRatio = 0.85

// DeletedFileHash is the sentinel hash representing a deleted file.
const DeletedFileHash = "__deleted__"

const (
	lockRetries    = 8
	lockRetryDelay = 50 * time.Millisecond
)

// Store is a handle on one project's memory database. Safe for use from a
// single process; cross-process coordination is delegated to SQLite locking.
type Store struct {
	db          *sql.DB
	projectPath string
	memoryRoot  string
	logsPath    string
}

// Open creates (if needed) and opens the memory database for projectPath.
// projectPath must be absolute. The project row is seeded on first open.
func Open(projectPath string) (*Store, error) {
	normalized, err := paths.NormalizePath(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize project path: %w", err)
	}

	memoryRoot := paths.MemoryRoot(normalized)
	logsPath := paths.ProjectLogsDir(normalized)
	if err := paths.EnsureDir(memoryRoot); err != nil {
		return nil, err
	}
	if err := paths.EnsureDir(logsPath); err != nil {
		return nil, err
	}

	dsn := paths.ProjectDBPath(normalized) +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open project database: %w", err)
	}
	// A single connection keeps transactions serialized within the process
	// and avoids driver-level lock churn between the pollers.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:          db,
		projectPath: normalized,
		memoryRoot:  memoryRoot,
		logsPath:    logsPath,
	}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close project database: %w", err)
	}
	return nil
}

// ProjectPath returns the normalized absolute project path.
func (s *Store) ProjectPath() string { return s.projectPath }

// MemoryRoot returns the project's .context-memory directory.
func (s *Store) MemoryRoot() string { return s.memoryRoot }

func (s *Store) init() error {
	return s.withRetry(func() error {
		if _, err := s.db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		now := utcNow()
		_, err := s.db.Exec(
			`INSERT INTO projects(path, display_name, recording_state, created_at, updated_at,
			                      last_updated_at, deleted_at, storage_cap_bytes, storage_used_bytes)
			 VALUES (?, NULL, 'stopped', ?, ?, ?, NULL, ?, 0)
			 ON CONFLICT(path) DO NOTHING`,
			s.projectPath, now, now, now, DefaultCapBytes,
		)
		if err != nil {
			return fmt.Errorf("failed to seed project row: %w", err)
		}
		return nil
	})
}

// withRetry runs fn, retrying on SQLite lock contention with bounded
// exponential backoff. Non-lock errors are returned immediately.
func (s *Store) withRetry(fn func() error) error {
	delay := lockRetryDelay
	var err error
	for attempt := 0; attempt < lockRetries; attempt++ {
		err = fn()
		if err == nil || !isLockedError(err) {
			return err
		}
		if attempt == lockRetries-1 {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func isLockedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

// inTx runs fn inside a single transaction with lock retries.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	return s.withRetry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// utcNow returns the current time as ISO-8601 UTC with second precision and
// a trailing Z, the timestamp format used throughout the store.
func utcNow() string {
	return time.Now().UTC().Truncate(time.Second).Format(timeLayout)
}

const timeLayout = "2006-01-02T15:04:05Z"

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
