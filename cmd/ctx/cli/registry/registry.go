// Package registry is the process-wide index of registered projects: their
// recording state, recorder pid, active session, and adapter log wiring. It
// lives under the registry home (default ~/.context-agent, CTX_HOME override)
// and is the coordination point for the single-running-session invariant.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// Recording states mirrored between the registry and each project store.
const (
	StateStopped   = "stopped"
	StateRecording = "recording"
	StateStopping  = "stopping"
)

// SupportedAdapters is the closed set of adapter names accepted by
// SetAdapterLogPath.
var SupportedAdapters = []string{"cursor", "claude", "codex"}

const (
	lockRetries    = 8
	lockRetryDelay = 50 * time.Millisecond
)

// Project is one registry row.
type Project struct {
	Path             string
	DisplayName      string
	DeletedAt        string
	RecordingState   string
	ActiveSessionID  int64
	RecorderPID      int
	DBPath           string
	LogsPath         string
	StorageCapBytes  int64
	StorageUsedBytes int64
	VectorEnabled    bool
	LastUpdatedAt    string
	CreatedAt        string
	UpdatedAt        string
}

// Registry wraps the registry database and its config.toml mirror.
type Registry struct {
	db         *sql.DB
	homeDir    string
	configPath string
}

// Open creates the registry home if needed and opens the database.
func Open(homeDir string) (*Registry, error) {
	normalized, err := paths.NormalizePath(homeDir)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize registry home: %w", err)
	}
	if err := paths.EnsureDir(normalized); err != nil {
		return nil, err
	}

	dsn := normalized + "/" + paths.RegistryDBFile +
		"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &Registry{
		db:         db,
		homeDir:    normalized,
		configPath: normalized + "/" + paths.ConfigFile,
	}
	if err := r.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// OpenDefault opens the registry at the resolved registry home.
func OpenDefault() (*Registry, error) {
	home, err := paths.Home()
	if err != nil {
		return nil, err
	}
	return Open(home)
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close registry database: %w", err)
	}
	return nil
}

// HomeDir returns the normalized registry home directory.
func (r *Registry) HomeDir() string { return r.homeDir }

func (r *Registry) init() error {
	return r.withRetry(func() error {
		_, err := r.db.Exec(`
			CREATE TABLE IF NOT EXISTS projects (
			    path TEXT PRIMARY KEY,
			    display_name TEXT,
			    deleted_at TEXT,
			    recording_state TEXT NOT NULL DEFAULT 'stopped',
			    active_session_id INTEGER,
			    recorder_pid INTEGER,
			    db_path TEXT,
			    logs_path TEXT,
			    storage_cap_bytes INTEGER NOT NULL DEFAULT 524288000,
			    storage_used_bytes INTEGER NOT NULL DEFAULT 0,
			    vector_enabled INTEGER NOT NULL DEFAULT 0,
			    last_updated_at TEXT,
			    created_at TEXT NOT NULL,
			    updated_at TEXT NOT NULL
			);
			CREATE TABLE IF NOT EXISTS adapter_configs (
			    adapter TEXT PRIMARY KEY,
			    log_path TEXT NOT NULL,
			    updated_at TEXT NOT NULL
			);`)
		if err != nil {
			return fmt.Errorf("failed to initialize registry schema: %w", err)
		}
		return nil
	})
}

func (r *Registry) withRetry(fn func() error) error {
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

func utcNow() string {
	return time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

// UpsertProject registers or refreshes a project row. A present display name
// is never cleared by an empty argument; cap, usage, and state survive
// re-registration.
func (r *Registry) UpsertProject(projectPath, displayName, dbPath, logsPath string) error {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return err
	}
	now := utcNow()
	var display any
	if trimmed := strings.TrimSpace(displayName); trimmed != "" {
		display = trimmed
	}
	return r.withRetry(func() error {
		var exists int
		err := r.db.QueryRow(`SELECT 1 FROM projects WHERE path = ?`, path).Scan(&exists)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = r.db.Exec(
				`INSERT INTO projects (
				     path, display_name, deleted_at, recording_state,
				     active_session_id, recorder_pid, db_path, logs_path,
				     storage_cap_bytes, storage_used_bytes, vector_enabled,
				     last_updated_at, created_at, updated_at
				 ) VALUES (?, ?, NULL, 'stopped', NULL, NULL, ?, ?, ?, 0, 0, ?, ?, ?)`,
				path, display, dbPath, logsPath, defaultCapBytes, now, now, now,
			)
		case err == nil:
			_, err = r.db.Exec(
				`UPDATE projects
				 SET display_name = COALESCE(?, display_name),
				     db_path = ?, logs_path = ?, updated_at = ?
				 WHERE path = ?`,
				display, dbPath, logsPath, now, path,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to upsert project: %w", err)
		}
		return nil
	})
}

const defaultCapBytes = 500 * 1024 * 1024

const projectColumns = `path, COALESCE(display_name, ''), COALESCE(deleted_at, ''), recording_state,
	COALESCE(active_session_id, 0), COALESCE(recorder_pid, 0),
	COALESCE(db_path, ''), COALESCE(logs_path, ''),
	storage_cap_bytes, storage_used_bytes, vector_enabled,
	COALESCE(last_updated_at, ''), created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var vector int
	if err := row.Scan(
		&p.Path, &p.DisplayName, &p.DeletedAt, &p.RecordingState,
		&p.ActiveSessionID, &p.RecorderPID, &p.DBPath, &p.LogsPath,
		&p.StorageCapBytes, &p.StorageUsedBytes, &vector,
		&p.LastUpdatedAt, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.VectorEnabled = vector == 1
	return &p, nil
}

// GetProject returns one registry row, or nil when the project is unknown.
func (r *Registry) GetProject(projectPath string) (*Project, error) {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return nil, err
	}
	var project *Project
	err = r.withRetry(func() error {
		row := r.db.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE path = ?`, path)
		p, err := scanProject(row)
		if errors.Is(err, sql.ErrNoRows) {
			project = nil
			return nil
		}
		if err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	return project, nil
}

// ListProjects returns all rows ordered by path, excluding soft-deleted rows
// unless includeDeleted is set.
func (r *Registry) ListProjects(includeDeleted bool) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE deleted_at IS NULL ORDER BY path`
	if includeDeleted {
		query = `SELECT ` + projectColumns + ` FROM projects ORDER BY path`
	}
	var projects []Project
	err := r.withRetry(func() error {
		rows, err := r.db.Query(query)
		if err != nil {
			return err
		}
		defer rows.Close()
		projects = projects[:0]
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return err
			}
			projects = append(projects, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// FindProjectsByName returns every non-deleted project with the given display
// name. Ambiguity is the caller's problem to surface, not resolve.
func (r *Registry) FindProjectsByName(name string) ([]Project, error) {
	target := strings.TrimSpace(name)
	var projects []Project
	err := r.withRetry(func() error {
		rows, err := r.db.Query(
			`SELECT `+projectColumns+` FROM projects
			 WHERE deleted_at IS NULL AND display_name = ? ORDER BY path`,
			target,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		projects = projects[:0]
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return err
			}
			projects = append(projects, *p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find projects by name: %w", err)
	}
	return projects, nil
}

// SetRecordingState updates state, active session, and recorder pid together.
// Zero sessionID/pid clear the columns.
func (r *Registry) SetRecordingState(projectPath, state string, sessionID int64, recorderPID int) error {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return err
	}
	now := utcNow()
	var sid, pid any
	if sessionID != 0 {
		sid = sessionID
	}
	if recorderPID != 0 {
		pid = recorderPID
	}
	return r.withRetry(func() error {
		_, err := r.db.Exec(
			`UPDATE projects
			 SET recording_state = ?, active_session_id = ?, recorder_pid = ?,
			     updated_at = ?, last_updated_at = COALESCE(last_updated_at, ?)
			 WHERE path = ?`,
			state, sid, pid, now, now, path,
		)
		if err != nil {
			return fmt.Errorf("failed to set recording state: %w", err)
		}
		return nil
	})
}

// SetProjectDeleted sets or clears the soft-delete marker. Deleting forces
// the state to stopped and clears session and pid.
func (r *Registry) SetProjectDeleted(projectPath string, deleted bool) error {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return err
	}
	now := utcNow()
	return r.withRetry(func() error {
		var execErr error
		if deleted {
			_, execErr = r.db.Exec(
				`UPDATE projects
				 SET deleted_at = ?, recording_state = 'stopped',
				     active_session_id = NULL, recorder_pid = NULL, updated_at = ?
				 WHERE path = ?`,
				now, now, path,
			)
		} else {
			_, execErr = r.db.Exec(
				`UPDATE projects SET deleted_at = NULL, updated_at = ? WHERE path = ?`,
				now, path,
			)
		}
		if execErr != nil {
			return fmt.Errorf("failed to update deleted marker: %w", execErr)
		}
		return nil
	})
}

// RemoveProject deletes the registry row outright.
func (r *Registry) RemoveProject(projectPath string) error {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return err
	}
	return r.withRetry(func() error {
		if _, err := r.db.Exec(`DELETE FROM projects WHERE path = ?`, path); err != nil {
			return fmt.Errorf("failed to remove project: %w", err)
		}
		return nil
	})
}

// UpdateStorage mirrors the store's measured usage onto the registry row.
// The store remains authoritative; this is event-driven via operator
// commands.
func (r *Registry) UpdateStorage(projectPath string, usedBytes int64) error {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return err
	}
	now := utcNow()
	return r.withRetry(func() error {
		_, err := r.db.Exec(
			`UPDATE projects SET storage_used_bytes = ?, updated_at = ? WHERE path = ?`,
			usedBytes, now, path,
		)
		if err != nil {
			return fmt.Errorf("failed to update storage: %w", err)
		}
		return nil
	})
}

// SetVectorEnabled records the vector-search feature flag. The flag is
// recorded, not exercised.
func (r *Registry) SetVectorEnabled(projectPath string, enabled bool) error {
	path, err := paths.NormalizePath(projectPath)
	if err != nil {
		return err
	}
	now := utcNow()
	flag := 0
	if enabled {
		flag = 1
	}
	return r.withRetry(func() error {
		_, err := r.db.Exec(
			`UPDATE projects SET vector_enabled = ?, updated_at = ? WHERE path = ?`,
			flag, now, path,
		)
		if err != nil {
			return fmt.Errorf("failed to set vector flag: %w", err)
		}
		return nil
	})
}

// SetAdapterLogPath wires an adapter to its log file and rewrites the
// config.toml mirror.
func (r *Registry) SetAdapterLogPath(adapter, logPath string) error {
	name := strings.ToLower(strings.TrimSpace(adapter))
	if err := paths.ValidateAdapterName(name); err != nil {
		return err
	}
	supported := false
	for _, a := range SupportedAdapters {
		if a == name {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported adapter %q (supported: %s)", name, strings.Join(SupportedAdapters, ", "))
	}
	path, err := paths.NormalizePath(logPath)
	if err != nil {
		return err
	}
	now := utcNow()
	if err := r.withRetry(func() error {
		_, err := r.db.Exec(
			`INSERT INTO adapter_configs(adapter, log_path, updated_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(adapter) DO UPDATE SET
			     log_path = excluded.log_path, updated_at = excluded.updated_at`,
			name, path, now,
		)
		if err != nil {
			return fmt.Errorf("failed to set adapter log path: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	return r.syncConfigFile()
}

// AdapterConfigs returns the adapter -> log path map.
func (r *Registry) AdapterConfigs() (map[string]string, error) {
	configs := make(map[string]string)
	err := r.withRetry(func() error {
		rows, err := r.db.Query(`SELECT adapter, log_path FROM adapter_configs`)
		if err != nil {
			return err
		}
		defer rows.Close()
		clear(configs)
		for rows.Next() {
			var adapter, logPath string
			if err := rows.Scan(&adapter, &logPath); err != nil {
				return err
			}
			configs[adapter] = logPath
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter configs: %w", err)
	}
	return configs, nil
}
