package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// CreateSession inserts a running session and flips the project to recording.
// The registry is the coordination point for the single-running-session
// invariant; the store does not veto a second running row itself.
func (s *Store) CreateSession(agent, externalSessionRef string) (int64, error) {
	now := utcNow()
	var sessionID int64
	err := s.inTx(func(tx *sql.Tx) error {
		projectID, err := projectIDTx(tx, s.projectPath)
		if err != nil {
			return err
		}
		var extRef any
		if externalSessionRef != "" {
			extRef = externalSessionRef
		}
		res, err := tx.Exec(
			`INSERT INTO sessions(project_id, agent, started_at, stopped_at, state, external_session_ref, last_updated_at)
			 VALUES (?, ?, ?, NULL, 'running', ?, ?)`,
			projectID, agent, now, extRef, now,
		)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		sessionID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read session id: %w", err)
		}
		_, err = tx.Exec(
			`UPDATE projects
			 SET recording_state = 'recording', last_updated_at = ?, updated_at = ?
			 WHERE id = ?`,
			now, now, projectID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark project recording: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sessionID, nil
}

// Session returns one session by id, or nil when absent.
func (s *Store) Session(sessionID int64) (*Session, error) {
	return s.querySession(`SELECT id, project_id, agent, started_at, COALESCE(stopped_at, ''), state,
	                              COALESCE(external_session_ref, ''), COALESCE(last_updated_at, '')
	                       FROM sessions WHERE id = ?`, sessionID)
}

// ActiveSession returns the most recent running session, or nil.
func (s *Store) ActiveSession() (*Session, error) {
	return s.querySession(`SELECT id, project_id, agent, started_at, COALESCE(stopped_at, ''), state,
	                              COALESCE(external_session_ref, ''), COALESCE(last_updated_at, '')
	                       FROM sessions WHERE state = 'running'
	                       ORDER BY started_at DESC LIMIT 1`)
}

// LatestSession returns the newest session regardless of state, or nil.
func (s *Store) LatestSession() (*Session, error) {
	return s.querySession(`SELECT id, project_id, agent, started_at, COALESCE(stopped_at, ''), state,
	                              COALESCE(external_session_ref, ''), COALESCE(last_updated_at, '')
	                       FROM sessions ORDER BY id DESC LIMIT 1`)
}

func (s *Store) querySession(query string, args ...any) (*Session, error) {
	var sess Session
	err := s.withRetry(func() error {
		row := s.db.QueryRow(query, args...)
		return row.Scan(
			&sess.ID, &sess.ProjectID, &sess.Agent, &sess.StartedAt, &sess.StoppedAt,
			&sess.State, &sess.ExternalSessionRef, &sess.LastUpdatedAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &sess, nil
}

// SetSessionState advances a session's state. Stopping a session also stamps
// stopped_at and flips the project's recording state.
func (s *Store) SetSessionState(sessionID int64, state string) error {
	now := utcNow()
	return s.inTx(func(tx *sql.Tx) error {
		if state == SessionStopped {
			if _, err := tx.Exec(
				`UPDATE sessions SET state = ?, stopped_at = ?, last_updated_at = ? WHERE id = ?`,
				state, now, now, sessionID,
			); err != nil {
				return fmt.Errorf("failed to stop session: %w", err)
			}
			if _, err := tx.Exec(
				`UPDATE projects SET recording_state = 'stopped', updated_at = ?, last_updated_at = ? WHERE path = ?`,
				now, now, s.projectPath,
			); err != nil {
				return fmt.Errorf("failed to mark project stopped: %w", err)
			}
			return nil
		}
		if _, err := tx.Exec(
			`UPDATE sessions SET state = ?, last_updated_at = ? WHERE id = ?`,
			state, now, sessionID,
		); err != nil {
			return fmt.Errorf("failed to update session state: %w", err)
		}
		if state == SessionStopping {
			if _, err := tx.Exec(
				`UPDATE projects SET recording_state = 'stopping', updated_at = ? WHERE path = ?`,
				now, s.projectPath,
			); err != nil {
				return fmt.Errorf("failed to mark project stopping: %w", err)
			}
		}
		return nil
	})
}

// SessionState returns the state string for sessionID, or "" when absent.
func (s *Store) SessionState(sessionID int64) (string, error) {
	var state string
	err := s.withRetry(func() error {
		err := s.db.QueryRow(`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			state = ""
			return nil
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to read session state: %w", err)
	}
	return state, nil
}

// SetSessionExternalRef sets the external session reference when provided.
func (s *Store) SetSessionExternalRef(sessionID int64, ref string) error {
	if ref == "" {
		return nil
	}
	now := utcNow()
	return s.withRetry(func() error {
		_, err := s.db.Exec(
			`UPDATE sessions SET external_session_ref = ?, last_updated_at = ? WHERE id = ?`,
			ref, now, sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to set external session ref: %w", err)
		}
		return nil
	})
}

// UpdateSourceStatus upserts a per-session heartbeat row.
func (s *Store) UpdateSourceStatus(sessionID int64, source, status, detail string) error {
	now := utcNow()
	var det any
	if detail != "" {
		det = detail
	}
	return s.withRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO source_status(session_id, source, status, detail, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, source)
			 DO UPDATE SET status = excluded.status, detail = excluded.detail, updated_at = excluded.updated_at`,
			sessionID, source, status, det, now,
		)
		if err != nil {
			return fmt.Errorf("failed to update source status %s: %w", source, err)
		}
		return nil
	})
}

// SourceStatuses returns all heartbeat rows for a session, ordered by source.
func (s *Store) SourceStatuses(sessionID int64) ([]SourceStatus, error) {
	var statuses []SourceStatus
	err := s.withRetry(func() error {
		rows, err := s.db.Query(
			`SELECT session_id, source, status, COALESCE(detail, ''), updated_at
			 FROM source_status WHERE session_id = ? ORDER BY source`,
			sessionID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		statuses = statuses[:0]
		for rows.Next() {
			var st SourceStatus
			if err := rows.Scan(&st.SessionID, &st.Source, &st.Status, &st.Detail, &st.UpdatedAt); err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read source statuses: %w", err)
	}
	return statuses, nil
}

// AdapterOffset returns the stored byte offset for (session, adapter, path),
// zero when absent.
func (s *Store) AdapterOffset(sessionID int64, adapter, logPath string) (int64, error) {
	var offset int64
	err := s.withRetry(func() error {
		err := s.db.QueryRow(
			`SELECT byte_offset FROM adapter_offsets
			 WHERE session_id = ? AND adapter = ? AND log_path = ?`,
			sessionID, adapter, logPath,
		).Scan(&offset)
		if errors.Is(err, sql.ErrNoRows) {
			offset = 0
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read adapter offset: %w", err)
	}
	return offset, nil
}

// SetAdapterOffset records the byte offset after a successfully processed
// chunk.
func (s *Store) SetAdapterOffset(sessionID int64, adapter, logPath string, offset int64) error {
	now := utcNow()
	return s.withRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO adapter_offsets(session_id, adapter, log_path, byte_offset, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, adapter, log_path)
			 DO UPDATE SET byte_offset = excluded.byte_offset, updated_at = excluded.updated_at`,
			sessionID, adapter, logPath, offset, now,
		)
		if err != nil {
			return fmt.Errorf("failed to set adapter offset: %w", err)
		}
		return nil
	})
}
