package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// SetProjectMetadata updates the display name and recording state. A nil-like
// empty displayName never clears a stored name.
func (s *Store) SetProjectMetadata(displayName, recordingState string) error {
	now := utcNow()
	var display any
	if trimmed := trimmedOrDefault(displayName, ""); trimmed != "" {
		display = trimmed
	}
	return s.withRetry(func() error {
		_, err := s.db.Exec(
			`UPDATE projects
			 SET display_name = COALESCE(?, display_name),
			     recording_state = ?,
			     updated_at = ?
			 WHERE path = ?`,
			display, recordingState, now, s.projectPath,
		)
		if err != nil {
			return fmt.Errorf("failed to update project metadata: %w", err)
		}
		return nil
	})
}

// SetProjectDeleted sets or clears the soft-delete marker. Deletion also
// forces the recording state to stopped.
func (s *Store) SetProjectDeleted(deleted bool) error {
	now := utcNow()
	return s.withRetry(func() error {
		var err error
		if deleted {
			_, err = s.db.Exec(
				`UPDATE projects
				 SET deleted_at = ?, recording_state = 'stopped', updated_at = ?
				 WHERE path = ?`,
				now, now, s.projectPath,
			)
		} else {
			_, err = s.db.Exec(
				`UPDATE projects
				 SET deleted_at = NULL, updated_at = ?
				 WHERE path = ?`,
				now, s.projectPath,
			)
		}
		if err != nil {
			return fmt.Errorf("failed to update project deleted marker: %w", err)
		}
		return nil
	})
}

// UpdateStorage records the measured memory-directory size on the project row.
func (s *Store) UpdateStorage(usedBytes int64) error {
	now := utcNow()
	return s.withRetry(func() error {
		_, err := s.db.Exec(
			`UPDATE projects SET storage_used_bytes = ?, updated_at = ? WHERE path = ?`,
			usedBytes, now, s.projectPath,
		)
		if err != nil {
			return fmt.Errorf("failed to update storage usage: %w", err)
		}
		return nil
	})
}

// ProjectRow returns the store's own project row.
func (s *Store) ProjectRow() (*Project, error) {
	var p Project
	err := s.withRetry(func() error {
		row := s.db.QueryRow(
			`SELECT id, path, COALESCE(display_name, ''), recording_state, created_at, updated_at,
			        COALESCE(last_updated_at, ''), COALESCE(deleted_at, ''),
			        storage_cap_bytes, storage_used_bytes
			 FROM projects WHERE path = ?`,
			s.projectPath,
		)
		return row.Scan(
			&p.ID, &p.Path, &p.DisplayName, &p.RecordingState, &p.CreatedAt, &p.UpdatedAt,
			&p.LastUpdatedAt, &p.DeletedAt, &p.StorageCapBytes, &p.StorageUsedBytes,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read project row: %w", err)
	}
	return &p, nil
}

func projectIDTx(tx *sql.Tx, projectPath string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM projects WHERE path = ?`, projectPath).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("project row missing")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read project id: %w", err)
	}
	return id, nil
}

// SetFeature upserts a feature flag.
func (s *Store) SetFeature(key, value string) error {
	now := utcNow()
	return s.withRetry(func() error {
		_, err := s.db.Exec(
			`INSERT INTO features(key, value, updated_at)
			 VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("failed to set feature %s: %w", key, err)
		}
		return nil
	})
}

// Feature reads a feature flag; missing keys return "".
func (s *Store) Feature(key string) (string, error) {
	var value string
	err := s.withRetry(func() error {
		err := s.db.QueryRow(`SELECT value FROM features WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			value = ""
			return nil
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to read feature %s: %w", key, err)
	}
	return value, nil
}
