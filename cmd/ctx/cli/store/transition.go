package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// InitializeFileState seeds file_state and file_hash_history from a first
// filesystem snapshot. Existing state rows are left untouched so baselines
// never move.
func (s *Store) InitializeFileState(snapshot map[string]string) error {
	now := utcNow()
	return s.inTx(func(tx *sql.Tx) error {
		for path, hash := range snapshot {
			if _, err := tx.Exec(
				`INSERT INTO file_state(path, current_hash, baseline_hash, last_event_id, is_clean, updated_at)
				 VALUES (?, ?, ?, NULL, 1, ?)
				 ON CONFLICT(path) DO NOTHING`,
				path, hash, hash, now,
			); err != nil {
				return fmt.Errorf("failed to seed file state for %s: %w", path, err)
			}
			if err := upsertHashHistoryTx(tx, path, hash, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertHashHistoryTx(tx *sql.Tx, path, hash, now string) error {
	if _, err := tx.Exec(
		`INSERT INTO file_hash_history(path, hash, first_seen_at, last_seen_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(path, hash) DO UPDATE SET last_seen_at = excluded.last_seen_at`,
		path, hash, now, now,
	); err != nil {
		return fmt.Errorf("failed to upsert hash history for %s: %w", path, err)
	}
	return nil
}

func isSeenHashTx(tx *sql.Tx, path, hash string) (bool, error) {
	var one int
	err := tx.QueryRow(
		`SELECT 1 FROM file_hash_history WHERE path = ? AND hash = ? LIMIT 1`,
		path, hash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query hash history: %w", err)
	}
	return true, nil
}

// RecordFileTransition applies one observed hash change to the per-file state
// machine. Deletion is expressed by an empty afterHash, stored as the
// __deleted__ sentinel. Returns the new event id, or 0 when the observation
// matched the current state and produced no event.
//
// A return to any previously observed hash is a revert; a return to the
// baseline additionally marks the file clean. The replaced event loses its
// is_effective flag, and on a revert gains a reverted_by pointer.
func (s *Store) RecordFileTransition(sessionID int64, source, path, afterHash string) (int64, error) {
	if err := s.enforceQuota(); err != nil {
		return 0, err
	}

	filePath := paths.ToPosix(path)
	safeAfter := afterHash
	if safeAfter == "" {
		safeAfter = DeletedFileHash
	}
	now := utcNow()

	var eventID int64
	var inserted bool
	var payload eventLogPayload
	err := s.inTx(func(tx *sql.Tx) error {
		beforeHash := DeletedFileHash
		baselineHash := DeletedFileHash
		var previousEventID int64
		var prevEvent sql.NullInt64
		err := tx.QueryRow(
			`SELECT current_hash, baseline_hash, last_event_id FROM file_state WHERE path = ?`,
			filePath,
		).Scan(&beforeHash, &baselineHash, &prevEvent)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read file state: %w", err)
		}
		if prevEvent.Valid {
			previousEventID = prevEvent.Int64
		}

		if beforeHash == safeAfter {
			return nil
		}

		seenBefore, err := isSeenHashTx(tx, filePath, safeAfter)
		if err != nil {
			return err
		}
		isRevert := seenBefore
		isClean := safeAfter == baselineHash

		var eventType, summary string
		switch {
		case isRevert && isClean:
			eventType = EventRevert
			summary = fmt.Sprintf("Last changes were reverted for %s; file returned to baseline.", filePath)
		case isRevert:
			eventType = EventRevert
			summary = fmt.Sprintf("Last changes were reverted for %s; file returned to a previous state.", filePath)
		default:
			eventType = EventCodeChange
			summary = fmt.Sprintf("File changed: %s.", filePath)
		}

		var revertedEventID int64
		if isRevert {
			revertedEventID = previousEventID
		}
		eventID, inserted, payload, err = s.insertEventTx(tx, EventInput{
			SessionID:       sessionID,
			Type:            eventType,
			Summary:         summary,
			FilesTouched:    []string{filePath},
			Source:          source,
			BeforeHash:      beforeHash,
			AfterHash:       safeAfter,
			RevertedEventID: revertedEventID,
			IsEffective:     true,
		}, now)
		if err != nil {
			return err
		}

		if previousEventID != 0 {
			if isRevert {
				if _, err := tx.Exec(
					`UPDATE events SET is_effective = 0, reverted_by_event_id = ? WHERE id = ?`,
					eventID, previousEventID,
				); err != nil {
					return fmt.Errorf("failed to mark reverted event: %w", err)
				}
			} else {
				if _, err := tx.Exec(
					`UPDATE events SET is_effective = 0 WHERE id = ?`, previousEventID,
				); err != nil {
					return fmt.Errorf("failed to mark superseded event: %w", err)
				}
			}
		}

		cleanFlag := 0
		if isClean {
			cleanFlag = 1
		}
		if _, err := tx.Exec(
			`INSERT INTO file_state(path, current_hash, baseline_hash, last_event_id, is_clean, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET
			     current_hash = excluded.current_hash,
			     last_event_id = excluded.last_event_id,
			     is_clean = excluded.is_clean,
			     updated_at = excluded.updated_at`,
			filePath, safeAfter, baselineHash, eventID, cleanFlag, now,
		); err != nil {
			return fmt.Errorf("failed to upsert file state: %w", err)
		}
		return upsertHashHistoryTx(tx, filePath, safeAfter, now)
	})
	if err != nil {
		return 0, err
	}
	if inserted {
		if err := s.appendEventLog(payload); err != nil {
			return 0, err
		}
		if err := s.UpdateStorage(paths.DirectorySizeBytes(s.memoryRoot)); err != nil {
			return 0, err
		}
	}
	return eventID, nil
}

// FileStateFor returns the tracked state for one path, or nil when untracked.
func (s *Store) FileStateFor(path string) (*FileState, error) {
	filePath := paths.ToPosix(path)
	var fs FileState
	var lastEvent sql.NullInt64
	var clean int
	err := s.withRetry(func() error {
		row := s.db.QueryRow(
			`SELECT path, current_hash, baseline_hash, last_event_id, is_clean, updated_at
			 FROM file_state WHERE path = ?`,
			filePath,
		)
		return row.Scan(&fs.Path, &fs.CurrentHash, &fs.BaselineHash, &lastEvent, &clean, &fs.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file state: %w", err)
	}
	if lastEvent.Valid {
		fs.LastEventID = lastEvent.Int64
	}
	fs.IsClean = clean == 1
	return &fs, nil
}

// KnownFileHashes returns the current snapshot view: path -> current hash for
// all tracked paths that are not deleted.
func (s *Store) KnownFileHashes() (map[string]string, error) {
	hashes := make(map[string]string)
	err := s.withRetry(func() error {
		rows, err := s.db.Query(`SELECT path, current_hash FROM file_state`)
		if err != nil {
			return err
		}
		defer rows.Close()
		clear(hashes)
		for rows.Next() {
			var path, hash string
			if err := rows.Scan(&path, &hash); err != nil {
				return err
			}
			if hash != DeletedFileHash {
				hashes[path] = hash
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read file hashes: %w", err)
	}
	return hashes, nil
}

// DirtyFileCount counts tracked paths whose current hash differs from the
// baseline.
func (s *Store) DirtyFileCount() (int, error) {
	var count int
	err := s.withRetry(func() error {
		return s.db.QueryRow(`SELECT COUNT(*) FROM file_state WHERE is_clean = 0`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count dirty files: %w", err)
	}
	return count, nil
}
