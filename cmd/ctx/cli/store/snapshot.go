package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// RecentEventsDefault is the snapshot's default recent-event depth.
const RecentEventsDefault = 5

// Snapshot is one consistent read of the project's recorded state.
type Snapshot struct {
	Project               *Project
	ActiveSession         *Session
	SourceStatuses        []SourceStatus
	Events                []Event
	LastRevert            *Event
	EffectiveChangedFiles int
	StorageUsedBytes      int64
}

// RecentEvents returns the newest events first, up to limit.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = RecentEventsDefault
	}
	var events []Event
	err := s.withRetry(func() error {
		rows, err := s.db.Query(
			`SELECT id, session_id, event_type, summary, COALESCE(files_touched_json, '[]'),
			        COALESCE(before_hash, ''), COALESCE(after_hash, ''),
			        COALESCE(reverted_event_id, 0), COALESCE(reverted_by_event_id, 0),
			        is_effective, source, created_at, updated_at, dedupe_hash
			 FROM events ORDER BY id DESC LIMIT ?`,
			limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		events = events[:0]
		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var ev Event
	var filesJSON string
	var effective int
	if err := row.Scan(
		&ev.ID, &ev.SessionID, &ev.Type, &ev.Summary, &filesJSON,
		&ev.BeforeHash, &ev.AfterHash, &ev.RevertedEventID, &ev.RevertedByEventID,
		&effective, &ev.Source, &ev.CreatedAt, &ev.UpdatedAt, &ev.DedupeHash,
	); err != nil {
		return Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	ev.IsEffective = effective == 1
	if err := json.Unmarshal([]byte(filesJSON), &ev.FilesTouched); err != nil {
		return Event{}, fmt.Errorf("failed to decode files for event %d: %w", ev.ID, err)
	}
	return ev, nil
}

// EventByID returns one event, or nil when absent.
func (s *Store) EventByID(id int64) (*Event, error) {
	var ev Event
	err := s.withRetry(func() error {
		row := s.db.QueryRow(
			`SELECT id, session_id, event_type, summary, COALESCE(files_touched_json, '[]'),
			        COALESCE(before_hash, ''), COALESCE(after_hash, ''),
			        COALESCE(reverted_event_id, 0), COALESCE(reverted_by_event_id, 0),
			        is_effective, source, created_at, updated_at, dedupe_hash
			 FROM events WHERE id = ?`,
			id,
		)
		var err error
		ev, err = scanEvent(row)
		return err
	})
	if err != nil && containsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// LastRevert returns the most recent revert event, or nil.
func (s *Store) LastRevert() (*Event, error) {
	var ev Event
	err := s.withRetry(func() error {
		row := s.db.QueryRow(
			`SELECT id, session_id, event_type, summary, COALESCE(files_touched_json, '[]'),
			        COALESCE(before_hash, ''), COALESCE(after_hash, ''),
			        COALESCE(reverted_event_id, 0), COALESCE(reverted_by_event_id, 0),
			        is_effective, source, created_at, updated_at, dedupe_hash
			 FROM events WHERE event_type = 'revert' ORDER BY id DESC LIMIT 1`,
		)
		var err error
		ev, err = scanEvent(row)
		return err
	})
	if err != nil && containsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func containsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// EffectiveChangedFiles lists tracked paths currently differing from their
// baseline.
func (s *Store) EffectiveChangedFiles() ([]string, error) {
	var files []string
	err := s.withRetry(func() error {
		rows, err := s.db.Query(`SELECT path FROM file_state WHERE is_clean = 0 ORDER BY path`)
		if err != nil {
			return err
		}
		defer rows.Close()
		files = files[:0]
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			files = append(files, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read changed files: %w", err)
	}
	return files, nil
}

// StatusSnapshot assembles the operator-facing view: project row, active (or
// latest) session, its heartbeats, the newest events, the last revert, the
// dirty-file count, and the measured storage usage.
func (s *Store) StatusSnapshot(recentLimit int) (*Snapshot, error) {
	if recentLimit <= 0 {
		recentLimit = RecentEventsDefault
	}

	project, err := s.ProjectRow()
	if err != nil {
		return nil, err
	}
	active, err := s.ActiveSession()
	if err != nil {
		return nil, err
	}
	session := active
	if session == nil {
		session, err = s.LatestSession()
		if err != nil {
			return nil, err
		}
	}

	var statuses []SourceStatus
	if session != nil {
		statuses, err = s.SourceStatuses(session.ID)
		if err != nil {
			return nil, err
		}
	}
	events, err := s.RecentEvents(recentLimit)
	if err != nil {
		return nil, err
	}
	lastRevert, err := s.LastRevert()
	if err != nil {
		return nil, err
	}
	changed, err := s.DirtyFileCount()
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Project:               project,
		ActiveSession:         active,
		SourceStatuses:        statuses,
		Events:                events,
		LastRevert:            lastRevert,
		EffectiveChangedFiles: changed,
		StorageUsedBytes:      paths.DirectorySizeBytes(s.memoryRoot),
	}, nil
}
