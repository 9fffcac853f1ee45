package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// compactionBatchLimit bounds how many low-value events one compaction pass
// removes.
const compactionBatchLimit = 3000

// compactionMinAge protects recent events from compaction.
const compactionMinAge = 24 * time.Hour

func compactionCutoff() string {
	return time.Now().UTC().Add(-compactionMinAge).Truncate(time.Second).Format(timeLayout)
}

// enforceQuota runs before every insert. When usage crosses the compaction
// threshold it compacts and vacuums, then records the measured usage. It
// returns ErrStorageCapExceeded when usage still meets the cap afterwards.
//
// Compaction, the vacuum, and the subsequent insert are a well-ordered
// sequence of transactions: VACUUM cannot run inside a transaction, so the
// cap check happens after the vacuum and before the insert begins.
func (s *Store) enforceQuota() error {
	cap64, err := s.storageCap()
	if err != nil {
		return err
	}
	used := paths.DirectorySizeBytes(s.memoryRoot)
	if used >= int64(float64(cap64)*compactionThresholdRatio) {
		if err := s.inTx(func(tx *sql.Tx) error { return s.compactTx(tx) }); err != nil {
			return err
		}
		if err := s.withRetry(func() error {
			_, err := s.db.Exec(`VACUUM`)
			return err
		}); err != nil {
			return fmt.Errorf("failed to vacuum after compaction: %w", err)
		}
		used = paths.DirectorySizeBytes(s.memoryRoot)
	}
	if err := s.UpdateStorage(used); err != nil {
		return err
	}
	if used >= cap64 {
		return fmt.Errorf("%w: %d bytes >= %d bytes", ErrStorageCapExceeded, used, cap64)
	}
	return nil
}

func (s *Store) storageCap() (int64, error) {
	var cap64 int64
	err := s.withRetry(func() error {
		err := s.db.QueryRow(
			`SELECT storage_cap_bytes FROM projects WHERE path = ?`, s.projectPath,
		).Scan(&cap64)
		if errors.Is(err, sql.ErrNoRows) {
			cap64 = DefaultCapBytes
			return nil
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read storage cap: %w", err)
	}
	if cap64 <= 0 {
		cap64 = DefaultCapBytes
	}
	return cap64, nil
}

// compactTx collapses up to compactionBatchLimit low-value events older than
// 24 hours into one rollup row and deletes them. High-value events are never
// touched.
func (s *Store) compactTx(tx *sql.Tx) error {
	cutoff := compactionCutoff()

	highValue := make([]string, 0, len(highValueEventTypes))
	for t := range highValueEventTypes {
		highValue = append(highValue, t)
	}
	sort.Strings(highValue)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(highValue)), ",")
	args := make([]any, 0, len(highValue)+1)
	for _, t := range highValue {
		args = append(args, t)
	}
	args = append(args, cutoff)

	rows, err := tx.Query(
		fmt.Sprintf(
			`SELECT id, event_type, created_at FROM events
			 WHERE event_type NOT IN (%s) AND created_at < ?
			 ORDER BY created_at LIMIT %d`,
			placeholders, compactionBatchLimit,
		),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to select compactable events: %w", err)
	}
	defer rows.Close()

	var ids []any
	counts := map[string]int{}
	var periodStart, periodEnd string
	for rows.Next() {
		var id int64
		var eventType, createdAt string
		if err := rows.Scan(&id, &eventType, &createdAt); err != nil {
			return fmt.Errorf("failed to scan compactable event: %w", err)
		}
		if periodStart == "" {
			periodStart = createdAt
		}
		periodEnd = createdAt
		counts[eventType]++
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate compactable events: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s:%d", t, counts[t]))
	}
	summary := fmt.Sprintf("Compacted %d low-value events (%s).", len(ids), strings.Join(parts, ", "))

	projectID, err := projectIDTx(tx, s.projectPath)
	if err != nil {
		return err
	}
	now := utcNow()
	if _, err := tx.Exec(
		`INSERT INTO rollups(project_id, period_start, period_end, summary, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		projectID, periodStart, periodEnd, summary, now,
	); err != nil {
		return fmt.Errorf("failed to insert rollup: %w", err)
	}

	idPlaceholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	if _, err := tx.Exec(
		fmt.Sprintf(`DELETE FROM events WHERE id IN (%s)`, idPlaceholders), ids...,
	); err != nil {
		return fmt.Errorf("failed to delete compacted events: %w", err)
	}
	return nil
}

// Compact runs one compaction pass outside the quota path (used by tests and
// maintenance commands).
func (s *Store) Compact() error {
	return s.inTx(func(tx *sql.Tx) error { return s.compactTx(tx) })
}

// Rollups returns all rollup rows, oldest first.
func (s *Store) Rollups() ([]Rollup, error) {
	var rollups []Rollup
	err := s.withRetry(func() error {
		rows, err := s.db.Query(
			`SELECT id, project_id, period_start, period_end, summary, created_at
			 FROM rollups ORDER BY id`,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		rollups = rollups[:0]
		for rows.Next() {
			var r Rollup
			if err := rows.Scan(&r.ID, &r.ProjectID, &r.PeriodStart, &r.PeriodEnd, &r.Summary, &r.CreatedAt); err != nil {
				return err
			}
			rollups = append(rollups, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rollups: %w", err)
	}
	return rollups, nil
}
