package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// SummaryMaxChars caps stored summary length after whitespace collapsing.
const SummaryMaxChars = 500

// dedupeWindowSeconds is the same-session window within which an identical
// fingerprint collapses onto the existing row.
const dedupeWindowSeconds = 30

// EventInput describes one event to insert. SessionID, Summary, and Source
// are required; Type is coerced onto the closed set.
type EventInput struct {
	SessionID       int64
	Type            string
	Summary         string
	FilesTouched    []string
	Source          string
	ToolName        string
	ToolPurpose     string
	ToolResult      string
	DecisionSummary string
	BeforeHash      string
	AfterHash       string
	RevertedEventID int64
	IsEffective     bool
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeSummary collapses whitespace runs to single spaces, trims, and
// truncates to max characters. An empty result is the caller's error.
func NormalizeSummary(summary string, maxChars int) string {
	collapsed := whitespaceRun.ReplaceAllString(strings.TrimSpace(summary), " ")
	runes := []rune(collapsed)
	if len(runes) > maxChars {
		return string(runes[:maxChars])
	}
	return collapsed
}

func trimmedOrDefault(s, def string) string {
	if trimmed := strings.TrimSpace(s); trimmed != "" {
		return trimmed
	}
	return def
}

// sanitizeFiles sorts, deduplicates, and canonicalizes touched paths.
// Absolute paths stay absolute in POSIX form; relative paths resolving inside
// the project root are stored repo-relative.
func (s *Store) sanitizeFiles(filesTouched []string) []string {
	if len(filesTouched) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(filesTouched))
	for _, item := range filesTouched {
		raw := strings.TrimSpace(item)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") {
			seen[paths.ToPosix(raw)] = true
			continue
		}
		seen[paths.RelativeToProject(s.projectPath, raw)] = true
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// DedupeFingerprint computes the insert fingerprint from the event columns.
func DedupeFingerprint(eventType, summary string, files []string, beforeHash, afterHash string, revertedEventID int64, isEffective bool) string {
	reverted := ""
	if revertedEventID != 0 {
		reverted = fmt.Sprintf("%d", revertedEventID)
	}
	effective := "0"
	if isEffective {
		effective = "1"
	}
	basis := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		eventType, strings.ToLower(summary), strings.Join(files, ","),
		beforeHash, afterHash, reverted, effective,
	)
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// InsertEvent validates, deduplicates, and persists one event. Quota
// enforcement (and compaction if due) runs first; the insert itself is one
// transaction; the JSONL sidecar line is appended for real inserts only.
func (s *Store) InsertEvent(in EventInput) (int64, error) {
	if err := s.enforceQuota(); err != nil {
		return 0, err
	}

	now := utcNow()
	var eventID int64
	var inserted bool
	var payload eventLogPayload
	err := s.inTx(func(tx *sql.Tx) error {
		var err error
		eventID, inserted, payload, err = s.insertEventTx(tx, in, now)
		return err
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

type eventLogPayload struct {
	EventID         int64    `json:"event_id"`
	SessionID       int64    `json:"session_id"`
	EventType       string   `json:"event_type"`
	Summary         string   `json:"summary"`
	FilesTouched    []string `json:"files_touched"`
	BeforeHash      *string  `json:"before_hash"`
	AfterHash       *string  `json:"after_hash"`
	RevertedEventID *int64   `json:"reverted_event_id"`
	Source          string   `json:"source"`
	CreatedAt       string   `json:"created_at"`
}

// insertEventTx is the transactional body shared by InsertEvent and
// RecordFileTransition. Returns the event id, whether a new row was written
// (false on a dedupe hit), and the sidecar payload.
func (s *Store) insertEventTx(tx *sql.Tx, in EventInput, now string) (int64, bool, eventLogPayload, error) {
	var zero eventLogPayload

	safeType := CoerceEventType(in.Type)
	safeSummary := NormalizeSummary(in.Summary, SummaryMaxChars)
	if safeSummary == "" {
		return 0, false, zero, fmt.Errorf("%w: summary cannot be empty", ErrInvalidArgument)
	}

	files := s.sanitizeFiles(in.FilesTouched)
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return 0, false, zero, fmt.Errorf("failed to encode files: %w", err)
	}
	if files == nil {
		filesJSON = []byte("[]")
	}
	dedupeHash := DedupeFingerprint(safeType, safeSummary, files, in.BeforeHash, in.AfterHash, in.RevertedEventID, in.IsEffective)

	projectID, err := projectIDTx(tx, s.projectPath)
	if err != nil {
		return 0, false, zero, err
	}

	// Dedupe: an identical fingerprint inside the window refreshes the
	// existing row instead of inserting.
	var existingID int64
	var existingCreated string
	err = tx.QueryRow(
		`SELECT id, created_at FROM events
		 WHERE session_id = ? AND dedupe_hash = ?
		 ORDER BY created_at DESC LIMIT 1`,
		in.SessionID, dedupeHash,
	).Scan(&existingID, &existingCreated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, false, zero, fmt.Errorf("failed to query dedupe index: %w", err)
	}
	if err == nil {
		nowT, perr := parseTimestamp(now)
		if perr != nil {
			return 0, false, zero, perr
		}
		createdT, perr := parseTimestamp(existingCreated)
		if perr == nil && nowT.Sub(createdT).Seconds() <= dedupeWindowSeconds {
			if _, err := tx.Exec(`UPDATE events SET updated_at = ? WHERE id = ?`, now, existingID); err != nil {
				return 0, false, zero, fmt.Errorf("failed to refresh deduped event: %w", err)
			}
			if err := touchSessionAndProject(tx, in.SessionID, projectID, now); err != nil {
				return 0, false, zero, err
			}
			return existingID, false, zero, nil
		}
	}

	isEffective := 0
	if in.IsEffective {
		isEffective = 1
	}
	res, err := tx.Exec(
		`INSERT INTO events(project_id, session_id, event_type, summary, files_touched_json,
		                    before_hash, after_hash, reverted_event_id, reverted_by_event_id,
		                    is_effective, source, created_at, updated_at, dedupe_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)`,
		projectID, in.SessionID, safeType, safeSummary, string(filesJSON),
		nullable(in.BeforeHash), nullable(in.AfterHash), nullableID(in.RevertedEventID),
		isEffective, in.Source, now, now, dedupeHash,
	)
	if err != nil {
		return 0, false, zero, fmt.Errorf("failed to insert event: %w", err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return 0, false, zero, fmt.Errorf("failed to read event id: %w", err)
	}

	if in.ToolName != "" {
		if _, err := tx.Exec(
			`INSERT INTO tool_usage(project_id, session_id, event_id, tool_name, purpose, result, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			projectID, in.SessionID, eventID, in.ToolName,
			nullable(in.ToolPurpose), nullable(in.ToolResult), now,
		); err != nil {
			return 0, false, zero, fmt.Errorf("failed to insert tool usage: %w", err)
		}
	}
	if safeType == EventDecisionMade || in.DecisionSummary != "" {
		decision := in.DecisionSummary
		if decision == "" {
			decision = safeSummary
		}
		if _, err := tx.Exec(
			`INSERT INTO decisions(project_id, session_id, event_id, summary, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			projectID, in.SessionID, eventID, decision, now,
		); err != nil {
			return 0, false, zero, fmt.Errorf("failed to insert decision: %w", err)
		}
	}
	if err := touchSessionAndProject(tx, in.SessionID, projectID, now); err != nil {
		return 0, false, zero, err
	}

	payload := eventLogPayload{
		EventID:         eventID,
		SessionID:       in.SessionID,
		EventType:       safeType,
		Summary:         safeSummary,
		FilesTouched:    files,
		BeforeHash:      nullableStr(in.BeforeHash),
		AfterHash:       nullableStr(in.AfterHash),
		RevertedEventID: nullableInt(in.RevertedEventID),
		Source:          in.Source,
		CreatedAt:       now,
	}
	if payload.FilesTouched == nil {
		payload.FilesTouched = []string{}
	}
	return eventID, true, payload, nil
}

func touchSessionAndProject(tx *sql.Tx, sessionID, projectID int64, now string) error {
	if _, err := tx.Exec(`UPDATE sessions SET last_updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if _, err := tx.Exec(`UPDATE projects SET last_updated_at = ?, updated_at = ? WHERE id = ?`, now, now, projectID); err != nil {
		return fmt.Errorf("failed to touch project: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
