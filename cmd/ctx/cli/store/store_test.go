package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startSession(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.CreateSession("claude", "")
	require.NoError(t, err)
	return id
}

func TestInsertEvent_Basic(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	id, err := s.InsertEvent(EventInput{
		SessionID:    sessionID,
		Type:         EventUserIntent,
		Summary:      "Add retry logic to the fetcher",
		FilesTouched: []string{"internal/fetch.go"},
		Source:       "mcp:claude",
		IsEffective:  true,
	})
	require.NoError(t, err)
	require.Positive(t, id)

	ev, err := s.EventByID(id)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, EventUserIntent, ev.Type)
	require.Equal(t, "Add retry logic to the fetcher", ev.Summary)
	require.Equal(t, []string{"internal/fetch.go"}, ev.FilesTouched)
	require.True(t, ev.IsEffective)
	require.Equal(t, "mcp:claude", ev.Source)
}

func TestInsertEvent_NormalizesSummary(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	id, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        EventTaskStatus,
		Summary:     "  multiple   \n\t spaces   here  ",
		Source:      "test",
		IsEffective: true,
	})
	require.NoError(t, err)

	ev, err := s.EventByID(id)
	require.NoError(t, err)
	require.Equal(t, "multiple spaces here", ev.Summary)
}

func TestInsertEvent_TruncatesLongSummary(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	id, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        EventTaskStatus,
		Summary:     strings.Repeat("x", SummaryMaxChars+100),
		Source:      "test",
		IsEffective: true,
	})
	require.NoError(t, err)

	ev, err := s.EventByID(id)
	require.NoError(t, err)
	require.Len(t, ev.Summary, SummaryMaxChars)
}

func TestInsertEvent_EmptySummaryRejected(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	_, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        EventTaskStatus,
		Summary:     "   \n  ",
		Source:      "test",
		IsEffective: true,
	})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInsertEvent_UnknownTypeCoerced(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	id, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        "definitely_not_a_type",
		Summary:     "something happened",
		Source:      "test",
		IsEffective: true,
	})
	require.NoError(t, err)

	ev, err := s.EventByID(id)
	require.NoError(t, err)
	require.Equal(t, EventTaskStatus, ev.Type)
}

func TestInsertEvent_DedupeReturnsExistingID(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	input := EventInput{
		SessionID:   sessionID,
		Type:        EventTaskStatus,
		Summary:     "same summary twice",
		Source:      "test",
		IsEffective: true,
	}
	first, err := s.InsertEvent(input)
	require.NoError(t, err)
	second, err := s.InsertEvent(input)
	require.NoError(t, err)
	require.Equal(t, first, second)

	events, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestInsertEvent_DifferentSessionsDoNotDedupe(t *testing.T) {
	s := openTestStore(t)
	firstSession := startSession(t, s)
	_, err := s.InsertEvent(EventInput{
		SessionID:   firstSession,
		Type:        EventTaskStatus,
		Summary:     "same summary",
		Source:      "test",
		IsEffective: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.SetSessionState(firstSession, SessionStopped))

	secondSession := startSession(t, s)
	_, err = s.InsertEvent(EventInput{
		SessionID:   secondSession,
		Type:        EventTaskStatus,
		Summary:     "same summary",
		Source:      "test",
		IsEffective: true,
	})
	require.NoError(t, err)

	events, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestInsertEvent_WritesJSONLSidecar(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	_, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        EventDecisionMade,
		Summary:     "Chose sqlite over flat files",
		Source:      "test",
		IsEffective: true,
	})
	require.NoError(t, err)

	name := "events-" + time.Now().UTC().Format("2006-01-02") + ".jsonl"
	data, err := os.ReadFile(filepath.Join(s.MemoryRoot(), "logs", name))
	require.NoError(t, err)
	require.Contains(t, string(data), "Chose sqlite over flat files")
	require.Contains(t, string(data), `"decision_made"`)
}

func TestInsertEvent_ToolAndDecisionRows(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	_, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        EventToolUse,
		Summary:     "Ran the linter",
		Source:      "test",
		ToolName:    "lint",
		ToolResult:  "clean",
		IsEffective: true,
	})
	require.NoError(t, err)

	_, err = s.InsertEvent(EventInput{
		SessionID:       sessionID,
		Type:            EventDecisionMade,
		Summary:         "Use exponential backoff",
		Source:          "test",
		DecisionSummary: "Use exponential backoff",
		IsEffective:     true,
	})
	require.NoError(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	active, err := s.ActiveSession()
	require.NoError(t, err)
	require.Nil(t, active)

	sessionID := startSession(t, s)
	active, err = s.ActiveSession()
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, sessionID, active.ID)
	require.Equal(t, SessionRunning, active.State)

	require.NoError(t, s.SetSessionState(sessionID, SessionStopped))
	active, err = s.ActiveSession()
	require.NoError(t, err)
	require.Nil(t, active)

	latest, err := s.LatestSession()
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, sessionID, latest.ID)
	require.NotEmpty(t, latest.StoppedAt)
}

func TestInsertEvent_NoSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertEvent(EventInput{
		SessionID:   999,
		Type:        EventTaskStatus,
		Summary:     "orphan event",
		Source:      "test",
		IsEffective: true,
	})
	require.Error(t, err)
}

func TestAdapterOffsets(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	offset, err := s.AdapterOffset(sessionID, "cursor", "/tmp/log")
	require.NoError(t, err)
	require.Zero(t, offset)

	require.NoError(t, s.SetAdapterOffset(sessionID, "cursor", "/tmp/log", 420))
	offset, err = s.AdapterOffset(sessionID, "cursor", "/tmp/log")
	require.NoError(t, err)
	require.EqualValues(t, 420, offset)
}

func TestSourceStatusUpsert(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)

	require.NoError(t, s.UpdateSourceStatus(sessionID, "git", SourceUnknown, "awaiting first scan"))
	require.NoError(t, s.UpdateSourceStatus(sessionID, "git", SourceAvailable, "head=abc123"))

	statuses, err := s.SourceStatuses(sessionID)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.Equal(t, SourceAvailable, statuses[0].Status)
	require.Equal(t, "head=abc123", statuses[0].Detail)
}

func TestCoerceEventType(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"user_intent", EventUserIntent},
		{"revert", EventRevert},
		{"", EventTaskStatus},
		{"bogus", EventTaskStatus},
	}
	for _, tt := range tests {
		if got := CoerceEventType(tt.raw); got != tt.want {
			t.Errorf("CoerceEventType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestDedupeFingerprint_Stable(t *testing.T) {
	a := DedupeFingerprint(EventTaskStatus, "Hello World", []string{"a.go", "b.go"}, "", "", 0, true)
	b := DedupeFingerprint(EventTaskStatus, "hello world", []string{"a.go", "b.go"}, "", "", 0, true)
	if a != b {
		t.Errorf("fingerprint should be case-insensitive on summary")
	}
	c := DedupeFingerprint(EventTaskStatus, "hello world", []string{"a.go"}, "", "", 0, true)
	if a == c {
		t.Errorf("fingerprint should depend on files")
	}
	d := DedupeFingerprint(EventTaskStatus, "hello world", []string{"a.go", "b.go"}, "", "", 0, false)
	if a == d {
		t.Errorf("fingerprint should depend on effectiveness")
	}
}

func TestStatusSnapshot(t *testing.T) {
	s := openTestStore(t)
	sessionID := startSession(t, s)
	_, err := s.InsertEvent(EventInput{
		SessionID:   sessionID,
		Type:        EventCodeChange,
		Summary:     "File changed: main.go.",
		Source:      "git",
		IsEffective: true,
	})
	require.NoError(t, err)

	snapshot, err := s.StatusSnapshot(5)
	require.NoError(t, err)
	require.NotNil(t, snapshot.Project)
	require.NotNil(t, snapshot.ActiveSession)
	require.Len(t, snapshot.Events, 1)
	require.Nil(t, snapshot.LastRevert)
	require.Positive(t, snapshot.StorageUsedBytes)
}
