package store

// Event types form a closed set; anything else coerces to task_status.
const (
	EventUserIntent   = "user_intent"
	EventAgentPlan    = "agent_plan"
	EventCodeChange   = "code_change"
	EventRevert       = "revert"
	EventDecisionMade = "decision_made"
	EventToolUse      = "tool_use"
	EventTestResult   = "test_result"
	EventErrorSeen    = "error_seen"
	EventTaskStatus   = "task_status"
	EventHandoff      = "handoff"
)

var eventTypes = map[string]bool{
	EventUserIntent:   true,
	EventAgentPlan:    true,
	EventCodeChange:   true,
	EventRevert:       true,
	EventDecisionMade: true,
	EventToolUse:      true,
	EventTestResult:   true,
	EventErrorSeen:    true,
	EventTaskStatus:   true,
	EventHandoff:      true,
}

// highValueEventTypes are never removed by compaction.
var highValueEventTypes = map[string]bool{
	EventDecisionMade: true,
	EventHandoff:      true,
	EventErrorSeen:    true,
	EventToolUse:      true,
	EventRevert:       true,
}

// Session states advance one-way: running -> stopping -> stopped.
const (
	SessionRunning  = "running"
	SessionStopping = "stopping"
	SessionStopped  = "stopped"
)

// Source status values for per-session heartbeats.
const (
	SourceUnknown     = "unknown"
	SourceAvailable   = "available"
	SourceDegraded    = "degraded"
	SourceUnavailable = "unavailable"
)

// Project is the per-project row of the store's own database. The registry
// carries an equivalent row; the store is authoritative for storage usage.
type Project struct {
	ID               int64
	Path             string
	DisplayName      string
	RecordingState   string
	CreatedAt        string
	UpdatedAt        string
	LastUpdatedAt    string
	DeletedAt        string
	StorageCapBytes  int64
	StorageUsedBytes int64
}

// Session is one recording run.
type Session struct {
	ID                 int64
	ProjectID          int64
	Agent              string
	StartedAt          string
	StoppedAt          string
	State              string
	ExternalSessionRef string
	LastUpdatedAt      string
}

// Event is a stored event row.
type Event struct {
	ID                int64    `json:"event_id"`
	SessionID         int64    `json:"session_id"`
	Type              string   `json:"event_type"`
	Summary           string   `json:"summary"`
	FilesTouched      []string `json:"files_touched"`
	BeforeHash        string   `json:"before_hash,omitempty"`
	AfterHash         string   `json:"after_hash,omitempty"`
	RevertedEventID   int64    `json:"reverted_event_id,omitempty"`
	RevertedByEventID int64    `json:"-"`
	IsEffective       bool     `json:"is_effective"`
	Source            string   `json:"source"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"-"`
	DedupeHash        string   `json:"-"`
}

// FileState tracks one path's hash state. The baseline never moves after
// first observation.
type FileState struct {
	Path         string
	CurrentHash  string
	BaselineHash string
	LastEventID  int64
	IsClean      bool
	UpdatedAt    string
}

// SourceStatus is one per-session heartbeat row.
type SourceStatus struct {
	SessionID int64
	Source    string
	Status    string
	Detail    string
	UpdatedAt string
}

// Rollup summarizes a block of compacted low-value events.
type Rollup struct {
	ID          int64
	ProjectID   int64
	PeriodStart string
	PeriodEnd   string
	Summary     string
	CreatedAt   string
}

// CoerceEventType maps arbitrary input onto the closed event-type set.
func CoerceEventType(raw string) string {
	trimmed := trimmedOrDefault(raw, EventTaskStatus)
	if eventTypes[trimmed] {
		return trimmed
	}
	return EventTaskStatus
}

// IsHighValueEventType reports whether eventType survives compaction.
func IsHighValueEventType(eventType string) bool {
	return highValueEventTypes[eventType]
}
