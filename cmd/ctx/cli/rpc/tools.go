package rpc

import (
	"fmt"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/jsonutil"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// rpcClients are the editor clients allowed to identify themselves on tool
// calls. Anything else is recorded as mcp:unknown.
var rpcClients = map[string]struct{}{"cursor": {}, "claude": {}}

const (
	maxEventsDefault = 20
	maxEventsCeiling = 100
	sourceDetailMax  = 40
)

func (s *Server) handleTool(name string, arguments map[string]any) (map[string]any, error) {
	switch name {
	case "get_context":
		return s.toolGetContext(arguments)
	case "append_event":
		return s.toolAppendEvent(arguments)
	case "start_chat_session":
		return s.toolStartChatSession(arguments)
	case "stop_chat_session":
		return s.toolStopChatSession(arguments)
	case "ping":
		return s.toolPing(arguments)
	}
	return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Unknown tool: %s", name)}
}

// toolResult wraps a payload in the tool-call envelope. Successful payloads
// are mirrored in structuredContent for clients that parse it.
func toolResult(payload map[string]any, isError bool) (map[string]any, error) {
	text, err := jsonutil.MarshalCompact(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool payload: %w", err)
	}
	result := map[string]any{
		"content": []any{map[string]any{"type": "text", "text": string(text)}},
		"isError": isError,
	}
	if !isError {
		result["structuredContent"] = payload
	}
	return result, nil
}

func (s *Server) toolGetContext(arguments map[string]any) (map[string]any, error) {
	maxEvents := intArg(arguments, "max_events", maxEventsDefault)
	if maxEvents < 1 {
		maxEvents = 1
	}
	if maxEvents > maxEventsCeiling {
		maxEvents = maxEventsCeiling
	}
	includeEffective := boolArg(arguments, "include_effective_state", true)

	snapshot, err := s.store.StatusSnapshot(maxEvents)
	if err != nil {
		return nil, err
	}

	events := make([]any, 0, len(snapshot.Events))
	for _, ev := range snapshot.Events {
		effective := 0
		if ev.IsEffective {
			effective = 1
		}
		events = append(events, map[string]any{
			"event_type":   ev.Type,
			"summary":      ev.Summary,
			"source":       ev.Source,
			"created_at":   ev.CreatedAt,
			"is_effective": effective,
		})
	}

	var lastUpdatedAt any
	if snapshot.Project != nil && snapshot.Project.LastUpdatedAt != "" {
		lastUpdatedAt = snapshot.Project.LastUpdatedAt
	}
	payload := map[string]any{
		"project":         s.store.ProjectPath(),
		"last_updated_at": lastUpdatedAt,
		"recent_events":   events,
		"open_items":      []any{},
		"style_signals":   []any{},
	}
	if includeEffective {
		payload["effective_changed_files"] = snapshot.EffectiveChangedFiles
	}
	return toolResult(payload, false)
}

func (s *Server) toolAppendEvent(arguments map[string]any) (map[string]any, error) {
	sessionID, ok := intArgPresent(arguments, "session_id")
	if !ok {
		active, err := s.store.ActiveSession()
		if err != nil {
			return nil, err
		}
		if active == nil {
			return nil, &Error{Code: CodeNoActiveSession, Message: "No active session. Run `ctx start` first."}
		}
		sessionID = active.ID
	}

	summary := strings.TrimSpace(stringArg(arguments, "summary"))
	if summary == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "summary is required"}
	}

	files, err := stringListArg(arguments, "files_touched")
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "files_touched must be an array"}
	}

	client := strings.ToLower(stringArg(arguments, "client"))
	source := "mcp:unknown"
	if _, known := rpcClients[client]; known {
		source = "mcp:" + client
	}
	if detail := stringArg(arguments, "source_detail"); detail != "" {
		if runes := []rune(detail); len(runes) > sourceDetailMax {
			detail = string(runes[:sourceDetailMax])
		}
		source = source + ":" + detail
	}

	input := store.EventInput{
		SessionID:    sessionID,
		Type:         store.CoerceEventType(strings.TrimSpace(stringArg(arguments, "event_type"))),
		Summary:      summary,
		FilesTouched: files,
		Source:       source,
		ToolName:     stringArg(arguments, "tool_name"),
		ToolResult:   stringArg(arguments, "tool_result"),
		IsEffective:  true,
	}
	if boolArg(arguments, "decision", false) {
		input.DecisionSummary = summary
	}

	eventID, err := s.store.InsertEvent(input)
	if err != nil {
		return nil, err
	}
	if _, known := rpcClients[client]; known {
		_ = s.store.UpdateSourceStatus(sessionID, "mcp:"+client, store.SourceAvailable, heartbeatDetail("heartbeat"))
	}
	return toolResult(map[string]any{"ok": true, "event_id": eventID, "session_id": sessionID}, false)
}

func (s *Server) toolStartChatSession(arguments map[string]any) (map[string]any, error) {
	client := strings.ToLower(strings.TrimSpace(stringArg(arguments, "client")))
	if _, known := rpcClients[client]; !known {
		return nil, &Error{Code: CodeInvalidParams, Message: "client must be 'cursor' or 'claude'"}
	}
	externalRef := stringArg(arguments, "external_session_ref")

	active, err := s.store.ActiveSession()
	if err != nil {
		return nil, err
	}
	var sessionID int64
	if active != nil {
		sessionID = active.ID
		if externalRef != "" {
			if err := s.store.SetSessionExternalRef(sessionID, externalRef); err != nil {
				return nil, err
			}
		}
	} else {
		sessionID, err = s.store.CreateSession(client, externalRef)
		if err != nil {
			return nil, err
		}
	}
	_ = s.store.UpdateSourceStatus(sessionID, "mcp:"+client, store.SourceAvailable, heartbeatDetail("started"))
	return toolResult(map[string]any{"session_id": sessionID}, false)
}

func (s *Server) toolStopChatSession(arguments map[string]any) (map[string]any, error) {
	sessionID, ok := intArgPresent(arguments, "session_id")
	if !ok {
		return nil, &Error{Code: CodeInvalidParams, Message: "session_id is required"}
	}
	if err := s.store.SetSessionState(sessionID, store.SessionStopped); err != nil {
		return nil, err
	}
	return toolResult(map[string]any{"stopped": true, "session_id": sessionID}, false)
}

func (s *Server) toolPing(arguments map[string]any) (map[string]any, error) {
	client := strings.ToLower(strings.TrimSpace(stringArg(arguments, "client")))
	if _, known := rpcClients[client]; !known {
		return nil, &Error{Code: CodeInvalidParams, Message: "client must be 'cursor' or 'claude'"}
	}
	active, err := s.store.ActiveSession()
	if err != nil {
		return nil, err
	}
	var sessionID any
	if active != nil {
		sessionID = active.ID
		_ = s.store.UpdateSourceStatus(active.ID, "mcp:"+client, store.SourceAvailable, heartbeatDetail("heartbeat"))
	}
	return toolResult(map[string]any{"pong": true, "client": client, "session_id": sessionID}, false)
}

// toolSpecs is the static tools/list payload.
func toolSpecs() []any {
	return []any{
		map[string]any{
			"name":        "get_context",
			"description": "Fetch project context summary from local memory.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_events":              map[string]any{"type": "integer", "minimum": 1, "maximum": 100, "default": 20},
					"include_effective_state": map[string]any{"type": "boolean", "default": true},
				},
			},
		},
		map[string]any{
			"name":        "append_event",
			"description": "Append summarized event into project memory.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"event_type":    map[string]any{"type": "string"},
					"summary":       map[string]any{"type": "string"},
					"files_touched": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"decision":      map[string]any{"type": "boolean", "default": false},
					"tool_name":     map[string]any{"type": []any{"string", "null"}},
					"tool_result":   map[string]any{"type": []any{"string", "null"}},
					"source_detail": map[string]any{"type": []any{"string", "null"}},
					"client":        map[string]any{"type": []any{"string", "null"}},
					"session_id":    map[string]any{"type": []any{"integer", "null"}},
				},
				"required": []any{"summary"},
			},
		},
		map[string]any{
			"name":        "start_chat_session",
			"description": "Start or attach to chat session for client.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"client":               map[string]any{"type": "string", "enum": []any{"cursor", "claude"}},
					"external_session_ref": map[string]any{"type": []any{"string", "null"}},
				},
				"required": []any{"client"},
			},
		},
		map[string]any{
			"name":        "stop_chat_session",
			"description": "Stop session by id.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": map[string]any{"type": "integer"},
				},
				"required": []any{"session_id"},
			},
		},
		map[string]any{
			"name":        "ping",
			"description": "Heartbeat for MCP diagnostics.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"client": map[string]any{"type": "string", "enum": []any{"cursor", "claude"}},
				},
				"required": []any{"client"},
			},
		},
	}
}

// Argument helpers. JSON numbers decode as float64; ids may also arrive as
// strings from looser clients.

func stringArg(arguments map[string]any, key string) string {
	s, _ := arguments[key].(string)
	return s
}

func boolArg(arguments map[string]any, key string, fallback bool) bool {
	if v, ok := arguments[key].(bool); ok {
		return v
	}
	return fallback
}

func intArg(arguments map[string]any, key string, fallback int) int {
	if v, ok := arguments[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func stringListArg(arguments map[string]any, key string) ([]string, error) {
	raw, present := arguments[key]
	if !present || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is not an array", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s contains a non-string element", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func intArgPresent(arguments map[string]any, key string) (int64, bool) {
	switch v := arguments[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
