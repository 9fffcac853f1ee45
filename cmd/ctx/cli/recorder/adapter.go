package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
	"github.com/contextmemory/ctx/redact"
)

// adapterEvent is one parsed adapter log line.
type adapterEvent struct {
	EventType       string
	Summary         string
	FilesTouched    []string
	ToolName        string
	ToolPurpose     string
	ToolResult      string
	DecisionSummary string
}

// agentPrefixes classify plain-text lines as assistant output.
var agentPrefixes = []string{"assistant:", "claude:", "cursor:", "codex:", "agent:"}

func (r *Recorder) pollAdapters(ctx context.Context) {
	for _, adapter := range registry.SupportedAdapters {
		r.pollAdapter(ctx, adapter)
	}
}

// pollAdapter tails one adapter log from the stored byte offset. The offset
// advances only after the whole chunk was processed; on a storage-cap error
// the chunk is abandoned and retried next poll.
func (r *Recorder) pollAdapter(ctx context.Context, adapter string) {
	source := "adapter:" + adapter
	ctx = logging.WithSource(ctx, source)

	configs, err := r.registry.AdapterConfigs()
	if err != nil {
		logging.Warn(ctx, "adapter config read failed", "error", err.Error())
		return
	}
	logPath, ok := configs[adapter]
	if !ok || logPath == "" {
		return
	}
	info, err := os.Stat(logPath)
	if err != nil || info.IsDir() {
		_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceUnavailable, "missing log file: "+logPath)
		return
	}
	_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceAvailable, logPath)

	offset, err := r.store.AdapterOffset(r.sessionID, adapter, logPath)
	if err != nil {
		logging.Warn(ctx, "adapter offset read failed", "error", err.Error())
		return
	}

	data, newOffset, err := readFrom(logPath, offset)
	if err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceDegraded, "read error: "+err.Error())
		return
	}
	if len(data) == 0 {
		return
	}

	for _, rawLine := range strings.Split(string(data), "\n") {
		parsed := parseAdapterLine(rawLine)
		if parsed == nil {
			continue
		}
		_, err := r.store.InsertEvent(store.EventInput{
			SessionID:       r.sessionID,
			Type:            parsed.EventType,
			Summary:         redact.String(parsed.Summary),
			FilesTouched:    parsed.FilesTouched,
			Source:          source,
			ToolName:        parsed.ToolName,
			ToolPurpose:     parsed.ToolPurpose,
			ToolResult:      parsed.ToolResult,
			DecisionSummary: parsed.DecisionSummary,
			IsEffective:     true,
		})
		if errors.Is(err, store.ErrStorageCapExceeded) {
			_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceDegraded, "storage cap reached; event dropped")
			return
		}
		if err != nil {
			logging.Warn(ctx, "adapter event insert failed", "error", err.Error())
		}
	}

	if err := r.store.SetAdapterOffset(r.sessionID, adapter, logPath, newOffset); err != nil {
		logging.Warn(ctx, "adapter offset update failed", "error", err.Error())
	}
}

// readFrom reads the file from offset to EOF and reports the new offset.
func readFrom(path string, offset int64) ([]byte, int64, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator adapter configuration
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek to %d: %w", offset, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	return data, offset + int64(len(data)), nil
}

// parseAdapterLine classifies one log line. JSON objects carry their own
// summary and optional typing hints; plain text is classified by speaker
// prefix. Lines yielding no summary are skipped.
func parseAdapterLine(line string) *adapterEvent {
	text := strings.TrimSpace(line)
	if text == "" {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err == nil && payload != nil {
		return parseJSONLine(payload)
	}

	lowered := strings.ToLower(text)
	if strings.HasPrefix(lowered, "user:") {
		summary := strings.TrimSpace(text[len("user:"):])
		if summary == "" {
			return nil
		}
		return &adapterEvent{EventType: store.EventUserIntent, Summary: summary}
	}
	for _, prefix := range agentPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			summary := strings.TrimSpace(text[strings.Index(text, ":")+1:])
			if summary == "" {
				return nil
			}
			return &adapterEvent{EventType: store.EventAgentPlan, Summary: summary}
		}
	}
	return &adapterEvent{EventType: store.EventTaskStatus, Summary: text}
}

func parseJSONLine(payload map[string]any) *adapterEvent {
	summary := firstNonEmptyString(payload, "summary", "message", "content", "text")
	if summary == "" {
		return nil
	}

	eventType, _ := payload["event_type"].(string)
	if eventType == "" {
		switch {
		case stringField(payload, "tool_name") != "":
			eventType = store.EventToolUse
		case payload["decision"] == true:
			eventType = store.EventDecisionMade
		default:
			eventType = store.EventTaskStatus
		}
	}

	parsed := &adapterEvent{
		EventType: eventType,
		Summary:   summary,
	}
	if files, ok := payload["files_touched"].([]any); ok {
		for _, item := range files {
			if s, ok := item.(string); ok {
				parsed.FilesTouched = append(parsed.FilesTouched, s)
			}
		}
	}
	if toolName := stringField(payload, "tool_name"); toolName != "" {
		parsed.ToolName = toolName
		parsed.ToolPurpose = stringField(payload, "purpose")
		parsed.ToolResult = stringField(payload, "result")
	}
	if payload["decision"] == true && parsed.EventType != store.EventDecisionMade {
		parsed.EventType = store.EventDecisionMade
	}
	if ds := stringField(payload, "decision_summary"); ds != "" {
		parsed.DecisionSummary = ds
	}
	return parsed
}

func firstNonEmptyString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
