// Package hook turns Claude hook invocations into recorded events. The hook
// command pipes its JSON payload over stdin; anything unparseable is kept as
// plain text so the event is never lost.
package hook

import (
	"encoding/json"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
	"github.com/contextmemory/ctx/redact"
)

// Source is the event source attached to every ingested hook payload.
const Source = "hook:claude"

// eventTypeForHook maps hook event names onto event types.
var eventTypeForHook = map[string]string{
	"UserPromptSubmit": store.EventUserIntent,
	"PreToolUse":       store.EventToolUse,
	"PostToolUse":      store.EventToolUse,
	"Stop":             store.EventHandoff,
}

var summaryKeys = []string{"summary", "message", "text", "prompt", "input", "content"}

// ParsePayload decodes raw hook input. Non-JSON input becomes {text: raw}.
func ParsePayload(raw []byte) map[string]any {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return map[string]any{}
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && payload != nil {
		return payload
	}
	return map[string]any{"text": trimmed}
}

// BuildEvent assembles the event input for one hook invocation. The summary
// passes through secret redaction since prompts echo arbitrary content.
func BuildEvent(sessionID int64, eventName string, payload map[string]any) store.EventInput {
	eventType, ok := eventTypeForHook[eventName]
	if !ok {
		eventType = store.EventTaskStatus
	}

	summary := ""
	for _, key := range summaryKeys {
		if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
			summary = strings.TrimSpace(value)
			break
		}
	}
	if summary == "" {
		summary = "Claude hook event received: " + eventName + "."
	}

	input := store.EventInput{
		SessionID:    sessionID,
		Type:         eventType,
		Summary:      redact.String(summary),
		FilesTouched: filesFromPayload(payload),
		Source:       Source,
		IsEffective:  true,
	}
	if eventName == "PreToolUse" || eventName == "PostToolUse" {
		if toolName, ok := payload["tool_name"].(string); ok {
			input.ToolName = toolName
		}
		if result, ok := payload["result"].(string); ok {
			input.ToolResult = result
		}
	}
	return input
}

func filesFromPayload(payload map[string]any) []string {
	for _, key := range []string{"files_touched", "files", "changed_files"} {
		items, ok := payload[key].([]any)
		if !ok || len(items) == 0 {
			continue
		}
		var files []string
		for _, item := range items {
			if s, ok := item.(string); ok {
				files = append(files, s)
			}
		}
		return files
	}
	return nil
}
