package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/jsonutil"
)

func claudeSettingsPath(projectPath string) string {
	return filepath.Join(projectPath, ".claude", "settings.local.json")
}

// hookEntry builds the settings entry for one hook event. Tool hooks carry a
// wildcard matcher; lifecycle hooks do not take one.
func hookEntry(projectPath, event string) map[string]any {
	entry := map[string]any{
		"hooks": []any{
			map[string]any{"type": "command", "command": hookCommand(projectPath, event)},
		},
	}
	if event == "PreToolUse" || event == "PostToolUse" {
		entry["matcher"] = "*"
	}
	return entry
}

// entryContainsHook reports whether an existing settings entry already routes
// the given event to ctx, in either the current or the legacy flat shape.
func entryContainsHook(entry any, event string) bool {
	m, ok := entry.(map[string]any)
	if !ok {
		return false
	}
	if m["type"] == "command" {
		if command, ok := m["command"].(string); ok && isHookCommand(command, event) {
			return true
		}
	}
	hooks, ok := m["hooks"].([]any)
	if !ok {
		return false
	}
	for _, h := range hooks {
		hm, ok := h.(map[string]any)
		if !ok {
			continue
		}
		if hm["type"] != "command" {
			continue
		}
		if command, ok := hm["command"].(string); ok && isHookCommand(command, event) {
			return true
		}
	}
	return false
}

// UpdateClaudeSettings upserts the MCP server and all hook events into
// .claude/settings.local.json, replacing stale ctx entries and preserving
// everything else.
func UpdateClaudeSettings(projectPath string, force bool) (string, error) {
	settingsPath := claudeSettingsPath(projectPath)
	payload, err := readJSONObject(settingsPath, force)
	if err != nil {
		return "", err
	}

	servers, ok := payload["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
		payload["mcpServers"] = servers
	}
	servers[ServerName] = serverEntry(projectPath)

	hooks, ok := payload["hooks"].(map[string]any)
	if !ok {
		hooks = map[string]any{}
		payload["hooks"] = hooks
	}
	for _, event := range ClaudeHookEvents {
		existing, _ := hooks[event].([]any)
		filtered := make([]any, 0, len(existing)+1)
		for _, item := range existing {
			if !entryContainsHook(item, event) {
				filtered = append(filtered, item)
			}
		}
		filtered = append(filtered, hookEntry(projectPath, event))
		hooks[event] = filtered
	}

	data, err := jsonutil.MarshalIndentWithNewline(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := atomicWrite(settingsPath, data); err != nil {
		return "", err
	}
	return settingsPath, nil
}

// InspectClaudeSettings probes the MCP server entry and the hook wiring
// separately, since either can break on its own.
func InspectClaudeSettings(projectPath string) (mcp Check, hooks Check) {
	path := claudeSettingsPath(projectPath)
	data, err := os.ReadFile(path) //nolint:gosec // project-local path
	if os.IsNotExist(err) {
		missing := Check{Status: StateUnavailable, Detail: "missing " + path}
		return missing, missing
	}
	if err != nil {
		degraded := Check{Status: StateDegraded, Detail: err.Error()}
		return degraded, degraded
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		degraded := Check{Status: StateDegraded, Detail: "invalid JSON in " + path}
		return degraded, degraded
	}

	mcp = inspectServerEntry(payload, projectPath, path)

	hookMap, ok := payload["hooks"].(map[string]any)
	if !ok {
		return mcp, Check{Status: StateDegraded, Detail: "hooks missing or invalid"}
	}
	var missing []string
	for _, event := range ClaudeHookEvents {
		entries, _ := hookMap[event].([]any)
		found := false
		for _, item := range entries {
			if entryContainsHook(item, event) {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, event)
		}
	}
	if len(missing) > 0 {
		return mcp, Check{Status: StateDegraded, Detail: "missing hooks for: " + strings.Join(missing, ", ")}
	}
	return mcp, Check{Status: StateAvailable, Detail: path}
}
