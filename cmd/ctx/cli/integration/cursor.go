package integration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/contextmemory/ctx/cmd/ctx/cli/jsonutil"
)

func cursorConfigPath(projectPath string) string {
	return filepath.Join(projectPath, ".cursor", "mcp.json")
}

// readJSONObject loads path as a JSON object. Missing files yield an empty
// map; malformed content is an error unless force is set.
func readJSONObject(path string, force bool) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // project-local path
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil || payload == nil {
		if force {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid JSON in %s; use --force to overwrite", path)
	}
	return payload, nil
}

func serverEntry(projectPath string) map[string]any {
	args := make([]any, 0, 4)
	for _, a := range serveArgs(projectPath) {
		args = append(args, a)
	}
	return map[string]any{
		"command": executablePath(),
		"args":    args,
	}
}

// UpdateCursorConfig upserts the memory server into .cursor/mcp.json,
// preserving unrelated entries.
func UpdateCursorConfig(projectPath string, force bool) (string, error) {
	configPath := cursorConfigPath(projectPath)
	payload, err := readJSONObject(configPath, force)
	if err != nil {
		return "", err
	}
	servers, ok := payload["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
		payload["mcpServers"] = servers
	}
	servers[ServerName] = serverEntry(projectPath)

	data, err := jsonutil.MarshalIndentWithNewline(payload, "", "  ")
	if err != nil {
		return "", err
	}
	if err := atomicWrite(configPath, data); err != nil {
		return "", err
	}
	return configPath, nil
}

// InspectCursorConfig probes .cursor/mcp.json for a working server entry.
func InspectCursorConfig(projectPath string) Check {
	path := cursorConfigPath(projectPath)
	data, err := os.ReadFile(path) //nolint:gosec // project-local path
	if os.IsNotExist(err) {
		return Check{Status: StateUnavailable, Detail: "missing " + path}
	}
	if err != nil {
		return Check{Status: StateDegraded, Detail: err.Error()}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Check{Status: StateDegraded, Detail: "invalid JSON in " + path}
	}
	return inspectServerEntry(payload, projectPath, path)
}

func inspectServerEntry(payload map[string]any, projectPath, path string) Check {
	servers, ok := payload["mcpServers"].(map[string]any)
	if !ok {
		return Check{Status: StateDegraded, Detail: "mcpServers missing or invalid"}
	}
	server, ok := servers[ServerName].(map[string]any)
	if !ok {
		return Check{Status: StateDegraded, Detail: ServerName + " not configured"}
	}
	command, _ := server["command"].(string)
	if !isValidExecutable(command) {
		return Check{Status: StateDegraded, Detail: ServerName + " command is not a valid ctx executable"}
	}
	args, ok := server["args"].([]any)
	if !ok || !containsString(args, projectPath) {
		return Check{Status: StateDegraded, Detail: ServerName + " args missing project path"}
	}
	return Check{Status: StateAvailable, Detail: path}
}

func containsString(items []any, want string) bool {
	for _, item := range items {
		if s, ok := item.(string); ok && s == want {
			return true
		}
	}
	return false
}
