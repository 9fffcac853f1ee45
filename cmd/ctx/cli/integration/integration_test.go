package integration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
)

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	return payload
}

func TestUpdateCursorConfig_CreatesEntry(t *testing.T) {
	dir := t.TempDir()
	path, err := UpdateCursorConfig(dir, false)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".cursor", "mcp.json"), path)

	payload := readJSON(t, path)
	servers := payload["mcpServers"].(map[string]any)
	server := servers[ServerName].(map[string]any)
	require.NotEmpty(t, server["command"])
	args := server["args"].([]any)
	require.Contains(t, args, "mcp")
	require.Contains(t, args, dir)

	check := InspectCursorConfig(dir)
	require.Equal(t, StateAvailable, check.Status)
}

func TestUpdateCursorConfig_PreservesOtherServers(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".cursor", "mcp.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
	existing := `{"mcpServers":{"other":{"command":"other-tool","args":[]}}}`
	require.NoError(t, os.WriteFile(configPath, []byte(existing), 0o600))

	_, err := UpdateCursorConfig(dir, false)
	require.NoError(t, err)

	payload := readJSON(t, configPath)
	servers := payload["mcpServers"].(map[string]any)
	require.Contains(t, servers, "other")
	require.Contains(t, servers, ServerName)
}

func TestUpdateCursorConfig_MalformedRequiresForce(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".cursor", "mcp.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
	require.NoError(t, os.WriteFile(configPath, []byte("{broken"), 0o600))

	_, err := UpdateCursorConfig(dir, false)
	require.ErrorContains(t, err, "--force")

	_, err = UpdateCursorConfig(dir, true)
	require.NoError(t, err)
	require.Equal(t, StateAvailable, InspectCursorConfig(dir).Status)
}

func TestInspectCursorConfig_Missing(t *testing.T) {
	check := InspectCursorConfig(t.TempDir())
	require.Equal(t, StateUnavailable, check.Status)
	require.Contains(t, check.Detail, "missing")
}

func TestInspectCursorConfig_WrongProjectPath(t *testing.T) {
	dir := t.TempDir()
	_, err := UpdateCursorConfig(dir, false)
	require.NoError(t, err)

	other := t.TempDir()
	require.NoError(t, os.RemoveAll(filepath.Join(other, ".cursor")))
	require.NoError(t, os.Rename(filepath.Join(dir, ".cursor"), filepath.Join(other, ".cursor")))

	check := InspectCursorConfig(other)
	require.Equal(t, StateDegraded, check.Status)
	require.Contains(t, check.Detail, "args missing project path")
}

func TestUpdateClaudeSettings_WiresHooks(t *testing.T) {
	dir := t.TempDir()
	path, err := UpdateClaudeSettings(dir, false)
	require.NoError(t, err)

	payload := readJSON(t, path)
	hooks := payload["hooks"].(map[string]any)
	for _, event := range ClaudeHookEvents {
		entries := hooks[event].([]any)
		require.Len(t, entries, 1, "event %s", event)
		entry := entries[0].(map[string]any)
		if event == "PreToolUse" || event == "PostToolUse" {
			require.Equal(t, "*", entry["matcher"])
		} else {
			require.NotContains(t, entry, "matcher")
		}
	}

	mcp, hookCheck := InspectClaudeSettings(dir)
	require.Equal(t, StateAvailable, mcp.Status)
	require.Equal(t, StateAvailable, hookCheck.Status)
}

func TestUpdateClaudeSettings_Idempotent(t *testing.T) {
	dir := t.TempDir()
	_, err := UpdateClaudeSettings(dir, false)
	require.NoError(t, err)
	path, err := UpdateClaudeSettings(dir, false)
	require.NoError(t, err)

	payload := readJSON(t, path)
	hooks := payload["hooks"].(map[string]any)
	for _, event := range ClaudeHookEvents {
		require.Len(t, hooks[event].([]any), 1, "event %s", event)
	}
}

func TestUpdateClaudeSettings_ReplacesLegacyEntry(t *testing.T) {
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, ".claude", "settings.local.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(settingsPath), 0o750))
	legacy := map[string]any{
		"hooks": map[string]any{
			"Stop": []any{
				map[string]any{"type": "command", "command": hookCommand(dir, "Stop")},
				map[string]any{"type": "command", "command": "unrelated-tool run"},
			},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(settingsPath, data, 0o600))

	_, err = UpdateClaudeSettings(dir, false)
	require.NoError(t, err)

	payload := readJSON(t, settingsPath)
	entries := payload["hooks"].(map[string]any)["Stop"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	require.Equal(t, "unrelated-tool run", first["command"])
}

func TestInspectClaudeSettings_MissingHooks(t *testing.T) {
	dir := t.TempDir()
	_, err := UpdateClaudeSettings(dir, false)
	require.NoError(t, err)

	settingsPath := claudeSettingsPath(dir)
	payload := readJSON(t, settingsPath)
	hooks := payload["hooks"].(map[string]any)
	delete(hooks, "Stop")
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(settingsPath, data, 0o600))

	_, hookCheck := InspectClaudeSettings(dir)
	require.Equal(t, StateDegraded, hookCheck.Status)
	require.Contains(t, hookCheck.Detail, "Stop")
}

func TestUpdateCodexConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".codex", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o750))
	require.NoError(t, os.WriteFile(configPath, []byte("model = \"o3\"\n"), 0o600))

	path, err := UpdateCodexConfig(dir, false)
	require.NoError(t, err)
	require.Equal(t, configPath, path)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	document := map[string]any{}
	require.NoError(t, toml.Unmarshal(data, &document))
	require.Equal(t, "o3", document["model"])
	servers := document["mcp_servers"].(map[string]any)
	require.Contains(t, servers, ServerName)

	check := InspectCodexConfig(dir)
	require.Equal(t, StateAvailable, check.Status)
	require.Contains(t, check.Detail, "Codex project trust")
}

func TestInspectCodexConfig_Missing(t *testing.T) {
	check := InspectCodexConfig(t.TempDir())
	require.Equal(t, StateUnavailable, check.Status)
}

func TestEnsureGitignoreEntry(t *testing.T) {
	dir := t.TempDir()

	changed, err := EnsureGitignoreEntry(dir, ".context-memory/")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = EnsureGitignoreEntry(dir, ".context-memory/")
	require.NoError(t, err)
	require.False(t, changed)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	require.Equal(t, ".context-memory/\n", string(data))
}

func TestEnsureGitignoreEntry_AppendsWithoutTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("dist"), 0o600))

	changed, err := EnsureGitignoreEntry(dir, ".context-memory/")
	require.NoError(t, err)
	require.True(t, changed)

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	require.Equal(t, "dist\n.context-memory/\n", string(data))
}

func TestHookCommand_EscapesQuotes(t *testing.T) {
	command := hookCommand(`/work/my "odd" project`, "Stop")
	require.Contains(t, command, `\"odd\"`)
	require.Contains(t, command, "--event Stop")
	require.True(t, isHookCommand(command, "Stop"))
	require.False(t, isHookCommand(command, "PreToolUse"))
}

func TestIsValidExecutable(t *testing.T) {
	require.True(t, isValidExecutable("ctx"))
	require.True(t, isValidExecutable("/usr/local/bin/ctx"))
	require.True(t, isValidExecutable("ctx.exe"))
	require.False(t, isValidExecutable(""))
	require.False(t, isValidExecutable("/usr/bin/python3"))
}
