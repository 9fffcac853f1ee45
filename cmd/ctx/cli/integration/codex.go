package integration

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

func codexConfigPath(projectPath string) string {
	return filepath.Join(projectPath, ".codex", "config.toml")
}

func readTOMLDocument(path string, force bool) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // project-local path
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	document := map[string]any{}
	if err := toml.Unmarshal(data, &document); err != nil {
		if force {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid TOML in %s; use --force to overwrite", path)
	}
	return document, nil
}

// UpdateCodexConfig upserts the memory server table into .codex/config.toml.
// Unrelated tables survive; comments do not.
func UpdateCodexConfig(projectPath string, force bool) (string, error) {
	configPath := codexConfigPath(projectPath)
	document, err := readTOMLDocument(configPath, force)
	if err != nil {
		return "", err
	}

	servers, ok := document["mcp_servers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
		document["mcp_servers"] = servers
	}
	servers[ServerName] = map[string]any{
		"command": executablePath(),
		"args":    serveArgs(projectPath),
	}

	data, err := toml.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", configPath, err)
	}
	if err := atomicWrite(configPath, data); err != nil {
		return "", err
	}
	return configPath, nil
}

// InspectCodexConfig probes the server table. Codex additionally requires the
// project to be trusted, which cannot be verified from here.
func InspectCodexConfig(projectPath string) Check {
	path := codexConfigPath(projectPath)
	data, err := os.ReadFile(path) //nolint:gosec // project-local path
	if os.IsNotExist(err) {
		return Check{Status: StateUnavailable, Detail: "missing " + path}
	}
	if err != nil {
		return Check{Status: StateDegraded, Detail: err.Error()}
	}
	document := map[string]any{}
	if err := toml.Unmarshal(data, &document); err != nil {
		return Check{Status: StateDegraded, Detail: "invalid TOML in " + path}
	}

	servers, ok := document["mcp_servers"].(map[string]any)
	if !ok {
		return Check{Status: StateDegraded, Detail: ServerName + " not configured"}
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
	return Check{Status: StateAvailable, Detail: path + " (requires Codex project trust)"}
}
