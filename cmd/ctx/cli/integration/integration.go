// Package integration manages the project-local editor configuration that
// points Cursor, Claude, and Codex at the memory server: MCP server entries,
// Claude hook commands, and the .gitignore guard for the memory directory.
package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
)

// ServerName is the MCP server key written into every client config.
const ServerName = "ctx-memory"

// ClaudeHookEvents are the hook points wired into Claude settings.
var ClaudeHookEvents = []string{"UserPromptSubmit", "PreToolUse", "PostToolUse", "Stop"}

// CheckState classifies one integration probe.
const (
	StateAvailable   = "available"
	StateConnected   = "connected"
	StateDegraded    = "degraded"
	StateUnavailable = "unavailable"
)

// Check is one named probe result.
type Check struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
}

func hookCommand(projectPath, event string) string {
	escaped := strings.ReplaceAll(projectPath, `"`, `\"`)
	return fmt.Sprintf(`ctx hook ingest --project-path "%s" --event %s`, escaped, event)
}

func isHookCommand(value, event string) bool {
	return strings.Contains(value, "ctx hook ingest --project-path") &&
		strings.Contains(value, "--event "+event)
}

// ResolveExecutable locates the ctx binary for client configs. Falls back to
// the bare name so PATH resolution still works at invocation time.
func ResolveExecutable() (status, detail string) {
	resolved, err := exec.LookPath("ctx")
	if err != nil {
		return StateDegraded, "ctx executable not found on PATH"
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return StateAvailable, resolved
	}
	return StateAvailable, abs
}

func executablePath() string {
	resolved, err := exec.LookPath("ctx")
	if err != nil {
		return "ctx"
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		return abs
	}
	return resolved
}

func isValidExecutable(command string) bool {
	if command == "" {
		return false
	}
	if command == "ctx" {
		return true
	}
	base := filepath.Base(command)
	return base == "ctx" || base == "ctx.exe"
}

func serveArgs(projectPath string) []string {
	return []string{"mcp", "serve", "--project-path", projectPath}
}

// EnsureGitignoreEntry appends entry to the project .gitignore unless already
// present. Reports whether the file changed.
func EnsureGitignoreEntry(projectPath, entry string) (bool, error) {
	gitignore := filepath.Join(projectPath, ".gitignore")
	data, err := os.ReadFile(gitignore) //nolint:gosec // project-local path
	if os.IsNotExist(err) {
		if werr := os.WriteFile(gitignore, []byte(entry+"\n"), 0o600); werr != nil {
			return false, fmt.Errorf("failed to create .gitignore: %w", werr)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read .gitignore: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return false, nil
		}
	}
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"
	if err := os.WriteFile(gitignore, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("failed to update .gitignore: %w", err)
	}
	return true, nil
}

// atomicWrite writes data via a temp file in the same directory followed by a
// rename.
func atomicWrite(path string, data []byte) error {
	if err := paths.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
