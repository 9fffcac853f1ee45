// Package paths centralizes the on-disk layout: the per-project memory
// directory and the cross-project registry home.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Per-project layout, rooted at <project>/.context-memory/.
const (
	MemoryDir     = ".context-memory"
	ProjectDBFile = "context.db"
	ProjectLogDir = "logs"
)

// Registry home layout, default ~/.context-agent (override via CTX_HOME).
const (
	HomeEnvVar     = "CTX_HOME"
	HomeDirName    = ".context-agent"
	RegistryDBFile = "registry.db"
	ConfigFile     = "config.toml"
)

// Home returns the registry home directory, honoring CTX_HOME.
func Home() (string, error) {
	if override := os.Getenv(HomeEnvVar); override != "" {
		return NormalizePath(override)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, HomeDirName), nil
}

// RegistryDBPath returns the path of the cross-project registry database.
func RegistryDBPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, RegistryDBFile), nil
}

// ConfigPath returns the path of the human-readable adapter config mirror.
func ConfigPath() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFile), nil
}

// MemoryRoot returns <project>/.context-memory for an absolute project path.
func MemoryRoot(projectPath string) string {
	return filepath.Join(projectPath, MemoryDir)
}

// ProjectDBPath returns the per-project event database path.
func ProjectDBPath(projectPath string) string {
	return filepath.Join(MemoryRoot(projectPath), ProjectDBFile)
}

// ProjectLogsDir returns the per-project JSONL sidecar directory.
func ProjectLogsDir(projectPath string) string {
	return filepath.Join(MemoryRoot(projectPath), ProjectLogDir)
}

// NormalizePath expands ~ and resolves the path to an absolute, cleaned form.
// Symlinks are resolved when the path exists.
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// EnsureDir creates path (and parents) if missing.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// DirectorySizeBytes measures the total size of regular files under root.
// Unreadable entries are skipped.
func DirectorySizeBytes(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort measurement
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// HumanBytes renders a byte count with one decimal and a binary-step unit.
func HumanBytes(size int64) string {
	value := float64(size)
	units := []string{"B", "KB", "MB", "GB", "TB"}
	unit := units[0]
	for _, unit = range units {
		if value < 1024.0 || unit == units[len(units)-1] {
			break
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f %s", value, unit)
}

// componentNameRegex matches names safe for use in file paths and config keys.
var componentNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// ValidateAdapterName validates that an adapter name contains only safe
// characters for paths and TOML table keys.
func ValidateAdapterName(name string) error {
	if name == "" {
		return errors.New("adapter name cannot be empty")
	}
	if !componentNameRegex.MatchString(name) {
		return fmt.Errorf("invalid adapter name %q: must be alphanumeric with underscores/hyphens only", name)
	}
	return nil
}

// ToPosix converts a filesystem path to forward-slash form for storage.
func ToPosix(path string) string {
	return filepath.ToSlash(path)
}

// RelativeToProject converts an absolute path to a POSIX path relative to the
// project root when it lies inside it; otherwise the POSIX form of the input
// is returned unchanged.
func RelativeToProject(projectRoot, path string) string {
	if !filepath.IsAbs(path) {
		abs := filepath.Join(projectRoot, path)
		if rel, err := filepath.Rel(projectRoot, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return ToPosix(rel)
		}
		return ToPosix(path)
	}
	if rel, err := filepath.Rel(projectRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
		return ToPosix(rel)
	}
	return ToPosix(path)
}
