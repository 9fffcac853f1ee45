package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHumanBytes(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.0 B"},
		{512, "512.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3.0 TB"},
	}
	for _, tt := range tests {
		if got := HumanBytes(tt.size); got != tt.want {
			t.Errorf("HumanBytes(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestValidateAdapterName(t *testing.T) {
	valid := []string{"cursor", "claude", "my-adapter", "log_2"}
	for _, name := range valid {
		if err := ValidateAdapterName(name); err != nil {
			t.Errorf("ValidateAdapterName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "bad name", "dots.are.bad", "semi;colon", "../escape"}
	for _, name := range invalid {
		if err := ValidateAdapterName(name); err == nil {
			t.Errorf("ValidateAdapterName(%q) = nil, want error", name)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	if _, err := NormalizePath(""); err == nil {
		t.Fatal("NormalizePath(\"\") = nil, want error")
	}

	// Nonexistent paths still normalize to absolute cleaned form.
	got, err := NormalizePath("/definitely/not/there/../there")
	if err != nil {
		t.Fatalf("NormalizePath: %v", err)
	}
	if got != "/definitely/not/there" {
		t.Errorf("NormalizePath = %q", got)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err = NormalizePath("~/some-project")
	if err != nil {
		t.Fatalf("NormalizePath: %v", err)
	}
	want := filepath.Join(home, "some-project")
	// Home itself may be behind a symlink; compare the suffix.
	if filepath.Base(got) != filepath.Base(want) {
		t.Errorf("NormalizePath(~/some-project) = %q, want basename %q", got, filepath.Base(want))
	}
}

func TestNormalizePath_ResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	if err := os.Mkdir(target, 0o750); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "alias")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, err := NormalizePath(link)
	if err != nil {
		t.Fatalf("NormalizePath: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatal(err)
	}
	if got != resolved {
		t.Errorf("NormalizePath(%q) = %q, want %q", link, got, resolved)
	}
}

func TestHome_HonorsOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnvVar, dir)

	home, err := Home()
	if err != nil {
		t.Fatalf("Home: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if home != resolved {
		t.Errorf("Home() = %q, want %q", home, resolved)
	}

	dbPath, err := RegistryDBPath()
	if err != nil {
		t.Fatalf("RegistryDBPath: %v", err)
	}
	if dbPath != filepath.Join(resolved, RegistryDBFile) {
		t.Errorf("RegistryDBPath() = %q", dbPath)
	}
}

func TestProjectLayout(t *testing.T) {
	root := MemoryRoot("/work/demo")
	if root != "/work/demo/.context-memory" {
		t.Errorf("MemoryRoot = %q", root)
	}
	if got := ProjectDBPath("/work/demo"); got != "/work/demo/.context-memory/context.db" {
		t.Errorf("ProjectDBPath = %q", got)
	}
	if got := ProjectLogsDir("/work/demo"); got != "/work/demo/.context-memory/logs" {
		t.Errorf("ProjectLogsDir = %q", got)
	}
}

func TestRelativeToProject(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"inside", "/work/demo", "/work/demo/src/main.go", "src/main.go"},
		{"outside", "/work/demo", "/etc/passwd", "/etc/passwd"},
		{"already relative", "/work/demo", "src/main.go", "src/main.go"},
		{"relative escaping", "/work/demo", "../other/file", "../other/file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeToProject(tt.root, tt.path); got != tt.want {
				t.Errorf("RelativeToProject(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
			}
		})
	}
}

func TestDirectorySizeBytes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 50), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := DirectorySizeBytes(dir); got != 150 {
		t.Errorf("DirectorySizeBytes = %d, want 150", got)
	}
	if got := DirectorySizeBytes(filepath.Join(dir, "missing")); got != 0 {
		t.Errorf("DirectorySizeBytes(missing) = %d, want 0", got)
	}
}
