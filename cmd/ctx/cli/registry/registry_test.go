package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestUpsertProject_RoundTrip(t *testing.T) {
	r := openTestRegistry(t)

	require.NoError(t, r.UpsertProject("/work/demo", "demo", "/work/demo/db", "/work/demo/logs"))
	row, err := r.GetProject("/work/demo")
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, "demo", row.DisplayName)
	require.Equal(t, StateStopped, row.RecordingState)
	require.Equal(t, "/work/demo/db", row.DBPath)
}

func TestUpsertProject_PreservesDisplayName(t *testing.T) {
	r := openTestRegistry(t)

	require.NoError(t, r.UpsertProject("/work/demo", "demo", "/db", "/logs"))
	// Re-register without a name; the stored one must survive.
	require.NoError(t, r.UpsertProject("/work/demo", "", "/db", "/logs"))

	row, err := r.GetProject("/work/demo")
	require.NoError(t, err)
	require.Equal(t, "demo", row.DisplayName)
}

func TestUpsertProject_PreservesRecordingState(t *testing.T) {
	r := openTestRegistry(t)

	require.NoError(t, r.UpsertProject("/work/demo", "demo", "/db", "/logs"))
	require.NoError(t, r.SetRecordingState("/work/demo", StateRecording, 7, 1234))
	require.NoError(t, r.UpsertProject("/work/demo", "", "/db", "/logs"))

	row, err := r.GetProject("/work/demo")
	require.NoError(t, err)
	require.Equal(t, StateRecording, row.RecordingState)
	require.EqualValues(t, 7, row.ActiveSessionID)
	require.Equal(t, 1234, row.RecorderPID)
}

func TestSetRecordingState_ClearsSessionAndPID(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.UpsertProject("/work/demo", "", "/db", "/logs"))
	require.NoError(t, r.SetRecordingState("/work/demo", StateRecording, 3, 99))
	require.NoError(t, r.SetRecordingState("/work/demo", StateStopped, 0, 0))

	row, err := r.GetProject("/work/demo")
	require.NoError(t, err)
	require.Equal(t, StateStopped, row.RecordingState)
	require.Zero(t, row.ActiveSessionID)
	require.Zero(t, row.RecorderPID)
}

func TestGetProject_Unknown(t *testing.T) {
	r := openTestRegistry(t)
	row, err := r.GetProject("/nope")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestListProjects_ExcludesDeleted(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.UpsertProject("/a", "a", "/db", "/logs"))
	require.NoError(t, r.UpsertProject("/b", "b", "/db", "/logs"))
	require.NoError(t, r.SetProjectDeleted("/b", true))

	rows, err := r.ListProjects(false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "/a", rows[0].Path)

	all, err := r.ListProjects(true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestFindProjectsByName(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.UpsertProject("/one", "shared", "/db", "/logs"))
	require.NoError(t, r.UpsertProject("/two", "shared", "/db", "/logs"))
	require.NoError(t, r.UpsertProject("/three", "unique", "/db", "/logs"))

	matches, err := r.FindProjectsByName("shared")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	matches, err = r.FindProjectsByName("unique")
	require.NoError(t, err)
	require.Len(t, matches, 1)

	matches, err = r.FindProjectsByName("absent")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestRemoveProject(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.UpsertProject("/gone", "", "/db", "/logs"))
	require.NoError(t, r.RemoveProject("/gone"))

	row, err := r.GetProject("/gone")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestSetAdapterLogPath_WritesConfigMirror(t *testing.T) {
	r := openTestRegistry(t)
	logPath := filepath.Join(t.TempDir(), "cursor.log")
	require.NoError(t, r.SetAdapterLogPath("cursor", logPath))

	configs, err := r.AdapterConfigs()
	require.NoError(t, err)
	require.Equal(t, logPath, configs["cursor"])

	data, err := os.ReadFile(r.ConfigPath())
	require.NoError(t, err)
	require.Contains(t, string(data), "# context-agent configuration")

	var parsed struct {
		Adapters map[string]struct {
			LogPath string `toml:"log_path"`
		} `toml:"adapters"`
	}
	require.NoError(t, toml.Unmarshal(data, &parsed))
	require.Equal(t, logPath, parsed.Adapters["cursor"].LogPath)
}

func TestSetAdapterLogPath_RejectsUnknownAdapter(t *testing.T) {
	r := openTestRegistry(t)
	require.Error(t, r.SetAdapterLogPath("zed", "/tmp/zed.log"))
	require.Error(t, r.SetAdapterLogPath("bad name!", "/tmp/x.log"))
}

func TestSetAdapterLogPath_CaseFolded(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.SetAdapterLogPath("Claude", "/tmp/claude.log"))

	configs, err := r.AdapterConfigs()
	require.NoError(t, err)
	require.Equal(t, "/tmp/claude.log", configs["claude"])
}

func TestSetVectorEnabled(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.UpsertProject("/vec", "", "/db", "/logs"))
	require.NoError(t, r.SetVectorEnabled("/vec", true))

	row, err := r.GetProject("/vec")
	require.NoError(t, err)
	require.True(t, row.VectorEnabled)
}

func TestSetProjectDeleted_StopsRecording(t *testing.T) {
	r := openTestRegistry(t)
	require.NoError(t, r.UpsertProject("/del", "", "/db", "/logs"))
	require.NoError(t, r.SetRecordingState("/del", StateRecording, 5, 42))
	require.NoError(t, r.SetProjectDeleted("/del", true))

	rows, err := r.ListProjects(true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].DeletedAt)
	require.Equal(t, StateStopped, rows[0].RecordingState)
	require.Zero(t, rows[0].ActiveSessionID)
	require.Zero(t, rows[0].RecorderPID)
}
