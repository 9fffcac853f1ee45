package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/contextmemory/ctx/cmd/ctx/cli/integration"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func heartbeatAt(offset time.Duration, status, detail string) *store.SourceStatus {
	return &store.SourceStatus{
		Status:    status,
		Detail:    detail,
		UpdatedAt: time.Now().UTC().Add(offset).Format("2006-01-02T15:04:05Z"),
	}
}

func TestMergeConfigAndHeartbeat(t *testing.T) {
	available := integration.Check{Status: integration.StateAvailable, Detail: "/cfg"}

	t.Run("config problems win", func(t *testing.T) {
		broken := integration.Check{Status: integration.StateDegraded, Detail: "invalid JSON"}
		got := mergeConfigAndHeartbeat(broken, heartbeatAt(0, store.SourceAvailable, "heartbeat"), "cursor MCP")
		require.Equal(t, broken, got)
	})

	t.Run("no heartbeat yet", func(t *testing.T) {
		got := mergeConfigAndHeartbeat(available, nil, "cursor MCP")
		require.Equal(t, integration.StateDegraded, got.Status)
		require.Contains(t, got.Detail, "no heartbeat yet")
	})

	t.Run("fresh heartbeat connects", func(t *testing.T) {
		got := mergeConfigAndHeartbeat(available, heartbeatAt(-time.Minute, store.SourceAvailable, "event heartbeat"), "cursor MCP")
		require.Equal(t, integration.StateConnected, got.Status)
		require.Contains(t, got.Detail, "last=")
	})

	t.Run("stale heartbeat degrades", func(t *testing.T) {
		got := mergeConfigAndHeartbeat(available, heartbeatAt(-time.Hour, store.SourceAvailable, "event heartbeat"), "cursor MCP")
		require.Equal(t, integration.StateDegraded, got.Status)
		require.Contains(t, got.Detail, "stale heartbeat")
	})

	t.Run("unknown source stays degraded", func(t *testing.T) {
		got := mergeConfigAndHeartbeat(available, heartbeatAt(0, store.SourceUnknown, "awaiting MCP heartbeat"), "cursor MCP")
		require.Equal(t, integration.StateDegraded, got.Status)
		require.Equal(t, "awaiting MCP heartbeat", got.Detail)
	})

	t.Run("unavailable source", func(t *testing.T) {
		got := mergeConfigAndHeartbeat(available, heartbeatAt(0, store.SourceUnavailable, ""), "cursor MCP")
		require.Equal(t, integration.StateUnavailable, got.Status)
		require.Equal(t, "cursor MCP unavailable", got.Detail)
	})
}

func TestFallbackLogsCheck(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		got := fallbackLogsCheck(map[string]string{})
		require.Equal(t, integration.StateUnavailable, got.Status)
	})

	t.Run("configured and present", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "cursor.log")
		require.NoError(t, os.WriteFile(logPath, []byte(""), 0o600))

		got := fallbackLogsCheck(map[string]string{"cursor": logPath})
		require.Equal(t, integration.StateConnected, got.Status)
		require.Contains(t, got.Detail, logPath)
	})

	t.Run("configured but missing", func(t *testing.T) {
		got := fallbackLogsCheck(map[string]string{"claude": "/nope/claude.log"})
		require.Equal(t, integration.StateDegraded, got.Status)
		require.Contains(t, got.Detail, "missing")
	})
}

func TestRecentHeartbeat(t *testing.T) {
	require.False(t, recentHeartbeat(""))
	require.False(t, recentHeartbeat("not a timestamp"))
	require.False(t, recentHeartbeat(time.Now().UTC().Add(-time.Hour).Format("2006-01-02T15:04:05Z")))
	require.True(t, recentHeartbeat(time.Now().UTC().Format("2006-01-02T15:04:05Z")))
}
