package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func newStartCmd() *cobra.Command {
	var flags projectFlags
	var agent string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording context for a project",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if agent != "cursor" && agent != "claude" && agent != "auto" {
				return fmt.Errorf("agent must be 'cursor', 'claude', or 'auto'")
			}

			reg, err := registry.OpenDefault()
			if err != nil {
				return err
			}
			defer reg.Close()

			projectPath, err := resolveProjectPath(reg, flags)
			if err != nil {
				return err
			}
			if err := paths.EnsureDir(projectPath); err != nil {
				return err
			}

			st, err := store.Open(projectPath)
			if err != nil {
				return err
			}
			defer st.Close()

			dbPath := paths.ProjectDBPath(projectPath)
			logsPath := paths.ProjectLogsDir(projectPath)
			if err := reg.UpsertProject(projectPath, flags.name, dbPath, logsPath); err != nil {
				return err
			}

			row, err := reg.GetProject(projectPath)
			if err != nil {
				return err
			}
			if row != nil && row.DeletedAt != "" {
				return fmt.Errorf("project %q is soft-deleted; purge or restore before start", projectPath)
			}

			if row != nil && row.RecordingState == registry.StateRecording {
				if row.RecorderPID > 0 && pidAlive(row.RecorderPID) {
					fmt.Printf("Already recording. Session: %d, PID: %d\n", row.ActiveSessionID, row.RecorderPID)
					fmt.Printf("DB: %s\n", dbPath)
					fmt.Printf("Logs: %s\n", logsPath)
					return nil
				}
				// Stale registry entry from a dead recorder.
				if row.ActiveSessionID > 0 {
					if err := st.SetSessionState(row.ActiveSessionID, store.SessionStopped); err != nil {
						return err
					}
				}
				if err := reg.SetRecordingState(projectPath, registry.StateStopped, 0, 0); err != nil {
					return err
				}
			}

			if err := st.SetProjectMetadata(flags.name, registry.StateRecording); err != nil {
				return err
			}
			sessionID, err := st.CreateSession(agent, uuid.NewString())
			if err != nil {
				return err
			}
			if err := seedSourceExpectations(st, reg, sessionID); err != nil {
				return err
			}
			pid, err := spawnRecorder(projectPath, sessionID, agent, reg.HomeDir())
			if err != nil {
				return err
			}
			if err := reg.SetRecordingState(projectPath, registry.StateRecording, sessionID, pid); err != nil {
				return err
			}

			fmt.Printf("Recording started. Session: %d, PID: %d\n", sessionID, pid)
			fmt.Printf("DB: %s\n", dbPath)
			fmt.Printf("Logs: %s\n", logsPath)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&agent, "agent", "auto", "Agent to attribute the session to (cursor, claude, auto)")
	return cmd
}

// seedSourceExpectations writes the integration heartbeat rows a fresh
// session is expected to fill in.
func seedSourceExpectations(st *store.Store, reg *registry.Registry, sessionID int64) error {
	_ = st.UpdateSourceStatus(sessionID, "mcp:cursor", store.SourceUnknown, "awaiting MCP heartbeat")
	_ = st.UpdateSourceStatus(sessionID, "mcp:claude", store.SourceUnknown, "awaiting MCP heartbeat")
	_ = st.UpdateSourceStatus(sessionID, "hook:claude", store.SourceUnknown, "awaiting Claude hook event")

	adapters, err := reg.AdapterConfigs()
	if err != nil {
		return err
	}
	if len(adapters) == 0 {
		return st.UpdateSourceStatus(sessionID, "fallback_logs", store.SourceUnavailable, "no adapter logs configured")
	}

	var existing, missing []string
	for _, adapter := range []string{"cursor", "claude"} {
		path := adapters[adapter]
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, adapter+":"+path)
		} else {
			missing = append(missing, adapter+":"+path)
		}
	}
	if len(existing) > 0 {
		detail := "configured logs=" + strings.Join(existing, "; ")
		if len(missing) > 0 {
			detail += "; missing=" + strings.Join(missing, "; ")
		}
		return st.UpdateSourceStatus(sessionID, "fallback_logs", store.SourceAvailable, detail)
	}
	return st.UpdateSourceStatus(sessionID, "fallback_logs", store.SourceDegraded, "configured but missing: "+strings.Join(missing, ", "))
}

// spawnRecorder launches the hidden recorder entrypoint detached from the
// current terminal session.
func spawnRecorder(projectPath string, sessionID int64, agent, ctxHome string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate own executable: %w", err)
	}
	cmd := exec.Command(exe, "_recorder_run",
		"--path", projectPath,
		"--session-id", strconv.FormatInt(sessionID, 10),
		"--agent", agent,
		"--ctx-home", ctxHome,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start recorder: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}
