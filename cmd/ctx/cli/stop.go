package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

const (
	stopGraceTimeout = 10 * time.Second
	stopKillTimeout  = 2 * time.Second
)

func newStopCmd() *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop active recording for a project",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg, err := registry.OpenDefault()
			if err != nil {
				return err
			}
			defer reg.Close()

			projectPath, err := resolveProjectPath(reg, flags)
			if err != nil {
				return err
			}
			row, err := reg.GetProject(projectPath)
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("project not found: %s", projectPath)
			}
			if row.RecordingState != registry.StateRecording {
				fmt.Println("Recorder already stopped.")
				return nil
			}

			st, err := store.Open(projectPath)
			if err != nil {
				return err
			}
			defer st.Close()

			// Flag the session first so the recorder's own poll loop can
			// exit before we resort to signals.
			if row.ActiveSessionID > 0 {
				if err := st.SetSessionState(row.ActiveSessionID, store.SessionStopping); err != nil {
					return err
				}
			}
			if row.RecorderPID > 0 && pidAlive(row.RecorderPID) {
				if !waitForExit(row.RecorderPID, stopGraceTimeout) {
					terminatePID(row.RecorderPID)
					waitForExit(row.RecorderPID, stopKillTimeout)
				}
			}
			if row.ActiveSessionID > 0 {
				if err := st.SetSessionState(row.ActiveSessionID, store.SessionStopped); err != nil {
					return err
				}
			}
			if err := reg.SetRecordingState(projectPath, registry.StateStopped, 0, 0); err != nil {
				return err
			}
			fmt.Println("Recording stopped.")
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}
