package cli

import (
	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/recorder"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// newRecorderRunCmd is the hidden entrypoint `ctx start` spawns; it is not
// meant to be invoked by hand.
func newRecorderRunCmd() *cobra.Command {
	var projectPath string
	var sessionID int64
	var agent string
	var ctxHome string

	cmd := &cobra.Command{
		Use:    "_recorder_run",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = logging.Init("recorder")

			normalized, err := paths.NormalizePath(projectPath)
			if err != nil {
				return err
			}
			reg, err := registry.Open(ctxHome)
			if err != nil {
				return err
			}
			defer reg.Close()

			st, err := store.Open(normalized)
			if err != nil {
				return err
			}
			defer st.Close()

			rec := recorder.New(st, reg, sessionID, agent, recorder.IntervalFromEnv())
			return rec.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&projectPath, "path", "", "Project path")
	cmd.Flags().Int64Var(&sessionID, "session-id", 0, "Session to record into")
	cmd.Flags().StringVar(&agent, "agent", "", "Agent the session is attributed to")
	cmd.Flags().StringVar(&ctxHome, "ctx-home", "", "Registry home directory")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("session-id")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("ctx-home")
	return cmd
}
