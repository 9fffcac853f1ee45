package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/hook"
	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Hook ingestion operations",
	}
	cmd.AddCommand(newHookIngestCmd())
	return cmd
}

func newHookIngestCmd() *cobra.Command {
	var projectPath string
	var event string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest Claude hook payload from stdin",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			_ = logging.Init("hook")

			normalized, err := paths.NormalizePath(projectPath)
			if err != nil {
				return err
			}
			st, err := store.Open(normalized)
			if err != nil {
				return err
			}
			defer st.Close()

			active, err := st.ActiveSession()
			if err != nil {
				return err
			}
			// Hooks fire for every prompt; a missing session is routine, not
			// an error, and must not fail the editor's hook pipeline.
			if active == nil {
				fmt.Println("No active ctx session; hook event ignored.")
				return nil
			}

			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read hook payload: %w", err)
			}
			payload := hook.ParsePayload(raw)
			input := hook.BuildEvent(active.ID, event, payload)
			if _, err := st.InsertEvent(input); err != nil {
				return err
			}

			now := time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
			if err := st.UpdateSourceStatus(active.ID, hook.Source, store.SourceAvailable, event+" heartbeat "+now); err != nil {
				return err
			}
			fmt.Printf("Hook event ingested: %s\n", event)
			return nil
		},
	}

	cmd.Flags().StringVar(&projectPath, "project-path", "", "Project receiving the hook event")
	cmd.Flags().StringVar(&event, "event", "", "Hook event name")
	_ = cmd.MarkFlagRequired("project-path")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}
