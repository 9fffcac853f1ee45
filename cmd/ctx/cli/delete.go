package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func newDeleteCmd() *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Soft delete project context",
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
			if row.RecordingState == registry.StateRecording {
				return fmt.Errorf("stop recording before delete")
			}

			if err := reg.SetProjectDeleted(projectPath, true); err != nil {
				return err
			}
			st, err := store.Open(projectPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SetProjectDeleted(true); err != nil {
				return err
			}
			fmt.Printf("Soft deleted project context: %s\n", projectPath)
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var flags projectFlags
	var force bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete project context",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !force {
				return fmt.Errorf("refusing purge without --force")
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
			row, err := reg.GetProject(projectPath)
			if err != nil {
				return err
			}
			if row != nil && row.RecordingState == registry.StateRecording {
				return fmt.Errorf("stop recording before purge")
			}

			memoryRoot := paths.MemoryRoot(projectPath)
			if err := os.RemoveAll(memoryRoot); err != nil {
				return fmt.Errorf("failed to remove %s: %w", memoryRoot, err)
			}
			if err := reg.RemoveProject(projectPath); err != nil {
				return err
			}
			fmt.Printf("Purged project context: %s\n", projectPath)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&force, "force", false, "Confirm irreversible removal")
	return cmd
}
