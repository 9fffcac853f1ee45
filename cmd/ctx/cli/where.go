package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
)

func newWhereCmd() *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "where",
		Short: "Print local memory storage paths",
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

			dbPath := paths.ProjectDBPath(projectPath)
			logsPath := paths.ProjectLogsDir(projectPath)
			row, err := reg.GetProject(projectPath)
			if err != nil {
				return err
			}
			if row != nil {
				if row.DBPath != "" {
					dbPath = row.DBPath
				}
				if row.LogsPath != "" {
					logsPath = row.LogsPath
				}
			}
			fmt.Printf("DB: %s\n", dbPath)
			fmt.Printf("Logs: %s\n", logsPath)
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active projects",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg, err := registry.OpenDefault()
			if err != nil {
				return err
			}
			defer reg.Close()

			rows, err := reg.ListProjects(false)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No projects registered.")
				return nil
			}
			for _, row := range rows {
				name := row.DisplayName
				if name == "" {
					name = "(none)"
				}
				fmt.Printf("%s | name=%s | state=%s\n", row.Path, name, row.RecordingState)
			}
			return nil
		},
	}
}
