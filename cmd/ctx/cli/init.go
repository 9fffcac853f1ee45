package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/integration"
	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func newInitCmd() *cobra.Command {
	var flags projectFlags
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize project-local MCP + hook configuration",
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

			cursorPath, err := integration.UpdateCursorConfig(projectPath, force)
			if err != nil {
				return err
			}
			claudePath, err := integration.UpdateClaudeSettings(projectPath, force)
			if err != nil {
				return err
			}
			codexPath, err := integration.UpdateCodexConfig(projectPath, force)
			if err != nil {
				return err
			}

			gitignoreAdded, err := integration.EnsureGitignoreEntry(projectPath, paths.MemoryDir+"/")
			if err != nil {
				return err
			}
			if err := st.SetFeature("integration_initialized", "true"); err != nil {
				return err
			}

			fmt.Printf("Initialized project integration at: %s\n", projectPath)
			fmt.Printf("Cursor MCP config: %s\n", cursorPath)
			fmt.Printf("Claude settings: %s\n", claudePath)
			fmt.Printf("Codex config: %s\n", codexPath)
			if gitignoreAdded {
				fmt.Printf("Updated .gitignore: added %s/\n", paths.MemoryDir)
			} else {
				fmt.Printf(".gitignore already includes %s/\n", paths.MemoryDir)
			}

			exeStatus, exeDetail := integration.ResolveExecutable()
			fmt.Printf("ctx executable: %s (%s)\n", exeStatus, exeDetail)
			fmt.Println("Next steps:")
			fmt.Printf("1. ctx start --path %s\n", projectPath)
			fmt.Printf("2. Open Cursor/Claude in %s\n", projectPath)
			fmt.Printf("3. ctx status --path %s\n", projectPath)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite malformed client config files")
	return cmd
}
