package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func newAdapterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adapter",
		Short: "Adapter management",
	}
	cmd.AddCommand(newAdapterConfigureCmd())
	return cmd
}

func newAdapterConfigureCmd() *cobra.Command {
	var logPath string

	cmd := &cobra.Command{
		Use:   "configure <adapter>",
		Short: "Configure adapter source",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			adapter := strings.ToLower(strings.TrimSpace(args[0]))

			reg, err := registry.OpenDefault()
			if err != nil {
				return err
			}
			defer reg.Close()

			normalized, err := paths.NormalizePath(logPath)
			if err != nil {
				return err
			}
			if err := reg.SetAdapterLogPath(adapter, normalized); err != nil {
				return err
			}
			fmt.Printf("Configured %s log path: %s\n", adapter, normalized)
			fmt.Printf("Config file: %s\n", reg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&logPath, "log-path", "", "Path to the adapter log file")
	_ = cmd.MarkFlagRequired("log-path")
	return cmd
}

func newVectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Vector feature toggles",
	}
	cmd.AddCommand(newVectorEnableCmd())
	return cmd
}

func newVectorEnableCmd() *cobra.Command {
	var flags projectFlags

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Enable vector feature flag",
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
			st, err := store.Open(projectPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if row == nil {
				dbPath := paths.ProjectDBPath(projectPath)
				logsPath := paths.ProjectLogsDir(projectPath)
				if err := reg.UpsertProject(projectPath, flags.name, dbPath, logsPath); err != nil {
					return err
				}
			}
			if err := reg.SetVectorEnabled(projectPath, true); err != nil {
				return err
			}
			if err := st.SetFeature("vector_enabled", "true"); err != nil {
				return err
			}
			fmt.Printf("Vector search feature flag enabled for project: %s\n", projectPath)
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}
