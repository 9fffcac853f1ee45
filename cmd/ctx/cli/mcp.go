package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/rpc"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server operations",
	}
	cmd.AddCommand(newMCPServeCmd())
	return cmd
}

func newMCPServeCmd() *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run stdio MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = logging.Init("mcp")

			normalized, err := paths.NormalizePath(projectPath)
			if err != nil {
				return err
			}
			st, err := store.Open(normalized)
			if err != nil {
				return err
			}
			defer st.Close()

			server := rpc.New(st, os.Stdin, os.Stdout)
			return server.Serve(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&projectPath, "project-path", "", "Project to serve memory for")
	_ = cmd.MarkFlagRequired("project-path")
	return cmd
}
