// Package cli wires the ctx command tree: project lifecycle (init, start,
// stop, status), maintenance (delete, purge, list, where), integration
// health (doctor), and the long-running surfaces (mcp serve, hook ingest,
// the hidden recorder entrypoint).
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information (can be set at build time)
var (
	Version = "0.1.0"
	Commit  = "unknown"
)

const longHelp = `

Getting Started:
  Run 'ctx init' inside a project to wire editor integration, then
  'ctx start' to begin recording. 'ctx status' shows what has been
  captured so far.

`

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctx",
		Short: "Local project context memory",
		Long:  "Records AI coding assistant activity into per-project local memory" + longHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newWhereCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newPurgeCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAdapterCmd())
	cmd.AddCommand(newVectorCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newHookCmd())
	cmd.AddCommand(newRecorderRunCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("ctx %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
