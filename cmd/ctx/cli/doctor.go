package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/integration"
	"github.com/contextmemory/ctx/cmd/ctx/cli/jsonutil"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// doctorCheckOrder fixes the report ordering for both output modes.
var doctorCheckOrder = []string{
	"cursor_mcp", "claude_mcp", "claude_hooks", "codex_mcp", "fallback_logs", "ctx_executable",
}

func newDoctorCmd() *cobra.Command {
	var flags projectFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check MCP/hook integration health",
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
			st, err := store.Open(projectPath)
			if err != nil {
				return err
			}
			defer st.Close()

			checks, err := runDoctorChecks(st, reg, projectPath)
			if err != nil {
				return err
			}

			if asJSON {
				payload := map[string]any{"project": projectPath, "checks": checks}
				data, err := jsonutil.MarshalIndentWithNewline(payload, "", "  ")
				if err != nil {
					return err
				}
				fmt.Print(string(data))
				return nil
			}

			fmt.Printf("Project: %s\n", projectPath)
			for _, key := range doctorCheckOrder {
				check := checks[key]
				fmt.Printf("- %s: %s - %s\n", key, check.Status, check.Detail)
			}
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable report")
	return cmd
}

// runDoctorChecks merges static client config inspection with the live
// heartbeat rows of the latest session.
func runDoctorChecks(st *store.Store, reg *registry.Registry, projectPath string) (map[string]integration.Check, error) {
	cursorConfig := integration.InspectCursorConfig(projectPath)
	claudeMCPConfig, claudeHooksConfig := integration.InspectClaudeSettings(projectPath)
	codexConfig := integration.InspectCodexConfig(projectPath)
	exeStatus, exeDetail := integration.ResolveExecutable()

	snapshot, err := st.StatusSnapshot(1)
	if err != nil {
		return nil, err
	}
	heartbeats := map[string]*store.SourceStatus{}
	for i := range snapshot.SourceStatuses {
		row := snapshot.SourceStatuses[i]
		heartbeats[row.Source] = &row
	}

	checks := map[string]integration.Check{
		"cursor_mcp":     mergeConfigAndHeartbeat(cursorConfig, heartbeats["mcp:cursor"], "cursor MCP"),
		"claude_mcp":     mergeConfigAndHeartbeat(claudeMCPConfig, heartbeats["mcp:claude"], "claude MCP"),
		"claude_hooks":   mergeConfigAndHeartbeat(claudeHooksConfig, heartbeats["hook:claude"], "claude hooks"),
		"codex_mcp":      codexConfig,
		"ctx_executable": {Status: exeStatus, Detail: exeDetail},
	}

	adapters, err := reg.AdapterConfigs()
	if err != nil {
		return nil, err
	}
	checks["fallback_logs"] = fallbackLogsCheck(adapters)
	return checks, nil
}

// mergeConfigAndHeartbeat folds a config probe and a runtime heartbeat into
// one verdict. Config problems win; otherwise the heartbeat decides.
func mergeConfigAndHeartbeat(config integration.Check, heartbeat *store.SourceStatus, label string) integration.Check {
	if config.Status == integration.StateUnavailable || config.Status == integration.StateDegraded {
		return config
	}
	if heartbeat == nil {
		return integration.Check{Status: integration.StateDegraded, Detail: label + " configured but no heartbeat yet"}
	}
	detail := heartbeat.Detail
	switch heartbeat.Status {
	case store.SourceAvailable:
		if recentHeartbeat(heartbeat.UpdatedAt) {
			return integration.Check{Status: integration.StateConnected, Detail: fmt.Sprintf("%s (last=%s)", detail, heartbeat.UpdatedAt)}
		}
		return integration.Check{Status: integration.StateDegraded, Detail: fmt.Sprintf("stale heartbeat (last=%s)", heartbeat.UpdatedAt)}
	case store.SourceUnknown:
		if detail == "" {
			detail = label + " awaiting heartbeat"
		}
		return integration.Check{Status: integration.StateDegraded, Detail: detail}
	case store.SourceDegraded:
		if detail == "" {
			detail = label + " degraded"
		}
		return integration.Check{Status: integration.StateDegraded, Detail: detail}
	}
	if detail == "" {
		detail = label + " unavailable"
	}
	return integration.Check{Status: integration.StateUnavailable, Detail: detail}
}

func fallbackLogsCheck(adapters map[string]string) integration.Check {
	if len(adapters) == 0 {
		return integration.Check{Status: integration.StateUnavailable, Detail: "no fallback adapter logs configured"}
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
		detail := "configured logs: " + strings.Join(existing, "; ")
		if len(missing) > 0 {
			detail += "; missing: " + strings.Join(missing, "; ")
		}
		return integration.Check{Status: integration.StateConnected, Detail: detail}
	}
	return integration.Check{Status: integration.StateDegraded, Detail: "configured logs missing: " + strings.Join(missing, "; ")}
}
