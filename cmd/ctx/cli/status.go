package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextmemory/ctx/cmd/ctx/cli/jsonutil"
	"github.com/contextmemory/ctx/cmd/ctx/cli/paths"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// heartbeatWindow separates fresh integration heartbeats from stale ones.
const heartbeatWindow = 600 * time.Second

func recentHeartbeat(ts string) bool {
	if ts == "" {
		return false
	}
	parsed, err := time.Parse("2006-01-02T15:04:05Z", ts)
	if err != nil {
		return false
	}
	return time.Since(parsed) <= heartbeatWindow
}

func newStatusCmd() *cobra.Command {
	var flags projectFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show project recording status",
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

			st, err := store.Open(projectPath)
			if err != nil {
				return err
			}
			defer st.Close()

			snapshot, err := st.StatusSnapshot(store.RecentEventsDefault)
			if err != nil {
				return err
			}
			if snapshot.Project == nil {
				return fmt.Errorf("project DB missing project row: %s", projectPath)
			}

			if asJSON {
				return printStatusJSON(projectPath, snapshot)
			}
			printStatusText(projectPath, snapshot)
			return nil
		},
	}

	flags.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable status")
	return cmd
}

func printStatusText(projectPath string, snapshot *store.Snapshot) {
	project := snapshot.Project
	capBytes := project.StorageCapBytes
	if capBytes <= 0 {
		capBytes = store.DefaultCapBytes
	}

	name := project.DisplayName
	if name == "" {
		name = "(none)"
	}
	lastUpdated := project.LastUpdatedAt
	if lastUpdated == "" {
		lastUpdated = "never"
	}
	fmt.Printf("Project: %s\n", projectPath)
	fmt.Printf("Name: %s\n", name)
	fmt.Printf("Recording: %s\n", project.RecordingState)
	fmt.Printf("Last updated: %s\n", lastUpdated)
	fmt.Printf("Storage: %s / %s\n", paths.HumanBytes(snapshot.StorageUsedBytes), paths.HumanBytes(capBytes))
	fmt.Printf("Effective changed files: %d\n", snapshot.EffectiveChangedFiles)

	if snapshot.ActiveSession != nil {
		fmt.Printf("Active session: %d (%s)\n", snapshot.ActiveSession.ID, snapshot.ActiveSession.Agent)
	} else {
		fmt.Println("Active session: none")
	}

	if len(snapshot.SourceStatuses) > 0 {
		fmt.Println("Sources:")
		for _, row := range snapshot.SourceStatuses {
			fmt.Println(strings.TrimRight(fmt.Sprintf("- %s: %s %s", row.Source, row.Status, row.Detail), " "))
		}
		fmt.Println("Integration:")
		for _, row := range snapshot.SourceStatuses {
			if !isIntegrationSource(row.Source) {
				continue
			}
			freshness := "stale"
			if recentHeartbeat(row.UpdatedAt) {
				freshness = "fresh"
			}
			fmt.Printf("- %s heartbeat: %s (%s)\n", row.Source, row.UpdatedAt, freshness)
		}
	}

	if len(snapshot.Events) > 0 {
		fmt.Println("Recent events:")
		for _, ev := range snapshot.Events {
			effective := "reverted"
			if ev.IsEffective {
				effective = "effective"
			}
			fmt.Printf("- [%s] %s (%s, %s): %s\n", ev.CreatedAt, ev.Type, ev.Source, effective, ev.Summary)
		}
	}
	if snapshot.LastRevert != nil {
		fmt.Printf("Last revert: %s - %s\n", snapshot.LastRevert.CreatedAt, snapshot.LastRevert.Summary)
	}
}

func isIntegrationSource(source string) bool {
	return strings.HasPrefix(source, "mcp:") ||
		strings.HasPrefix(source, "hook:") ||
		strings.HasPrefix(source, "fallback_logs")
}

func printStatusJSON(projectPath string, snapshot *store.Snapshot) error {
	sources := make([]map[string]any, 0, len(snapshot.SourceStatuses))
	for _, row := range snapshot.SourceStatuses {
		sources = append(sources, map[string]any{
			"source":     row.Source,
			"status":     row.Status,
			"detail":     row.Detail,
			"updated_at": row.UpdatedAt,
		})
	}
	payload := map[string]any{
		"project":                 projectPath,
		"display_name":            snapshot.Project.DisplayName,
		"recording_state":         snapshot.Project.RecordingState,
		"last_updated_at":         snapshot.Project.LastUpdatedAt,
		"storage_used_bytes":      snapshot.StorageUsedBytes,
		"storage_cap_bytes":       snapshot.Project.StorageCapBytes,
		"effective_changed_files": snapshot.EffectiveChangedFiles,
		"sources":                 sources,
		"recent_events":           snapshot.Events,
	}
	if snapshot.ActiveSession != nil {
		payload["active_session"] = map[string]any{
			"id":    snapshot.ActiveSession.ID,
			"agent": snapshot.ActiveSession.Agent,
		}
	}
	data, err := jsonutil.MarshalIndentWithNewline(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
