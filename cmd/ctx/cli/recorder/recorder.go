// Package recorder implements the long-lived background observer for one
// recording session. Each poll iteration tails configured adapter logs,
// checks version control, and rescans the working tree, translating observed
// deltas into events through the store.
package recorder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/registry"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// DefaultInterval is the poll interval when CTX_RECORDER_INTERVAL is unset.
const DefaultInterval = 2 * time.Second

// IntervalEnvVar overrides the poll interval (float seconds).
const IntervalEnvVar = "CTX_RECORDER_INTERVAL"

// IntervalFromEnv resolves the poll interval, falling back to the default on
// missing or malformed values.
func IntervalFromEnv() time.Duration {
	raw := os.Getenv(IntervalEnvVar)
	if raw == "" {
		return DefaultInterval
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return DefaultInterval
	}
	return time.Duration(seconds * float64(time.Second))
}

// Recorder drives the poll loop for one session.
type Recorder struct {
	store       *store.Store
	registry    *registry.Registry
	projectPath string
	sessionID   int64
	agent       string
	interval    time.Duration

	lastGitSnapshot  *gitSnapshot
	lastFileSnapshot map[string]string
}

// New assembles a recorder. The store and registry handles stay owned by the
// caller.
func New(st *store.Store, reg *registry.Registry, sessionID int64, agent string, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Recorder{
		store:       st,
		registry:    reg,
		projectPath: st.ProjectPath(),
		sessionID:   sessionID,
		agent:       agent,
		interval:    interval,
	}
}

// Run executes the poll loop until ctx is cancelled or the session leaves the
// running state. On exit it appends a best-effort handoff event, marks the
// session stopped, and clears the registry recording state.
func (r *Recorder) Run(ctx context.Context) error {
	ctx = logging.WithSession(logging.WithProject(ctx, r.projectPath), r.sessionID)
	logging.Info(ctx, "recorder started", "agent", r.agent, "interval", r.interval.String())

	r.seedSourceStatus()

	for {
		state, err := r.store.SessionState(r.sessionID)
		if err != nil {
			return err
		}
		if state != store.SessionRunning {
			break
		}

		r.pollAdapters(ctx)
		r.pollGit(ctx)
		r.pollFilesystem(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(r.interval):
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Best-effort: the handoff must not block shutdown.
	if _, err := r.store.InsertEvent(store.EventInput{
		SessionID:   r.sessionID,
		Type:        store.EventHandoff,
		Summary:     "Recorder stopped cleanly.",
		Source:      "recorder",
		IsEffective: true,
	}); err != nil {
		logging.Warn(ctx, "failed to record shutdown handoff", "error", err.Error())
	}
	if err := r.store.SetSessionState(r.sessionID, store.SessionStopped); err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	if err := r.registry.SetRecordingState(r.projectPath, registry.StateStopped, 0, 0); err != nil {
		return fmt.Errorf("failed to clear recording state: %w", err)
	}
	logging.Info(ctx, "recorder stopped")
	return nil
}

// seedSourceStatus writes the initial unknown/unavailable heartbeat rows so
// status output shows every expected source from the first poll.
func (r *Recorder) seedSourceStatus() {
	_ = r.store.UpdateSourceStatus(r.sessionID, "git", store.SourceUnknown, "awaiting first scan")
	_ = r.store.UpdateSourceStatus(r.sessionID, "filesystem", store.SourceUnknown, "awaiting first scan")
	for _, adapter := range registry.SupportedAdapters {
		r.updateAdapterAvailability(adapter)
	}
}

func (r *Recorder) updateAdapterAvailability(adapter string) {
	source := "adapter:" + adapter
	configs, err := r.registry.AdapterConfigs()
	if err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceDegraded, "registry read failed")
		return
	}
	configured, ok := configs[adapter]
	if !ok || configured == "" {
		_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceUnavailable, "not configured")
		return
	}
	if _, err := os.Stat(configured); err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceUnavailable, "missing log path: "+configured)
		return
	}
	_ = r.store.UpdateSourceStatus(r.sessionID, source, store.SourceAvailable, configured)
}
