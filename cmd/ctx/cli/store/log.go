package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// appendEventLog writes one canonical JSON line to the day's sidecar file
// under <memory_root>/logs/. The sidecar is append-only audit surface; it is
// never read back.
func (s *Store) appendEventLog(payload eventLogPayload) error {
	day := time.Now().UTC().Format("2006-01-02")
	target := filepath.Join(s.logsPath, fmt.Sprintf("events-%s.jsonl", day))

	line, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event log line: %w", err)
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is derived from the memory root
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event log line: %w", err)
	}
	return nil
}
