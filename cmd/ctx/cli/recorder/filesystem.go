package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// excludedDirs are directory names skipped during tree scans, matched against
// every component of the relative path.
var excludedDirs = map[string]struct{}{
	".git":            {},
	".context-memory": {},
	".venv":           {},
	"node_modules":    {},
	"__pycache__":     {},
	".mypy_cache":     {},
	".pytest_cache":   {},
	".idea":           {},
	".vscode":         {},
}

// pollFilesystem rescans the working tree and records one transition per
// changed path. The first scan seeds the baseline without emitting events.
func (r *Recorder) pollFilesystem(ctx context.Context) {
	ctx = logging.WithSource(ctx, "filesystem")

	current, err := r.scanFiles()
	if err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, "filesystem", store.SourceDegraded, "scan failed: "+err.Error())
		return
	}
	_ = r.store.UpdateSourceStatus(r.sessionID, "filesystem", store.SourceAvailable, "scan ok")

	if r.lastFileSnapshot == nil {
		r.lastFileSnapshot = current
		if err := r.store.InitializeFileState(current); err != nil {
			logging.Warn(ctx, "baseline seed failed", "error", err.Error())
		}
		return
	}

	var added, modified, removed []string
	for path, hash := range current {
		previous, seen := r.lastFileSnapshot[path]
		switch {
		case !seen:
			added = append(added, path)
		case previous != hash:
			modified = append(modified, path)
		}
	}
	for path := range r.lastFileSnapshot {
		if _, ok := current[path]; !ok {
			removed = append(removed, path)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(removed)

	changed := append(append(added, modified...), removed...)
	if len(changed) == 0 {
		r.lastFileSnapshot = current
		return
	}

	for _, path := range changed {
		afterHash, ok := current[path]
		if !ok {
			afterHash = store.DeletedFileHash
		}
		if _, err := r.store.RecordFileTransition(r.sessionID, "filesystem", path, afterHash); err != nil {
			if errors.Is(err, store.ErrStorageCapExceeded) {
				_ = r.store.UpdateSourceStatus(r.sessionID, "filesystem", store.SourceDegraded, "storage cap reached; file event dropped")
				break
			}
			logging.Warn(ctx, "file transition failed", "path", path, "error", err.Error())
		}
	}
	r.lastFileSnapshot = current
}

// scanFiles hashes every regular file under the project root, keyed by
// POSIX-style relative path. Unreadable files are skipped.
func (r *Recorder) scanFiles() (map[string]string, error) {
	snapshot := make(map[string]string)
	err := filepath.WalkDir(r.projectPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil //nolint:nilerr // transient read errors must not abort the scan
		}
		if entry.IsDir() {
			if _, excluded := excludedDirs[entry.Name()]; excluded && path != r.projectPath {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.projectPath, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		hash, err := fileHash(path)
		if err != nil {
			return nil //nolint:nilerr
		}
		snapshot[filepath.ToSlash(rel)] = hash
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// fileHash computes the SHA-256 of a file in 64 KiB chunks.
func fileHash(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // paths come from walking the project tree
	if err != nil {
		return "", err
	}
	defer f.Close()
	digest := sha256.New()
	if _, err := io.CopyBuffer(digest, f, make([]byte, 64*1024)); err != nil {
		return "", err
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// downgradeOnCapError marks the source degraded when the storage cap was hit
// and logs everything else.
func (r *Recorder) downgradeOnCapError(ctx context.Context, sourceName, detail string, err error) {
	if errors.Is(err, store.ErrStorageCapExceeded) {
		_ = r.store.UpdateSourceStatus(r.sessionID, sourceName, store.SourceDegraded, detail)
		return
	}
	logging.Warn(ctx, "event insert failed", "error", err.Error())
}
