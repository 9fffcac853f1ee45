package recorder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// gitSnapshot pairs the HEAD hash with the normalized dirty-status text. A
// change in either is a change worth recording.
type gitSnapshot struct {
	head   string
	status string
}

// pollGit reads the repository head and worktree status and emits one event
// when the snapshot moved: a code_change naming the dirty files, or a revert
// when a previously dirty tree became clean again.
func (r *Recorder) pollGit(ctx context.Context) {
	ctx = logging.WithSource(ctx, "git")

	repo, err := git.PlainOpen(r.projectPath)
	if err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, "git", store.SourceUnavailable, "project is not a git repository")
		return
	}

	worktree, err := repo.Worktree()
	if err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, "git", store.SourceDegraded, "git worktree unavailable")
		return
	}
	status, err := worktree.Status()
	if err != nil {
		_ = r.store.UpdateSourceStatus(r.sessionID, "git", store.SourceDegraded, "git status failed")
		return
	}

	head := "NO_HEAD"
	if ref, err := repo.Head(); err == nil {
		head = ref.Hash().String()
	}

	files := dirtyFiles(status)
	snapshot := gitSnapshot{head: head, status: statusText(status, files)}

	headPreview := head
	if len(headPreview) > 12 {
		headPreview = headPreview[:12]
	}
	_ = r.store.UpdateSourceStatus(r.sessionID, "git", store.SourceAvailable, "head="+headPreview)

	if r.lastGitSnapshot == nil {
		r.lastGitSnapshot = &snapshot
		return
	}
	if snapshot == *r.lastGitSnapshot {
		return
	}
	previousStatus := r.lastGitSnapshot.status

	if len(files) > 0 {
		preview := strings.Join(files[:min(5, len(files))], ", ")
		suffix := ""
		if len(files) > 5 {
			suffix = "..."
		}
		summary := fmt.Sprintf("Git change detected in %d file(s): %s%s.", len(files), preview, suffix)
		_, err := r.store.InsertEvent(store.EventInput{
			SessionID:    r.sessionID,
			Type:         store.EventCodeChange,
			Summary:      summary,
			FilesTouched: files,
			Source:       "git",
			IsEffective:  true,
		})
		if err != nil {
			r.downgradeOnCapError(ctx, "git", "storage cap reached; git event dropped", err)
		}
	} else if previousStatus != "" {
		_, err := r.store.InsertEvent(store.EventInput{
			SessionID:   r.sessionID,
			Type:        store.EventRevert,
			Summary:     "Git working tree reverted to clean state.",
			Source:      "git",
			IsEffective: true,
		})
		if err != nil {
			r.downgradeOnCapError(ctx, "git", "storage cap reached; git revert event dropped", err)
		}
	}
	r.lastGitSnapshot = &snapshot
}

// dirtyFiles lists paths with any staged or worktree modification, sorted.
func dirtyFiles(status git.Status) []string {
	var files []string
	for path, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

// statusText renders a porcelain-like normalized form for snapshot
// comparison.
func statusText(status git.Status, files []string) string {
	var b strings.Builder
	for _, path := range files {
		st := status[path]
		b.WriteByte(byte(st.Staging))
		b.WriteByte(byte(st.Worktree))
		b.WriteByte(' ')
		b.WriteString(path)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
