// Package importer implements bulk ingestion of an external issue set
// into a repo: collision detection against existing issues, raw
// merge-conflict-marker detection that aborts before any mutation,
// and last-writer-wins per-field merging for issues that collide.
package importer

import (
	"bytes"
	"fmt"
	"time"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/repo"
)

var conflictMarkers = [][]byte{
	[]byte("<<<<<<<"),
	[]byte("======="),
	[]byte(">>>>>>>"),
}

// DetectConflictMarkers scans raw input bytes for unresolved git-style
// merge-conflict markers. Its presence means upstream tooling left a
// half-merged file on disk; importing it would silently corrupt data,
// so callers must abort before parsing.
func DetectConflictMarkers(data []byte) bool {
	for _, marker := range conflictMarkers {
		if bytes.Contains(data, marker) {
			return true
		}
	}
	return false
}

// Options controls import behavior.
type Options struct {
	// DryRun computes the result without mutating the repo.
	DryRun bool
	// SkipUpdate only creates new issues, leaving existing ones alone.
	SkipUpdate bool
	// Force permits an import that would otherwise be rejected for
	// overwriting a non-empty store with an empty input.
	Force bool
}

// Result summarizes what an import did or would do.
type Result struct {
	Created      []string
	Updated      []string
	Unchanged    []string
	CollisionIDs []string
}

// Import ingests incoming into r. Collision detection runs in three
// phases per issue: match by (ExternalRef, SourceSystem), then by
// ContentHash, then by ID; the first match found is treated as the
// same issue and merged, otherwise the issue is created. raw, when
// non-nil, is scanned for conflict markers before anything else runs.
func Import(r *repo.Repo, raw []byte, incoming []*model.Issue, opts Options, now time.Time) (*Result, error) {
	if raw != nil && DetectConflictMarkers(raw) {
		return nil, errs.ErrMergeConflictDetected
	}
	if len(incoming) == 0 && r.Store().Count() > 0 && !opts.Force {
		return nil, errs.ErrWouldOverwriteData
	}

	result := &Result{}
	byExternalRef := indexByExternalRef(r)
	byContentHash := indexByContentHash(r)

	for _, issue := range incoming {
		existing := matchExisting(r, issue, byExternalRef, byContentHash)
		switch {
		case existing == nil:
			if opts.DryRun {
				result.Created = append(result.Created, issue.ID)
				continue
			}
			created, err := r.CreateIssue(issue, now)
			if err != nil {
				return nil, fmt.Errorf("create issue from import: %w", err)
			}
			result.Created = append(result.Created, created.ID)

		case opts.SkipUpdate:
			result.Unchanged = append(result.Unchanged, existing.ID)

		default:
			merged, changed := mergeIssue(existing, issue)
			result.CollisionIDs = append(result.CollisionIDs, existing.ID)
			if !changed {
				result.Unchanged = append(result.Unchanged, existing.ID)
				continue
			}
			if opts.DryRun {
				result.Updated = append(result.Updated, existing.ID)
				continue
			}
			if err := r.UpdateIssue(merged, now); err != nil {
				return nil, fmt.Errorf("update issue %s from import: %w", existing.ID, err)
			}
			result.Updated = append(result.Updated, existing.ID)
		}
	}
	return result, nil
}

func indexByExternalRef(r *repo.Repo) map[string]*model.Issue {
	idx := map[string]*model.Issue{}
	for _, issue := range r.Store().All() {
		if issue.ExternalRef == "" {
			continue
		}
		idx[issue.SourceSystem+"\x00"+issue.ExternalRef] = issue
	}
	return idx
}

func indexByContentHash(r *repo.Repo) map[string]*model.Issue {
	idx := map[string]*model.Issue{}
	for _, issue := range r.Store().All() {
		if issue.ContentHash == "" {
			continue
		}
		idx[issue.ContentHash] = issue
	}
	return idx
}

func matchExisting(r *repo.Repo, incoming *model.Issue, byExternalRef, byContentHash map[string]*model.Issue) *model.Issue {
	if incoming.ExternalRef != "" {
		if m, ok := byExternalRef[incoming.SourceSystem+"\x00"+incoming.ExternalRef]; ok {
			return m
		}
	}
	if incoming.ContentHash != "" {
		if m, ok := byContentHash[incoming.ContentHash]; ok {
			return m
		}
	}
	if incoming.ID != "" {
		if m, err := r.Store().Get(incoming.ID); err == nil {
			return m
		}
	}
	return nil
}

// mergeIssue combines an existing issue with an incoming one, field by
// field, last-writer-wins on the UpdatedAt timestamp for conflicting
// fields. It reports whether the merge produced any change.
func mergeIssue(existing, incoming *model.Issue) (*model.Issue, bool) {
	merged := *existing
	changed := false

	merged.Title, changed = mergeField(existing.Title, incoming.Title, existing.UpdatedAt, incoming.UpdatedAt, changed)
	merged.Description, changed = mergeField(existing.Description, incoming.Description, existing.UpdatedAt, incoming.UpdatedAt, changed)
	merged.Design, changed = mergeField(existing.Design, incoming.Design, existing.UpdatedAt, incoming.UpdatedAt, changed)
	merged.AcceptanceCriteria, changed = mergeField(existing.AcceptanceCriteria, incoming.AcceptanceCriteria, existing.UpdatedAt, incoming.UpdatedAt, changed)
	merged.Notes, changed = mergeField(existing.Notes, incoming.Notes, existing.UpdatedAt, incoming.UpdatedAt, changed)
	merged.Assignee, changed = mergeField(existing.Assignee, incoming.Assignee, existing.UpdatedAt, incoming.UpdatedAt, changed)
	merged.Owner, changed = mergeField(existing.Owner, incoming.Owner, existing.UpdatedAt, incoming.UpdatedAt, changed)

	if incoming.Status != "" && incoming.Status != existing.Status {
		merged.Status = pickLatestStatus(existing, incoming)
		changed = changed || merged.Status != existing.Status
	}
	if incoming.Priority != existing.Priority && incoming.Priority != 0 && incoming.UpdatedAt.After(existing.UpdatedAt) {
		merged.Priority = incoming.Priority
		changed = true
	}
	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.CreatedBy = existing.CreatedBy
	if incoming.UpdatedAt.After(existing.UpdatedAt) {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	return &merged, changed
}

func mergeField(existing, incoming string, existingUpdated, incomingUpdated time.Time, changedSoFar bool) (string, bool) {
	if incoming == "" || incoming == existing {
		return existing, changedSoFar
	}
	if incomingUpdated.After(existingUpdated) {
		return incoming, true
	}
	return existing, changedSoFar
}

func pickLatestStatus(existing, incoming *model.Issue) model.Status {
	if incoming.UpdatedAt.After(existing.UpdatedAt) {
		return incoming.Status
	}
	return existing.Status
}
