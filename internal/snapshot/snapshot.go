// Package snapshot implements the line-delimited JSON snapshot codec: one
// Issue per line, ordered by id ascending, replaced atomically via a
// temp-file-then-rename dance so readers never observe a partial file.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/model"
)

// maxLineSize bounds a single snapshot line, guarding against unbounded
// memory growth on a corrupt or hostile input file.
const maxLineSize = 64 * 1024 * 1024

// Read loads all issues from the snapshot at path. A missing file is not
// an error: it is treated as an empty snapshot.
func Read(path string) ([]*model.Issue, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()
	return decode(f)
}

// ReadBytes parses snapshot data already held in memory.
func ReadBytes(data []byte) ([]*model.Issue, error) {
	return decode(bytes.NewReader(data))
}

func decode(r interface{ Read([]byte) (int, error) }) ([]*model.Issue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var issues []*model.Issue
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var issue model.Issue
		if err := json.Unmarshal(raw, &issue); err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w: %v", line, errs.ErrCorruptSnapshot, err)
		}
		issues = append(issues, &issue)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w: %v", errs.ErrCorruptSnapshot, err)
	}
	return issues, nil
}

// Write atomically replaces the snapshot at path with issues, sorted by id
// ascending. The write goes through a temp file in the same directory,
// fsynced, renamed over the target, then the parent directory is fsynced
// so the rename itself is durable.
func Write(path string, issues []*model.Issue) error {
	sorted := make([]*model.Issue, len(issues))
	copy(sorted, issues)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%d.%d", time.Now().UnixMilli(), os.Getpid()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w: %v", errs.ErrWriteError, err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, issue := range sorted {
		if err := enc.Encode(issue); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode issue %s: %w: %v", issue.ID, errs.ErrWriteError, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush snapshot temp file: %w: %v", errs.ErrWriteError, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsync snapshot temp file: %w: %v", errs.ErrWriteError, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot temp file: %w: %v", errs.ErrWriteError, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot into place: %w: %v", errs.ErrAtomicRenameFailed, err)
	}

	if dirF, err := os.Open(dir); err == nil {
		_ = dirF.Sync()
		_ = dirF.Close()
	}

	return nil
}

// ValidationReport describes integrity problems found in a candidate issue
// set, without modifying it.
type ValidationReport struct {
	DuplicateIDs    []string
	BrokenReferences []string
	InvalidIssues   map[string]error
}

func (r *ValidationReport) Clean() bool {
	return len(r.DuplicateIDs) == 0 && len(r.BrokenReferences) == 0 && len(r.InvalidIssues) == 0
}

// Validate scans issues for duplicate ids and invariant violations. It does
// not know about dependency edges, so broken-reference detection is the
// caller's responsibility when it has the dependency set in hand.
func Validate(issues []*model.Issue) *ValidationReport {
	report := &ValidationReport{InvalidIssues: map[string]error{}}
	seen := map[string]bool{}
	for _, issue := range issues {
		if seen[issue.ID] {
			report.DuplicateIDs = append(report.DuplicateIDs, issue.ID)
		}
		seen[issue.ID] = true
		if err := issue.Validate(); err != nil {
			report.InvalidIssues[issue.ID] = err
		}
	}
	return report
}

// CleanOptions controls the behavior of Clean.
type CleanOptions struct {
	// KnownDependencyTargets is accepted but not read: Clean performs no
	// dependency-reference checks and reports no outside references.
	KnownDependencyTargets map[string]bool
}

// CleanReport summarizes what Clean removed.
type CleanReport struct {
	DuplicatesRemoved int
	Rejected          []RejectedIssue
}

// RejectedIssue records why an issue was dropped during cleaning.
type RejectedIssue struct {
	Issue  *model.Issue
	Reason string
}

// Clean deduplicates issues by id (keeping the one with the latest
// UpdatedAt) and returns both a report and the cleaned slice, in input
// order minus removals.
func Clean(issues []*model.Issue, opts CleanOptions) (*CleanReport, []*model.Issue) {
	report := &CleanReport{}
	latest := map[string]*model.Issue{}
	order := []string{}

	for _, issue := range issues {
		existing, ok := latest[issue.ID]
		if !ok {
			latest[issue.ID] = issue
			order = append(order, issue.ID)
			continue
		}
		report.DuplicatesRemoved++
		if issue.UpdatedAt.After(existing.UpdatedAt) {
			report.Rejected = append(report.Rejected, RejectedIssue{Issue: existing, Reason: "superseded by newer duplicate"})
			latest[issue.ID] = issue
		} else {
			report.Rejected = append(report.Rejected, RejectedIssue{Issue: issue, Reason: "older duplicate"})
		}
	}

	cleaned := make([]*model.Issue, 0, len(order))
	for _, id := range order {
		cleaned = append(cleaned, latest[id])
	}
	return report, cleaned
}

// SaveRejectionManifest writes the rejected issues from a CleanReport to a
// JSONL manifest file for later inspection, alongside the snapshot.
func SaveRejectionManifest(path string, report *CleanReport) error {
	if len(report.Rejected) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create rejection manifest: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range report.Rejected {
		entry := map[string]any{"issue": r.Issue, "reason": r.Reason}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("write rejection manifest entry: %w", err)
		}
	}
	return nil
}
