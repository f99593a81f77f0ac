// Package beads provides a minimal public API for embedding the issue
// tracker in other Go programs: open a data directory, create and
// query issues, wire dependencies, and compact the write-ahead log.
package beads

import (
	"time"

	"github.com/beads-core/beads/internal/compact"
	"github.com/beads-core/beads/internal/depgraph"
	"github.com/beads-core/beads/internal/graphintel"
	"github.com/beads-core/beads/internal/importer"
	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/repo"
)

// Core types for working with issues.
type (
	Issue          = model.Issue
	Status         = model.Status
	IssueType      = model.IssueType
	DependencyType = model.DependencyType
	Dependency     = model.Dependency
	Comment        = model.Comment
	Event          = model.Event
	IssueFilter    = model.IssueFilter
)

// Status constants.
const (
	StatusOpen       = model.StatusOpen
	StatusInProgress = model.StatusInProgress
	StatusBlocked    = model.StatusBlocked
	StatusClosed     = model.StatusClosed
)

// IssueType constants.
const (
	TypeBug     = model.TypeBug
	TypeFeature = model.TypeFeature
	TypeTask    = model.TypeTask
	TypeEpic    = model.TypeEpic
	TypeChore   = model.TypeChore
)

// Dependency type constants.
const (
	DepBlocks      = model.DepBlocks
	DepParentChild = model.DepParentChild
	DepWaitsFor    = model.DepWaitsFor
	DepRelatesTo   = model.DepRelatesTo
)

// Repo is the loaded state of one data directory.
type Repo = repo.Repo

// Open loads the data directory at dir, replaying its write-ahead log
// on top of the last snapshot.
func Open(dir string) (*Repo, error) {
	return repo.Open(dir)
}

// FindDataDir locates a data directory starting from the current
// working directory, honoring the BEADS_DIR environment variable.
func FindDataDir() string {
	return repo.FindDataDir()
}

// Compact folds r's write-ahead log into its snapshot and rotates the
// generation counter.
func Compact(r *Repo, now time.Time) (*compact.Result, error) {
	return compact.Compact(r, compact.Options{}, now)
}

// Ready returns the ids of every open/in_progress, non-deferred issue in
// r's store with no outstanding blocking dependency, ordered by priority
// ascending, then transitive dependent count descending, then created_at
// ascending.
func Ready(r *Repo, now time.Time) []string {
	return issueIDs(r.Graph().ReadyIssues(r.Store().All(), now))
}

// BlockedIssues returns the ids of every open/in_progress, non-deferred
// issue in r's store that holds at least one outstanding blocking
// dependency, in the same order as Ready.
func BlockedIssues(r *Repo, now time.Time) []string {
	return issueIDs(r.Graph().BlockedIssues(r.Store().All(), now))
}

func issueIDs(issues []*model.Issue) []string {
	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	return ids
}

// CriticalPath returns the longest dependency chain among ids.
func CriticalPath(r *Repo, ids []string) []string {
	return graphintel.CriticalPath(r.Graph(), ids)
}

// Phases groups ids into topologically-ordered layers.
func Phases(r *Repo, ids []string) [][]string {
	return graphintel.Phases(r.Graph(), ids)
}

// Impact returns every issue transitively dependent on id.
func Impact(r *Repo, id string) []string {
	return graphintel.Impact(r.Graph(), id)
}

// Graph exposes the dependency graph type for callers building their
// own traversal.
type Graph = depgraph.Graph

// Import ingests incoming issues into r.
func Import(r *Repo, raw []byte, incoming []*Issue, opts importer.Options, now time.Time) (*importer.Result, error) {
	return importer.Import(r, raw, incoming, opts, now)
}
