// Package store holds the in-memory collection of issues: an id-indexed
// map, dirty tracking for incremental persistence, and filtering.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/model"
	"github.com/beads-core/beads/internal/query"
)

// Store is an in-memory, mutex-protected collection of issues.
type Store struct {
	mu     sync.RWMutex
	issues map[string]*model.Issue
	dirty  map[string]bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{issues: map[string]*model.Issue{}, dirty: map[string]bool{}}
}

// LoadAll replaces the store's contents with issues, clearing dirty state
// (used right after loading a freshly-read snapshot).
func (s *Store) LoadAll(issues []*model.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = make(map[string]*model.Issue, len(issues))
	s.dirty = map[string]bool{}
	for _, i := range issues {
		s.issues[i.ID] = i
	}
}

// Get returns the issue with id, or ErrNotFound (with a suggestion picked
// from existing ids) if it does not exist.
func (s *Store) Get(id string) (*model.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.issues[id]; ok {
		return i, nil
	}
	return nil, errs.NotFound(id, s.idsLocked())
}

// Put inserts or replaces an issue and marks it dirty.
func (s *Store) Put(issue *model.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.ID] = issue
	s.dirty[issue.ID] = true
}

// Delete removes an issue entirely (used for hard deletes; soft deletes
// go through Put with a tombstoned status).
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issues, id)
	s.dirty[id] = true
}

// normalizeLabel trims surrounding whitespace and applies NFC normalization
// so visually-identical labels entered with different Unicode
// decompositions compare equal.
func normalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// AddLabel attaches label to the issue with id, normalizing it to NFC and
// trimming surrounding whitespace. Idempotent: adding a label already
// present is a no-op that still reports ok.
func (s *Store) AddLabel(id, label string) error {
	label = normalizeLabel(label)
	if label == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return errs.NotFound(id, s.idsLocked())
	}
	for _, l := range issue.Labels {
		if l == label {
			return nil
		}
	}
	issue.Labels = append(issue.Labels, label)
	s.dirty[id] = true
	return nil
}

// RemoveLabel detaches label from the issue with id. Idempotent: removing
// a label that is not present is a no-op.
func (s *Store) RemoveLabel(id, label string) error {
	label = normalizeLabel(label)
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[id]
	if !ok {
		return errs.NotFound(id, s.idsLocked())
	}
	kept := issue.Labels[:0:0]
	for _, l := range issue.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	issue.Labels = kept
	s.dirty[id] = true
	return nil
}

// Exists reports whether id is present.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.issues[id]
	return ok
}

// Count returns the number of issues currently held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.issues)
}

// IDs returns all ids in the store, sorted ascending.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idsLocked()
}

func (s *Store) idsLocked() []string {
	ids := make([]string, 0, len(s.issues))
	for id := range s.issues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every issue, sorted by id ascending.
func (s *Store) All() []*model.Issue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Issue, 0, len(s.issues))
	for _, id := range s.idsLocked() {
		out = append(out, s.issues[id])
	}
	return out
}

// List returns non-tombstoned issues matching filter (all of them when
// filter is nil), sorted by id ascending.
func (s *Store) List(filter *model.IssueFilter) []*model.Issue {
	all := s.All()
	out := make([]*model.Issue, 0, len(all))
	for _, i := range all {
		if i.IsTombstone() {
			continue
		}
		if filter == nil || filter.Match(i) {
			out = append(out, i)
		}
	}
	return out
}

// ListQuery filters non-tombstoned issues using a free-text
// query-language expression, supplementing the structured IssueFilter.
func (s *Store) ListQuery(expr string) ([]*model.Issue, error) {
	pred, err := query.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile query %q: %w", expr, err)
	}
	all := s.All()
	out := make([]*model.Issue, 0, len(all))
	for _, i := range all {
		if !i.IsTombstone() && pred(i) {
			out = append(out, i)
		}
	}
	return out, nil
}

// DirtyIDs returns the ids mutated since the last LoadAll or ClearDirty.
func (s *Store) DirtyIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearDirty resets dirty tracking, called after a successful compaction
// folds every pending change into the snapshot.
func (s *Store) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = map[string]bool{}
}
