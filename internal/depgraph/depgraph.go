// Package depgraph maintains the directed, typed dependency graph between
// issues: cycle detection over the acyclic subgraph, ready/blocked set
// computation, and direct traversal helpers.
package depgraph

import (
	"fmt"
	"sort"
	"time"

	"github.com/beads-core/beads/internal/errs"
	"github.com/beads-core/beads/internal/model"
)

const maxHierarchyDepth = 3

// Graph holds the full set of dependency edges between issue ids.
type Graph struct {
	// out[from] -> edges leaving from
	out map[string][]model.Dependency
	// in[to] -> edges arriving at to
	in map[string][]model.Dependency
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{out: map[string][]model.Dependency{}, in: map[string][]model.Dependency{}}
}

// Load rebuilds a Graph from a flat edge list, as read from the snapshot.
func Load(edges []model.Dependency) *Graph {
	g := New()
	for _, e := range edges {
		g.index(e)
	}
	return g
}

func (g *Graph) index(e model.Dependency) {
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

// AddDependency adds an edge from -> to of the given type, after checking
// for self-dependency and (for cycle-checked types) cycles. It also
// enforces the implicit child->parent edge for hierarchical ids.
func (g *Graph) AddDependency(from, to string, typ model.DependencyType) error {
	if from == to {
		return fmt.Errorf("%s -> %s: %w", from, to, errs.ErrSelfDependency)
	}
	if typ.ParticipatesInCycleCheck() {
		if g.WouldCreateCycle(from, to, typ) {
			return fmt.Errorf("%s -> %s (%s): %w", from, to, typ, errs.ErrCycleDetected)
		}
	}
	g.index(model.Dependency{From: from, To: to, Type: typ})
	return nil
}

// RemoveDependency removes edges between from and to. If typ is non-empty
// only edges of that type are removed; otherwise all edges between the
// pair are removed, regardless of type.
func (g *Graph) RemoveDependency(from, to string, typ model.DependencyType) {
	g.out[from] = filterEdges(g.out[from], from, to, typ)
	g.in[to] = filterEdges(g.in[to], from, to, typ)
}

func filterEdges(edges []model.Dependency, from, to string, typ model.DependencyType) []model.Dependency {
	kept := edges[:0:0]
	for _, e := range edges {
		if e.From == from && e.To == to && (typ == "" || e.Type == typ) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

// DependenciesOf returns the edges leaving id (things id depends on).
func (g *Graph) DependenciesOf(id string) []model.Dependency {
	return append([]model.Dependency(nil), g.out[id]...)
}

// DependentsOf returns the edges arriving at id (things that depend on id).
func (g *Graph) DependentsOf(id string) []model.Dependency {
	return append([]model.Dependency(nil), g.in[id]...)
}

// cycleNeighbors returns the targets of id's outgoing {blocks,
// parent_child} edges, plus the implicit child->parent edge when id is a
// hierarchical child id.
func (g *Graph) cycleNeighbors(id string) []string {
	var out []string
	for _, e := range g.out[id] {
		if e.Type.ParticipatesInCycleCheck() {
			out = append(out, e.To)
		}
	}
	if parent, ok := ParentOf(id); ok {
		out = append(out, parent)
	}
	return out
}

// WouldCreateCycle reports whether adding from->to of typ would create a
// cycle in the {blocks, parent_child} subgraph (plus implicit hierarchy
// edges). Only relevant for cycle-checked types; callers should skip the
// check for edge types that don't participate.
func (g *Graph) WouldCreateCycle(from, to string, typ model.DependencyType) bool {
	if !typ.ParticipatesInCycleCheck() {
		return false
	}
	// Would to ... -> from exist after adding from->to? I.e. is from
	// reachable from to in the cycle subgraph already?
	visited := map[string]bool{}
	var dfs func(string) bool
	dfs = func(n string) bool {
		if n == from {
			return true
		}
		if visited[n] {
			return false
		}
		visited[n] = true
		for _, next := range g.cycleNeighbors(n) {
			if dfs(next) {
				return true
			}
		}
		return false
	}
	return dfs(to)
}

// DetectCycles returns the node ids participating in any cycle within the
// {blocks, parent_child} subgraph, or nil if the subgraph is acyclic.
func (g *Graph) DetectCycles() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[string]int{}
	var cyclic []string
	var onStack []string

	var dfs func(string)
	dfs = func(n string) {
		color[n] = gray
		onStack = append(onStack, n)
		for _, next := range g.cycleNeighbors(n) {
			switch color[next] {
			case white:
				dfs(next)
			case gray:
				idx := indexOf(onStack, next)
				cyclic = append(cyclic, onStack[idx:]...)
			}
		}
		onStack = onStack[:len(onStack)-1]
		color[n] = black
	}

	nodes := g.allNodes()
	for _, n := range nodes {
		if color[n] == white {
			dfs(n)
		}
	}
	return dedupe(cyclic)
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func dedupe(s []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, x := range s {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

func (g *Graph) allNodes() []string {
	seen := map[string]bool{}
	for n := range g.out {
		seen[n] = true
	}
	for n := range g.in {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// OutstandingBlockers returns the ids id depends on via an outstanding
// (still-pending) edge type among the given open/unresolved issue ids.
func (g *Graph) OutstandingBlockers(id string, isResolved func(string) bool) []string {
	var blockers []string
	for _, e := range g.out[id] {
		if !e.Type.Outstanding() {
			continue
		}
		if isResolved != nil && isResolved(e.To) {
			continue
		}
		blockers = append(blockers, e.To)
	}
	return blockers
}

// isReadyCandidate reports whether i is in the open/non-deferred state
// required by both ready_issues and blocked_issues: status open or
// in_progress, not tombstoned, and defer_until either unset or not after
// now.
func isReadyCandidate(i *model.Issue, now time.Time) bool {
	if i.IsTombstone() {
		return false
	}
	if i.Status != model.StatusOpen && i.Status != model.StatusInProgress {
		return false
	}
	if i.DeferUntil != nil && i.DeferUntil.After(now) {
		return false
	}
	return true
}

// isResolvedStatus reports whether status terminates an outstanding edge
// targeting it: closed or tombstoned.
func isResolvedStatus(s model.Status) bool {
	return s == model.StatusClosed || s == model.StatusTombstoned
}

func indexIssues(issues []*model.Issue) map[string]*model.Issue {
	byID := make(map[string]*model.Issue, len(issues))
	for _, i := range issues {
		byID[i.ID] = i
	}
	return byID
}

// outstandingBlockers returns id's outstanding dependency targets, given a
// full issue index used to resolve each target's status. A target missing
// from the index is treated as unresolved, same as a Store lookup miss.
func (g *Graph) outstandingBlockers(id string, byID map[string]*model.Issue) []string {
	return g.OutstandingBlockers(id, func(target string) bool {
		issue, ok := byID[target]
		return ok && isResolvedStatus(issue.Status)
	})
}

// transitiveDependentCount returns the number of distinct issues reachable
// by following dependents (edges arriving at id, then at each further
// dependent) — the same reachable set graphintel.Impact computes, inlined
// here to avoid an import cycle (graphintel already imports depgraph).
func (g *Graph) transitiveDependentCount(id string) int {
	visited := map[string]bool{}
	queue := []string{id}
	count := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range g.in[n] {
			if !visited[e.From] {
				visited[e.From] = true
				count++
				queue = append(queue, e.From)
			}
		}
	}
	return count
}

// sortByReadinessOrder orders issues by priority ascending, then transitive
// dependent count descending, then created_at ascending, per the
// ready_issues/blocked_issues ordering contract.
func (g *Graph) sortByReadinessOrder(issues []*model.Issue) {
	counts := make(map[string]int, len(issues))
	for _, i := range issues {
		counts[i.ID] = g.transitiveDependentCount(i.ID)
	}
	sort.SliceStable(issues, func(a, b int) bool {
		x, y := issues[a], issues[b]
		if x.Priority != y.Priority {
			return x.Priority < y.Priority
		}
		if counts[x.ID] != counts[y.ID] {
			return counts[x.ID] > counts[y.ID]
		}
		return x.CreatedAt.Before(y.CreatedAt)
	})
}

// ReadyIssues returns the members of issues that are open or in_progress,
// not tombstoned, not currently deferred, and hold no outstanding blocking
// dependency, ordered per sortByReadinessOrder.
func (g *Graph) ReadyIssues(issues []*model.Issue, now time.Time) []*model.Issue {
	byID := indexIssues(issues)
	var ready []*model.Issue
	for _, i := range issues {
		if !isReadyCandidate(i, now) {
			continue
		}
		if len(g.outstandingBlockers(i.ID, byID)) == 0 {
			ready = append(ready, i)
		}
	}
	g.sortByReadinessOrder(ready)
	return ready
}

// BlockedIssues returns the members of issues that are open or in_progress,
// not tombstoned, not currently deferred, and hold at least one outstanding
// blocking dependency, ordered per sortByReadinessOrder.
func (g *Graph) BlockedIssues(issues []*model.Issue, now time.Time) []*model.Issue {
	byID := indexIssues(issues)
	var blocked []*model.Issue
	for _, i := range issues {
		if !isReadyCandidate(i, now) {
			continue
		}
		if len(g.outstandingBlockers(i.ID, byID)) > 0 {
			blocked = append(blocked, i)
		}
	}
	g.sortByReadinessOrder(blocked)
	return blocked
}

// ParentOf parses a hierarchical child id (e.g. "bd-abc.1.2") and returns
// its immediate parent id ("bd-abc.1"), or ok=false if id has no parent
// segment.
func ParentOf(id string) (string, bool) {
	idx := lastDot(id)
	if idx < 0 {
		return "", false
	}
	return id[:idx], true
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// Depth returns the hierarchy depth of id: 0 for a root id, 1 for
// "bd-abc.1", 2 for "bd-abc.1.2", and so on.
func Depth(id string) int {
	depth := 0
	for _, c := range id {
		if c == '.' {
			depth++
		}
	}
	return depth
}

// ValidateDepth returns ErrMaxHierarchyDepthExceeded if id's hierarchy
// depth exceeds the maximum of 3.
func ValidateDepth(id string) error {
	if Depth(id) > maxHierarchyDepth {
		return fmt.Errorf("id %s: %w", id, errs.ErrMaxHierarchyDepthExceeded)
	}
	return nil
}
