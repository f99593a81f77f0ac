// Package graphintel provides read-only analyses over a dependency graph:
// topological phase layering, critical-path computation, and impact
// analysis of a hypothetical issue closure.
package graphintel

import (
	"sort"

	"github.com/beads-core/beads/internal/depgraph"
	"github.com/beads-core/beads/internal/model"
)

// Phases groups ids into topological layers using Kahn's algorithm over
// the {blocks, parent_child} subgraph: layer 0 has no outstanding
// cycle-checked dependency within the given id set, layer 1 depends only
// on layer 0, and so on. Ties within a layer are broken ascending by id.
func Phases(g *depgraph.Graph, ids []string) [][]string {
	inSet := map[string]bool{}
	for _, id := range ids {
		inSet[id] = true
	}

	remaining := map[string]int{}
	dependents := map[string][]string{}
	for _, id := range ids {
		count := 0
		for _, dep := range g.DependenciesOf(id) {
			if !dep.Type.ParticipatesInCycleCheck() || !inSet[dep.To] {
				continue
			}
			count++
			dependents[dep.To] = append(dependents[dep.To], id)
		}
		if parent, ok := depgraph.ParentOf(id); ok && inSet[parent] {
			count++
			dependents[parent] = append(dependents[parent], id)
		}
		remaining[id] = count
	}

	var phases [][]string
	done := map[string]bool{}
	for len(done) < len(ids) {
		var layer []string
		for _, id := range ids {
			if !done[id] && remaining[id] == 0 {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// residual cycle: dump whatever remains as a final layer
			for _, id := range ids {
				if !done[id] {
					layer = append(layer, id)
				}
			}
			sort.Strings(layer)
			phases = append(phases, layer)
			break
		}
		sort.Strings(layer)
		phases = append(phases, layer)
		for _, id := range layer {
			done[id] = true
			for _, next := range dependents[id] {
				remaining[next]--
			}
		}
	}
	return phases
}

// CriticalPath returns the longest chain of cycle-checked dependencies
// among ids, as a sequence from the earliest prerequisite to the final
// issue. Ties are broken by lexicographically smallest id sequence.
func CriticalPath(g *depgraph.Graph, ids []string) []string {
	inSet := map[string]bool{}
	for _, id := range ids {
		inSet[id] = true
	}

	memo := map[string][]string{}
	var longest func(string) []string
	longest = func(id string) []string {
		if path, ok := memo[id]; ok {
			return path
		}
		var best []string
		for _, dep := range g.DependenciesOf(id) {
			if !dep.Type.ParticipatesInCycleCheck() || !inSet[dep.To] {
				continue
			}
			candidate := longest(dep.To)
			if len(candidate) > len(best) || (len(candidate) == len(best) && lexLess(candidate, best)) {
				best = candidate
			}
		}
		path := append(append([]string{}, best...), id)
		memo[id] = path
		return path
	}

	var overall []string
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for _, id := range sorted {
		p := longest(id)
		if len(p) > len(overall) || (len(p) == len(overall) && lexLess(p, overall)) {
			overall = p
		}
	}
	return overall
}

func lexLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Impact returns every id transitively dependent on id (direct and
// indirect), i.e. what would be affected if id were closed or deleted.
func Impact(g *depgraph.Graph, id string) []string {
	visited := map[string]bool{}
	var queue []string
	for _, e := range g.DependentsOf(id) {
		queue = append(queue, e.From)
	}
	var result []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		result = append(result, n)
		for _, e := range g.DependentsOf(n) {
			if !visited[e.From] {
				queue = append(queue, e.From)
			}
		}
	}
	sort.Strings(result)
	return result
}

// BuildTree renders issues into a hierarchical tree rooted at rootID using
// the parent_child edges in g.
func BuildTree(g *depgraph.Graph, rootID string, byID map[string]*model.Issue) *model.TreeNode {
	issue, ok := byID[rootID]
	if !ok {
		return nil
	}
	node := &model.TreeNode{Issue: issue}
	var children []string
	for _, e := range g.DependentsOf(rootID) {
		if e.Type == model.DepParentChild {
			children = append(children, e.From)
		}
	}
	sort.Strings(children)
	for _, c := range children {
		if child := BuildTree(g, c, byID); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}
