// Package dag implements the dependency analyzer (spec C7): building a step
// conflict graph and layering it into parallel-execution levels. Grounded on
// the teacher's agent.DAGExecutor (Kahn's-algorithm topological layering,
// cycle handling) generalized from agent-spawn nodes to intent Steps.
package dag

import (
	"strings"

	"github.com/zenus-ai/zenus/internal/domain/intent"
)

// Graph is the computed DAG over an Intent's steps: edges plus levels.
type Graph struct {
	N              int
	Edges          [][2]int // [from, to]: to depends on from
	Levels         [][]int  // level index -> step indices
	Speedup        float64
	IsParallelizable bool
	CyclicFallback bool
}

// Level returns the 1-based level of step i (spec: level(i) = 1 + max level(j)).
func (g *Graph) Level(i int) int {
	for lvl, members := range g.Levels {
		for _, m := range members {
			if m == i {
				return lvl + 1
			}
		}
	}
	return 0
}

// Analyze computes the conflict edge set and level layering for steps,
// applying the five conflict rules from spec §4.7.
func Analyze(steps []intent.Step) *Graph {
	n := len(steps)
	g := &Graph{N: n}
	if n == 0 {
		return g
	}

	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}

	for j := 0; j < n; j++ {
		for i := j + 1; i < n; i++ {
			if conflicts(steps[j], steps[i]) {
				adj[j][i] = true
				g.Edges = append(g.Edges, [2]int{j, i})
			}
		}
	}

	levels, cyclic := layer(n, adj)
	g.Levels = levels
	g.CyclicFallback = cyclic

	numLevels := len(levels)
	if numLevels == 0 {
		numLevels = 1
	}
	g.Speedup = float64(n) / float64(numLevels)

	maxLevelSize := 0
	for _, lvl := range levels {
		if len(lvl) > maxLevelSize {
			maxLevelSize = len(lvl)
		}
	}
	g.IsParallelizable = maxLevelSize >= 2 && g.Speedup >= 1.3

	return g
}

// conflicts implements spec §4.7 rules 1-5: a later step depends on an
// earlier one iff any rule fires.
func conflicts(earlier, later intent.Step) bool {
	// Rule 1: same tool, same resource (path/package/url) -> any ordering.
	if earlier.Tool == later.Tool && sameResource(earlier, later) {
		return true
	}

	// Rule 2: later reads what earlier wrote.
	if writes(earlier) {
		earlierPath := writtenPath(earlier)
		laterPath := readPath(later)
		if earlierPath != "" && earlierPath == laterPath {
			return true
		}
	}

	// Rule 3: PackageOps<->PackageOps, GitOps<->GitOps strictly sequential.
	if (earlier.Tool == "PackageOps" && later.Tool == "PackageOps") ||
		(earlier.Tool == "GitOps" && later.Tool == "GitOps") {
		return true
	}

	// Rule 4: ServiceOps on the same service -> sequential.
	if earlier.Tool == "ServiceOps" && later.Tool == "ServiceOps" {
		if argEq(earlier, later, "service") {
			return true
		}
	}

	// Rule 5: nested paths (prefix relation) in FileOps also conflict.
	if earlier.Tool == "FileOps" && later.Tool == "FileOps" {
		if pathsNested(earlier, later) {
			return true
		}
	}

	return false
}

func sameResource(a, b intent.Step) bool {
	for _, key := range []string{"path", "source", "destination", "dest", "package", "url"} {
		av, aok := a.Args[key]
		bv, bok := b.Args[key]
		if aok && bok && av == bv {
			return true
		}
	}
	return false
}

func argEq(a, b intent.Step, key string) bool {
	av, aok := a.Args[key]
	bv, bok := b.Args[key]
	return aok && bok && av == bv
}

func writes(s intent.Step) bool {
	switch s.Action {
	case "create_file", "write_file", "copy_file", "move_file", "mkdir":
		return true
	}
	return false
}

func writtenPath(s intent.Step) string {
	for _, key := range []string{"destination", "dest", "path"} {
		if v, ok := s.Args[key]; ok {
			if str, ok := v.(string); ok {
				return str
			}
		}
	}
	return ""
}

func readPath(s intent.Step) string {
	for _, key := range []string{"path", "source"} {
		if v, ok := s.Args[key]; ok {
			if str, ok := v.(string); ok {
				return str
			}
		}
	}
	return ""
}

func pathsNested(a, b intent.Step) bool {
	pa, pb := writtenPath(a), writtenPath(b)
	if pa == "" {
		pa = readPath(a)
	}
	if pb == "" {
		pb = readPath(b)
	}
	if pa == "" || pb == "" || pa == pb {
		return false
	}
	return strings.HasPrefix(pb, pa+"/") || strings.HasPrefix(pa, pb+"/")
}

// layer computes parallel levels by Kahn's algorithm on in-degree. On cycle
// detection it falls back to one-step-per-level sequential layering over the
// remaining (unresolved) nodes, per spec §4.7.
func layer(n int, adj [][]bool) (levels [][]int, cyclicFallback bool) {
	indeg := make([]int, n)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			if adj[j][i] {
				indeg[i]++
			}
		}
	}

	resolved := make([]bool, n)
	remaining := n

	for remaining > 0 {
		var ready []int
		for i := 0; i < n; i++ {
			if !resolved[i] && indeg[i] == 0 {
				ready = append(ready, i)
			}
		}
		if len(ready) == 0 {
			// Cycle: fall back to strictly sequential layering over what's left.
			cyclicFallback = true
			for i := 0; i < n; i++ {
				if !resolved[i] {
					levels = append(levels, []int{i})
					resolved[i] = true
					remaining--
				}
			}
			break
		}
		levels = append(levels, ready)
		for _, i := range ready {
			resolved[i] = true
			remaining--
		}
		for _, j := range ready {
			for i := 0; i < n; i++ {
				if adj[j][i] && !resolved[i] {
					indeg[i]--
				}
			}
		}
	}
	return levels, cyclicFallback
}
