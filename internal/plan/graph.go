// internal/plan/graph.go
package plan

import "sort"

// Graph holds forward and reverse adjacency over a plan's steps, keyed by
// step number.
type Graph struct {
	steps      []Step
	dependents map[int][]int
	depends    map[int][]int
}

// NewGraph builds the dependency graph for a plan's steps. Dependencies on
// step numbers outside the plan are ignored here; Plan.Validate reports them.
func NewGraph(steps []Step) *Graph {
	g := &Graph{
		steps:      steps,
		dependents: make(map[int][]int, len(steps)),
		depends:    make(map[int][]int, len(steps)),
	}

	known := make(map[int]bool, len(steps))
	for _, step := range steps {
		known[step.StepNumber] = true
	}
	for _, step := range steps {
		n := step.StepNumber
		if _, ok := g.dependents[n]; !ok {
			g.dependents[n] = nil
		}
		for _, dep := range step.Dependencies {
			if !known[dep] || dep == n {
				continue
			}
			g.dependents[dep] = append(g.dependents[dep], n)
			g.depends[n] = append(g.depends[n], dep)
		}
	}
	return g
}

// ExecutionOrder returns the steps as dependency batches: every step in a
// batch has all its dependencies satisfied by earlier batches, so a batch may
// run concurrently. When a circular remainder blocks progress, the remaining
// steps come back as singleton batches so the caller can still execute
// sequentially. HasCycle distinguishes the degraded result.
func (g *Graph) ExecutionOrder() [][]int {
	inDegree := make(map[int]int, len(g.steps))
	for _, step := range g.steps {
		inDegree[step.StepNumber] = len(g.depends[step.StepNumber])
	}

	var batches [][]int
	for len(inDegree) > 0 {
		var batch []int
		for n, degree := range inDegree {
			if degree == 0 {
				batch = append(batch, n)
			}
		}

		if len(batch) == 0 {
			// Circular remainder: degrade to singleton batches.
			var remaining []int
			for n := range inDegree {
				remaining = append(remaining, n)
			}
			sort.Ints(remaining)
			for _, n := range remaining {
				batches = append(batches, []int{n})
			}
			return batches
		}

		sort.Ints(batch)
		batches = append(batches, batch)

		for _, n := range batch {
			delete(inDegree, n)
			for _, dependent := range g.dependents[n] {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}
	}
	return batches
}

// HasCycle reports whether some subset of steps can never reach in-degree
// zero.
func (g *Graph) HasCycle() bool {
	inDegree := make(map[int]int, len(g.steps))
	for _, step := range g.steps {
		inDegree[step.StepNumber] = len(g.depends[step.StepNumber])
	}

	for len(inDegree) > 0 {
		progressed := false
		for n, degree := range inDegree {
			if degree != 0 {
				continue
			}
			progressed = true
			delete(inDegree, n)
			for _, dependent := range g.dependents[n] {
				if _, ok := inDegree[dependent]; ok {
					inDegree[dependent]--
				}
			}
		}
		if !progressed {
			return true
		}
	}
	return false
}

// CriticalPath returns the longest dependency chain ending at a step with no
// dependents. Valid dependencies always point at smaller step numbers, so
// one ascending pass computes longest-path-to without recursion.
func (g *Graph) CriticalPath() []int {
	if len(g.steps) == 0 {
		return nil
	}

	order := make([]int, 0, len(g.steps))
	for _, step := range g.steps {
		order = append(order, step.StepNumber)
	}
	sort.Ints(order)

	longestTo := make(map[int][]int, len(order))
	for _, n := range order {
		best := []int{n}
		for _, dep := range g.depends[n] {
			if dep >= n {
				continue
			}
			if path, ok := longestTo[dep]; ok && len(path)+1 > len(best) {
				best = append(append([]int{}, path...), n)
			}
		}
		longestTo[n] = best
	}

	var critical []int
	for _, n := range order {
		if len(g.dependents[n]) > 0 {
			continue
		}
		if len(longestTo[n]) > len(critical) {
			critical = longestTo[n]
		}
	}
	return critical
}
