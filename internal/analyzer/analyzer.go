package analyzer

import (
	"fmt"
	"sort"
	"strings"
)

// Region is a byte range a declaration occupies when its offset is a literal.
type Region struct {
	Start int64
	Size  int
}

// End returns the first byte past the region.
func (r Region) End() int64 {
	return r.Start + int64(r.Size)
}

// Decl is one schema declaration as the analyzer sees it.
type Decl struct {
	Name     string
	Deps     []int    // Indexes of referenced declarations in the same schema
	Foreign  []string // Referenced elements that belong to no declaration here
	Read     bool     // Materialized with a read step
	Write    bool     // Materialized with a write step
	CanWrite bool     // The expression supports assignment
	Region   *Region  // Known byte range, nil if computed
}

// Materialized reports whether the declaration gets instance storage.
func (d Decl) Materialized() bool {
	return d.Read || d.Write
}

// AnalyzedLayout is the forward order of a schema's declarations
type AnalyzedLayout struct {
	TypeName string
	Order    []int    // Every declaration, dependencies first
	Errors   []string // Fatal problems
	Warnings []string // Suspicious but legal, e.g. overlapping fields
}

// Analyze performs layout analysis on a schema's declarations
func Analyze(name string, decls []Decl) (*AnalyzedLayout, error) {
	a := &AnalyzedLayout{TypeName: name}

	// Phase 1: References must stay inside the schema
	for i, d := range decls {
		for _, f := range d.Foreign {
			a.Errors = append(a.Errors, fmt.Sprintf("%s: references %s, which is not declared in %s", d.Name, f, name))
		}
		for _, dep := range d.Deps {
			if dep < 0 || dep >= len(decls) {
				a.Errors = append(a.Errors, fmt.Sprintf("%s: dependency index %d out of range", d.Name, dep))
			} else if dep == i {
				a.Errors = append(a.Errors, fmt.Sprintf("%s: references itself", d.Name))
			}
		}
	}
	if len(a.Errors) > 0 {
		return a, fmt.Errorf("layout has %d errors", len(a.Errors))
	}

	// Phase 2: Dependencies before dependents
	order, cycle := Order(len(decls), func(i int) []int { return decls[i].Deps })
	if cycle != nil {
		names := make([]string, len(cycle))
		for i, idx := range cycle {
			names[i] = decls[idx].Name
		}
		a.Errors = append(a.Errors, fmt.Sprintf("dependency cycle: %s", strings.Join(names, " -> ")))
		return a, fmt.Errorf("layout has %d errors", len(a.Errors))
	}
	a.Order = order

	// Phase 3: Requested capabilities must be supported
	for _, d := range decls {
		if d.Write && !d.CanWrite {
			a.Errors = append(a.Errors, fmt.Sprintf("%s: declared writable but its expression cannot be assigned", d.Name))
		}
	}
	if len(a.Errors) > 0 {
		return a, fmt.Errorf("layout has %d errors", len(a.Errors))
	}

	// Phase 4: Detect collisions
	detectCollisions(a, decls)

	return a, nil
}

// Order returns a total order of n nodes in which every node comes after the
// nodes deps reports for it. Ties are broken by index, so an already valid
// declaration order is returned unchanged. If the graph has a cycle, Order
// returns nil and the nodes of one cycle, closed (first == last).
func Order(n int, deps func(i int) []int) ([]int, []int) {
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i := 0; i < n; i++ {
		for _, d := range deps(i) {
			indegree[i]++
			dependents[d] = append(dependents[d], i)
		}
	}

	// Ready set kept sorted so the lowest declaration index goes first.
	var ready []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				idx := sort.SearchInts(ready, dep)
				ready = append(ready, 0)
				copy(ready[idx+1:], ready[idx:])
				ready[idx] = dep
			}
		}
	}

	if len(order) == n {
		return order, nil
	}
	return nil, findCycle(n, deps, indegree)
}

// findCycle walks dependency edges among the unordered nodes until one repeats.
func findCycle(n int, deps func(i int) []int, indegree []int) []int {
	start := -1
	for i := 0; i < n; i++ {
		if indegree[i] > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	pos := make(map[int]int)
	var path []int
	cur := start
	for {
		if p, ok := pos[cur]; ok {
			cycle := append([]int(nil), path[p:]...)
			// Reverse so the cycle reads dependency -> dependent.
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return append(cycle, cycle[0])
		}
		pos[cur] = len(path)
		path = append(path, cur)
		for _, d := range deps(cur) {
			if indegree[d] > 0 {
				cur = d
				break
			}
		}
	}
}

func detectCollisions(a *AnalyzedLayout, decls []Decl) {
	type placed struct {
		name string
		r    Region
	}
	var regions []placed
	for _, d := range decls {
		if d.Region != nil && d.Materialized() {
			regions = append(regions, placed{d.Name, *d.Region})
		}
	}
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].r.Start < regions[j].r.Start
	})

	// Sorted by start, so every region overlapping r1 follows it until the
	// first one starting at or after r1's end.
	for i, r1 := range regions {
		for _, r2 := range regions[i+1:] {
			if r2.r.Start >= r1.r.End() {
				break
			}
			a.Warnings = append(a.Warnings,
				fmt.Sprintf("collision: %s [%d, %d) overlaps %s [%d, %d)",
					r1.name, r1.r.Start, r1.r.End(),
					r2.name, r2.r.Start, r2.r.End()))
		}
	}
}

// IsValid returns true if layout has no errors
func (a *AnalyzedLayout) IsValid() bool {
	return len(a.Errors) == 0
}
