package batchcoordinator

import "github.com/memento-graph/memento/internal/graphmodel"

// OrderResult is the topologically sorted fragment list plus any cycles
// detected and processed in arbitrary (but recorded) order, per spec §4.9.
type OrderResult struct {
	Ordered []graphmodel.ChangeFragment
	Cycles  []string
}

// TopologicalOrder sorts fragments so that every fragment's DependsOn IDs
// appear earlier in the result, using Kahn's algorithm exactly as
// graph/dag.go's GetExecutionOrder does for action dependency graphs.
// Fragments caught in a cycle are appended at the end in arbitrary order
// (not dropped) and their IDs are returned in Cycles as a diagnostic, per
// spec §4.9 ("cycles are broken by emitting the cycle as a diagnostic event
// and processing in arbitrary order within the cycle").
func TopologicalOrder(fragments []graphmodel.ChangeFragment) OrderResult {
	byID := make(map[string]graphmodel.ChangeFragment, len(fragments))
	inDegree := make(map[string]int, len(fragments))
	dependents := make(map[string][]string, len(fragments))

	for _, f := range fragments {
		byID[f.ID] = f
		if _, ok := inDegree[f.ID]; !ok {
			inDegree[f.ID] = 0
		}
	}
	for _, f := range fragments {
		for _, depID := range f.DependsOn {
			if _, ok := byID[depID]; !ok {
				continue // dependency outside this batch; treat as already satisfied
			}
			dependents[depID] = append(dependents[depID], f.ID)
			inDegree[f.ID]++
		}
	}

	var queue []string
	for _, f := range fragments {
		if inDegree[f.ID] == 0 {
			queue = append(queue, f.ID)
		}
	}

	var result []graphmodel.ChangeFragment
	visited := make(map[string]bool, len(fragments))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, byID[id])
		visited[id] = true

		for _, depID := range dependents[id] {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if len(result) == len(fragments) {
		return OrderResult{Ordered: result}
	}

	// A cycle exists among the unvisited fragments. Append them in their
	// original relative order as a diagnostic rather than silently dropping
	// or panicking.
	var cycles []string
	for _, f := range fragments {
		if !visited[f.ID] {
			result = append(result, f)
			cycles = append(cycles, f.ID)
		}
	}
	return OrderResult{Ordered: result, Cycles: cycles}
}
