package rendergraph

import (
	"slices"
)

// buildAdjacency links every writer of an id to every reader of it.
// Neighbour lists are sorted and free of duplicates.
func buildAdjacency(passes []*Pass) [][]int {
	readers := make(map[ResourceID][]int)
	for i, p := range passes {
		for _, id := range p.inputs {
			readers[id] = append(readers[id], i)
		}
		for _, b := range p.bufferInputs {
			readers[b.ID] = append(readers[b.ID], i)
		}
	}

	adj := make([][]int, len(passes))
	for i, p := range passes {
		var out []int
		for _, id := range p.outputs {
			out = append(out, readers[id]...)
		}
		for _, id := range p.bufferOutputs {
			out = append(out, readers[id]...)
		}
		slices.Sort(out)
		adj[i] = slices.Compact(out)
	}
	return adj
}

// topologicalSort orders passes so every producer precedes its consumers.
// Roots are visited from the last pass to the first, nodes are collected
// in post-order and the list is reversed. A back edge is reported with the
// path that closes the cycle.
func topologicalSort(passes []*Pass, adj [][]int) ([]int, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	type frame struct {
		node int
		next int
	}

	color := make([]int, len(passes))
	post := make([]int, 0, len(passes))
	var stack []frame

	for root := len(passes) - 1; root >= 0; root-- {
		if color[root] != white {
			continue
		}
		color[root] = gray
		stack = append(stack[:0], frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(adj[top.node]) {
				color[top.node] = black
				post = append(post, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			v := adj[top.node][top.next]
			top.next++

			switch color[v] {
			case white:
				color[v] = gray
				stack = append(stack, frame{node: v})
			case gray:
				// the gray nodes on the stack from v upwards form the cycle
				var path []string
				for i := len(stack) - 1; i >= 0; i-- {
					path = append(path, passes[stack[i].node].name)
					if stack[i].node == v {
						break
					}
				}
				slices.Reverse(path)
				path = append(path, passes[v].name)
				return nil, cycleError(path)
			}
		}
	}

	slices.Reverse(post)
	return post, nil
}
