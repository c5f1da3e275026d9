package topology

import (
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// candidate tracks the best known way to reach a node: total weight,
// number of hops, and the actual path, in that tie-break order (spec.md
// §4.4). Because every edge weight is >= 1, weight strictly grows with
// each additional hop, so relaxing on this tuple preserves the usual
// Dijkstra correctness argument while also resolving ties deterministically.
type candidate struct {
	weight int
	hops   int
	path   []packet.NodeID
}

// less reports whether c is strictly better than other under spec.md
// §4.4's tie-break rules: lowest weight, then fewest hops, then
// lexicographically-smallest NodeID sequence.
func (c candidate) less(other candidate) bool {
	if c.weight != other.weight {
		return c.weight < other.weight
	}
	if c.hops != other.hops {
		return c.hops < other.hops
	}
	return lexLess(c.path, other.path)
}

func lexLess(a, b []packet.NodeID) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// BestPath computes a shortest path from src to dst honoring spec.md §4.4:
// edges whose underlying channel the fabric no longer reports are pruned
// first; every intermediate vertex (everything but src and dst) must be a
// Drone; src may never reappear as an intermediate; ties go to lower
// weight, then fewer hops, then lexicographically smaller hop sequence.
func (g *Graph) BestPath(src, dst packet.NodeID, oracle LinkOracle) ([]packet.NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.roles[src]; !ok {
		return nil, ErrNoRoute
	}
	if _, ok := g.roles[dst]; !ok {
		return nil, ErrNoRoute
	}

	best := map[packet.NodeID]candidate{
		src: {weight: 0, hops: 0, path: []packet.NodeID{src}},
	}
	visited := make(map[packet.NodeID]bool)

	for {
		// Pick the unvisited node with the best known candidate.
		var current packet.NodeID
		found := false
		var currentBest candidate
		for id, c := range best {
			if visited[id] {
				continue
			}
			if !found || c.less(currentBest) {
				current, currentBest, found = id, c, true
			}
		}
		if !found {
			break
		}
		visited[current] = true
		if current == dst {
			return currentBest.path, nil
		}

		for next := range g.adj[current] {
			if next == src {
				continue // no loops through src (spec.md §4.4)
			}
			if oracle != nil && !oracle.HasLink(current, next) {
				continue // prune stale edges before the search proceeds
			}
			if next != dst {
				if role, ok := g.roles[next]; !ok || role != packet.RoleDrone {
					continue // intermediates must be Drones
				}
			}

			w, ok := g.weights[edge{current, next}]
			if !ok {
				continue
			}

			cand := candidate{
				weight: currentBest.weight + w,
				hops:   currentBest.hops + 1,
				path:   append(append([]packet.NodeID{}, currentBest.path...), next),
			}

			existing, ok := best[next]
			if !ok || cand.less(existing) {
				best[next] = cand
			}
		}
	}

	return nil, ErrNoRoute
}
