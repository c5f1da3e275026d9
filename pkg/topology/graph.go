// Package topology implements the per-edge-node topology graph (spec.md
// §4.4, C4): the directed, weighted view of the overlay each client and
// server keeps locally, mutated by discovery responses and controller
// hints, and queried by the reliable endpoint for a route to send along.
//
// The graph itself is grounded on the teacher's routing.Table (pkg/routing):
// a small mutex-guarded map-backed structure with a narrow, explicit
// mutation API (AddNode/AddLink/RemoveNode/RemoveLink/Penalize) rather than
// exposing its internals.
package topology

import (
	"errors"
	"sort"
	"sync"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

// ErrNoRoute is returned by BestPath when the destination is unreachable
// under the role and no-loop constraints spec.md §4.4 imposes.
var ErrNoRoute = errors.New("topology: no route")

type edge struct {
	a, b packet.NodeID
}

// LinkOracle reports whether a directed link's underlying channel still
// exists. pkg/fabric.Fabric satisfies this; it is injected rather than
// imported directly so the graph can be tested without a live fabric.
type LinkOracle interface {
	HasLink(from, to packet.NodeID) bool
}

// Graph is one edge node's local view of the overlay.
type Graph struct {
	mu      sync.RWMutex
	roles   map[packet.NodeID]packet.NodeRole
	weights map[edge]int
	adj     map[packet.NodeID]map[packet.NodeID]struct{}
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{
		roles:   make(map[packet.NodeID]packet.NodeRole),
		weights: make(map[edge]int),
		adj:     make(map[packet.NodeID]map[packet.NodeID]struct{}),
	}
}

// AddNode registers a node's role. Re-adding a known node with the same
// role is a no-op; re-adding with a different role updates it (discovery
// responses are idempotent per spec.md §8, but a stale role should still
// be correctable).
func (g *Graph) AddNode(id packet.NodeID, role packet.NodeRole) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roles[id] = role
	if g.adj[id] == nil {
		g.adj[id] = make(map[packet.NodeID]struct{})
	}
}

// HasNode reports whether a node is known.
func (g *Graph) HasNode(id packet.NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.roles[id]
	return ok
}

// Role returns a known node's role.
func (g *Graph) Role(id packet.NodeID) (packet.NodeRole, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.roles[id]
	return r, ok
}

// AddLink inserts bidirectional edges of weight 1 between a and b,
// registering both nodes' roles if they are not already known. Repeating
// an existing link is a no-op (spec.md §4.4: "idempotent on repeat").
func (g *Graph) AddLink(a packet.NodeID, roleA packet.NodeRole, b packet.NodeID, roleB packet.NodeRole) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNodeLocked(a, roleA)
	g.addNodeLocked(b, roleB)
	g.addDirectedLocked(a, b)
	g.addDirectedLocked(b, a)
}

func (g *Graph) addNodeLocked(id packet.NodeID, role packet.NodeRole) {
	if _, ok := g.roles[id]; !ok {
		g.roles[id] = role
	}
	if g.adj[id] == nil {
		g.adj[id] = make(map[packet.NodeID]struct{})
	}
}

func (g *Graph) addDirectedLocked(from, to packet.NodeID) {
	g.adj[from][to] = struct{}{}
	if _, ok := g.weights[edge{from, to}]; !ok {
		g.weights[edge{from, to}] = 1
	}
}

// RemoveNode drops a node and every edge incident to it, in either
// direction (spec.md §3 invariant).
func (g *Graph) RemoveNode(id packet.NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for other := range g.adj[id] {
		delete(g.adj[other], id)
		delete(g.weights, edge{id, other})
		delete(g.weights, edge{other, id})
	}
	delete(g.adj, id)
	delete(g.roles, id)
}

// RemoveLink drops both directed edges a->b and b->a.
func (g *Graph) RemoveLink(a, b packet.NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.adj[a], b)
	delete(g.adj[b], a)
	delete(g.weights, edge{a, b})
	delete(g.weights, edge{b, a})
}

// Penalize increases the weight of the directed edge a->b by 1. Weights
// never decrease except through RemoveNode/RemoveLink (spec.md §3, §8
// "weight monotonicity"). Penalizing an edge that does not exist is a
// no-op: there is nothing to penalize once the link is already gone.
func (g *Graph) Penalize(a, b packet.NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.weights[edge{a, b}]; ok {
		g.weights[edge{a, b}]++
	}
}

// Weight returns the current weight of a->b, and whether that edge exists.
func (g *Graph) Weight(a, b packet.NodeID) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.weights[edge{a, b}]
	return w, ok
}

// Neighbors returns a's current outbound neighbors.
func (g *Graph) Neighbors(a packet.NodeID) []packet.NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]packet.NodeID, 0, len(g.adj[a]))
	for n := range g.adj[a] {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NodesByRole returns every known node with the given role, sorted by id.
func (g *Graph) NodesByRole(role packet.NodeRole) []packet.NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []packet.NodeID
	for id, r := range g.roles {
		if r == role {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NodeCount returns the number of known nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.roles)
}

// Clone returns an independent deep copy, used by the controller to
// simulate a mutation (a Crash, a RemoveLink) before committing to it.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := New()
	for id, role := range g.roles {
		out.roles[id] = role
	}
	for id, neighbors := range g.adj {
		out.adj[id] = make(map[packet.NodeID]struct{}, len(neighbors))
		for n := range neighbors {
			out.adj[id][n] = struct{}{}
		}
	}
	for e, w := range g.weights {
		out.weights[e] = w
	}
	return out
}

// IngestPathTrace folds a flood's path trace into the graph: every node in
// it is added with its reported role, and every consecutive pair becomes a
// bidirectional link. Re-ingesting the same trace is idempotent (spec.md
// §8), since AddNode/AddLink already are.
func (g *Graph) IngestPathTrace(trace []packet.PathEntry) {
	for i, entry := range trace {
		g.AddNode(entry.Node, entry.Role)
		if i > 0 {
			prev := trace[i-1]
			g.AddLink(prev.Node, prev.Role, entry.Node, entry.Role)
		}
	}
}
