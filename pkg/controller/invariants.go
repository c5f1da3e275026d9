package controller

import (
	"fmt"

	"github.com/gaecan04/krusty-club/pkg/packet"
	"github.com/gaecan04/krusty-club/pkg/topology"
)

// The three connectivity guarantees spec.md §4.7 requires the controller
// to preserve across every topology mutation it accepts:
//
//   - the induced subgraph of Drone nodes stays connected
//   - every Client retains at least one Drone neighbor
//   - every Server retains at least two Drone neighbors
//
// Each check below is evaluated against a Clone of the controller's graph
// with the candidate mutation already applied, so a rejected mutation
// never touches the real graph or the live fabric.

func droneSubgraphConnected(g *topology.Graph) bool {
	drones := g.NodesByRole(packet.RoleDrone)
	if len(drones) <= 1 {
		return true
	}

	visited := make(map[packet.NodeID]bool)
	stack := []packet.NodeID{drones[0]}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, next := range g.Neighbors(n) {
			if role, ok := g.Role(next); ok && role == packet.RoleDrone && !visited[next] {
				stack = append(stack, next)
			}
		}
	}

	for _, d := range drones {
		if !visited[d] {
			return false
		}
	}
	return true
}

func droneDegree(g *topology.Graph, id packet.NodeID) int {
	count := 0
	for _, n := range g.Neighbors(id) {
		if role, ok := g.Role(n); ok && role == packet.RoleDrone {
			count++
		}
	}
	return count
}

// edgeNodeDegreesSatisfied reports whether every Client has at least one
// Drone neighbor and every Server has at least two.
func edgeNodeDegreesSatisfied(g *topology.Graph) bool {
	for _, c := range g.NodesByRole(packet.RoleClient) {
		if droneDegree(g, c) < 1 {
			return false
		}
	}
	for _, s := range g.NodesByRole(packet.RoleServer) {
		if droneDegree(g, s) < 2 {
			return false
		}
	}
	return true
}

// IsCrashAllowed reports whether drone can be safely removed without
// breaking the drone-subgraph connectivity invariant or stranding an edge
// node below its minimum drone-neighbor degree.
func (c *Controller) IsCrashAllowed(drone packet.NodeID) bool {
	role, ok := c.graph.Role(drone)
	if !ok || role != packet.RoleDrone {
		return false
	}

	sim := c.graph.Clone()
	for _, n := range sim.Neighbors(drone) {
		sim.RemoveLink(drone, n)
	}
	sim.RemoveNode(drone)

	return droneSubgraphConnected(sim) && edgeNodeDegreesSatisfied(sim)
}

// IsRemovalAllowed reports whether the link between a and b can be removed
// without violating the same two invariants IsCrashAllowed checks.
func (c *Controller) IsRemovalAllowed(a, b packet.NodeID) bool {
	sim := c.graph.Clone()
	sim.RemoveLink(a, b)
	return droneSubgraphConnected(sim) && edgeNodeDegreesSatisfied(sim)
}

// ValidateNewDrone reports whether a brand-new drone with id and the given
// neighbor set can be added without starting the graph off in a broken
// state: the id must be unused, every neighbor must already be known, and
// the resulting graph (with all links added) must still satisfy both
// invariants.
func (c *Controller) ValidateNewDrone(id packet.NodeID, neighbors []packet.NodeID) error {
	if c.graph.HasNode(id) {
		return fmt.Errorf("%w: node %d already exists", ErrInvariantViolation, id)
	}
	if len(neighbors) == 0 {
		return fmt.Errorf("%w: a new drone needs at least one neighbor", ErrInvariantViolation)
	}

	sim := c.graph.Clone()
	sim.AddNode(id, packet.RoleDrone)
	for _, n := range neighbors {
		role, ok := sim.Role(n)
		if !ok {
			return fmt.Errorf("%w: neighbor %d is not a known node", ErrInvariantViolation, n)
		}
		sim.AddLink(id, packet.RoleDrone, n, role)
	}

	if !droneSubgraphConnected(sim) {
		return fmt.Errorf("%w: new drone %d would leave the drone subgraph disconnected", ErrInvariantViolation, id)
	}
	if !edgeNodeDegreesSatisfied(sim) {
		return fmt.Errorf("%w: new drone %d would violate an edge node's minimum drone-neighbor degree", ErrInvariantViolation, id)
	}
	return nil
}
