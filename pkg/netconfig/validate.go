package netconfig

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

// ErrInvalidConfig is wrapped by every validation failure Validate returns.
var ErrInvalidConfig = errors.New("netconfig: invalid configuration")

// Validate checks c against every rule spec.md §6 lists: unique ids across
// all roles, no self-edges, every edge bidirectional, the whole graph
// connected, and clients/servers appearing only at leaves of the drone
// core (no client-client, client-server, or server-server edge).
func (c *NetworkConfig) Validate() error {
	roles := make(map[packet.NodeID]packet.NodeRole)
	pdrs := make(map[packet.NodeID]float64)

	for _, d := range c.Drone {
		if _, dup := roles[d.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidConfig, d.ID)
		}
		if d.Pdr < 0 || d.Pdr > 1 {
			return fmt.Errorf("%w: drone %d has pdr %f outside [0,1]", ErrInvalidConfig, d.ID, d.Pdr)
		}
		roles[d.ID] = packet.RoleDrone
		pdrs[d.ID] = d.Pdr
	}
	for _, cl := range c.Client {
		if _, dup := roles[cl.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidConfig, cl.ID)
		}
		if n := len(cl.ConnectedNodeIDs); n < 1 || n > 2 {
			return fmt.Errorf("%w: client %d has %d neighbors, want 1 or 2", ErrInvalidConfig, cl.ID, n)
		}
		roles[cl.ID] = packet.RoleClient
	}
	for _, s := range c.Server {
		if _, dup := roles[s.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", ErrInvalidConfig, s.ID)
		}
		if n := len(s.ConnectedNodeIDs); n < 2 {
			return fmt.Errorf("%w: server %d has %d neighbors, want at least 2", ErrInvalidConfig, s.ID, n)
		}
		roles[s.ID] = packet.RoleServer
	}

	adj := make(map[packet.NodeID]map[packet.NodeID]bool)
	addEdge := func(a, b packet.NodeID) error {
		if a == b {
			return fmt.Errorf("%w: self-edge at node %d", ErrInvalidConfig, a)
		}
		roleA, okA := roles[a]
		roleB, okB := roles[b]
		if !okA {
			return fmt.Errorf("%w: edge references unknown node %d", ErrInvalidConfig, a)
		}
		if !okB {
			return fmt.Errorf("%w: edge references unknown node %d", ErrInvalidConfig, b)
		}
		if roleA != packet.RoleDrone && roleB != packet.RoleDrone {
			return fmt.Errorf("%w: edge %d-%d is not incident to a drone (clients/servers may only connect to drones or, for clients, one another is forbidden)", ErrInvalidConfig, a, b)
		}
		if adj[a] == nil {
			adj[a] = make(map[packet.NodeID]bool)
		}
		adj[a][b] = true
		return nil
	}

	for _, d := range c.Drone {
		for _, n := range d.ConnectedNodeIDs {
			if err := addEdge(d.ID, n); err != nil {
				return err
			}
		}
	}
	for _, cl := range c.Client {
		for _, n := range cl.ConnectedNodeIDs {
			if err := addEdge(cl.ID, n); err != nil {
				return err
			}
		}
	}
	for _, s := range c.Server {
		for _, n := range s.ConnectedNodeIDs {
			if err := addEdge(s.ID, n); err != nil {
				return err
			}
		}
	}

	for a, neighbors := range adj {
		for b := range neighbors {
			if !adj[b][a] {
				return fmt.Errorf("%w: edge %d->%d is not reciprocated by %d->%d", ErrInvalidConfig, a, b, b, a)
			}
		}
	}

	if err := checkConnected(roles, adj); err != nil {
		return err
	}

	return nil
}

// checkConnected runs a breadth-first search from an arbitrary node and
// confirms every declared node is reachable.
func checkConnected(roles map[packet.NodeID]packet.NodeRole, adj map[packet.NodeID]map[packet.NodeID]bool) error {
	if len(roles) == 0 {
		return fmt.Errorf("%w: empty network", ErrInvalidConfig)
	}

	ids := make([]packet.NodeID, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	start := ids[0]
	visited := map[packet.NodeID]bool{start: true}
	queue := []packet.NodeID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for n := range adj[cur] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}

	for _, id := range ids {
		if !visited[id] {
			return fmt.Errorf("%w: node %d is not reachable from node %d, graph is not connected", ErrInvalidConfig, id, start)
		}
	}
	return nil
}
