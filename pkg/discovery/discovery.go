// Package discovery implements the flood-based network discovery protocol
// (spec.md §4.5, C5): flood-request relaying with per-(flood_id,initiator)
// suppression, dead-end detection, and the reversed-path-trace response
// that lets every node along the way learn a slice of the overlay.
//
// The relay decision is grounded on the original drone implementation's
// process_flood_request (original_source/src/droneK/drone.rs): a drone
// that has already seen a flood responds without rebroadcasting; a drone
// seeing it for the first time marks it seen, appends itself to the path
// trace, and rebroadcasts to every neighbor except the one the flood just
// arrived from. Unlike that implementation, the "arrived from" neighbor is
// read off the last entry of the incoming path trace rather than
// miscounted from the back of the (pre-append) trace, since a flood
// request carries no source-routed header to consult instead.
package discovery

import (
	"sort"
	"time"

	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// Forwarded pairs a rebroadcast FloodRequest with the neighbor it must be
// sent to.
type Forwarded struct {
	Target packet.NodeID
	Packet packet.Packet
}

// DefaultTimeout is how long an initiator waits for FloodResponses before
// considering a flood round finished (spec.md §4.5: 2000ms).
const DefaultTimeout = 2000 * time.Millisecond

// SeenKey is the per-flood suppression key: a drone only relays the first
// copy of a given (FloodID, Initiator) pair it ever sees.
type SeenKey struct {
	FloodID   packet.FloodID
	Initiator packet.NodeID
}

// SeenSet tracks floods a single node has already relayed. It is not
// safe for concurrent use: each node owns one, mutated only from its own
// receive loop.
type SeenSet map[SeenKey]bool

func keyOf(req packet.FloodRequestBody) SeenKey {
	return SeenKey{FloodID: req.FloodID, Initiator: req.Initiator}
}

// Begin allocates a fresh flood ID from fab and builds the initial
// FloodRequest an initiator broadcasts to every one of its neighbors.
func Begin(fab *fabric.Fabric, self packet.NodeID, role packet.NodeRole) packet.Packet {
	id := fab.NextFloodID()
	trace := []packet.PathEntry{{Node: self, Role: role}}
	return packet.NewFloodRequest(id, self, trace)
}

// cameFrom returns the neighbor this request was just received from: by
// construction, the last entry of an incoming path trace is always
// whoever relayed (or originated) it most recently.
func cameFrom(req packet.FloodRequestBody) packet.NodeID {
	return req.PathTrace[len(req.PathTrace)-1].Node
}

func appendSelf(trace []packet.PathEntry, self packet.NodeID, role packet.NodeRole) []packet.PathEntry {
	out := make([]packet.PathEntry, len(trace)+1)
	copy(out, trace)
	out[len(trace)] = packet.PathEntry{Node: self, Role: role}
	return out
}

// buildResponse reverses trace and wraps it in a FloodResponse packet
// whose Routing header already names the full return path, per spec.md
// §4.5's "reverse path trace, HopIndex = 1" rule — the same Reversed
// operation Ack and Nack use once a Header exists.
func buildResponse(trace []packet.PathEntry, floodID packet.FloodID) packet.Packet {
	ids := make([]packet.NodeID, len(trace))
	for i, e := range trace {
		ids[i] = e.Node
	}
	fwd := packet.FromPath(ids)
	reversed := fwd.Reversed()

	revTrace := make([]packet.PathEntry, len(trace))
	for i, e := range trace {
		revTrace[len(trace)-1-i] = e
	}
	return packet.NewFloodResponse(reversed, floodID, revTrace)
}

// Relay decides what a node holding neighbors should do with an incoming
// FloodRequest: rebroadcast a copy (with itself appended to the path
// trace) to every neighbor other than the one it arrived from, or — if it
// is a dead end or has already seen this flood — build the FloodResponse
// that winds its way back instead.
//
// This applies uniformly to Drone, Client, and Server nodes alike: a
// Client or Server with only one neighbor is a dead end by construction
// and always responds, but one with more than one neighbor (the spec
// allows clients up to two) relays just like a drone would.
func Relay(self packet.NodeID, role packet.NodeRole, req packet.FloodRequestBody, neighbors map[packet.NodeID]chan<- packet.Packet, seen SeenSet) (forwards []Forwarded, response *packet.Packet) {
	from := cameFrom(req)
	trace := appendSelf(req.PathTrace, self, role)

	key := keyOf(req)
	if seen[key] {
		resp := buildResponse(trace, req.FloodID)
		return nil, &resp
	}

	var targets []packet.NodeID
	for n := range neighbors {
		if n != from {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		resp := buildResponse(trace, req.FloodID)
		return nil, &resp
	}
	seen[key] = true
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	out := make([]Forwarded, 0, len(targets))
	for _, t := range targets {
		out = append(out, Forwarded{Target: t, Packet: packet.NewFloodRequest(req.FloodID, req.Initiator, trace)})
	}
	return out, nil
}
