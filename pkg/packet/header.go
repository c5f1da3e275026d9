package packet

// Header is the source-routing header (spec.md §3): the originator fixes
// the whole hop list up front, and HopIndex names the hop currently
// expected to process the packet (initial value 1 on first send).
//
// Hops[0] is always the originator; Hops[len(Hops)-1] is always the final
// destination; every entry strictly between them must be a Drone.
type Header struct {
	HopIndex uint8
	Hops     []NodeID
}

// Destination returns the final hop.
func (h Header) Destination() NodeID {
	return h.Hops[len(h.Hops)-1]
}

// Origin returns the first hop.
func (h Header) Origin() NodeID {
	return h.Hops[0]
}

// Current returns the node HopIndex names.
func (h Header) Current() NodeID {
	return h.Hops[h.HopIndex]
}

// AtDestination reports whether HopIndex names the last hop.
func (h Header) AtDestination() bool {
	return int(h.HopIndex) == len(h.Hops)-1
}

// Reversed implements the sole rule spec.md §4.1 gives for computing a
// return path for Ack, Nack, and FloodResponse: reverse Hops, set
// HopIndex = 1.
func (h Header) Reversed() Header {
	rev := make([]NodeID, len(h.Hops))
	for i, n := range h.Hops {
		rev[len(h.Hops)-1-i] = n
	}
	return Header{HopIndex: 1, Hops: rev}
}

// ReversedPrefix reverses only the prefix of Hops up to and including
// HopIndex. A drone that rejects a packet before forwarding it (hop
// mismatch, no next-hop sender) has not advanced past its own position, so
// the return path starts at its own index rather than the packet's
// destination.
func (h Header) ReversedPrefix() Header {
	prefix := h.Hops[:h.HopIndex+1]
	rev := make([]NodeID, len(prefix))
	for i, n := range prefix {
		rev[len(prefix)-1-i] = n
	}
	return Header{HopIndex: 1, Hops: rev}
}

// FromPath builds a fresh outbound Header from an ordered path of hops,
// originator first. HopIndex starts at 1, as spec.md §3 requires.
func FromPath(path []NodeID) Header {
	hops := make([]NodeID, len(path))
	copy(hops, path)
	return Header{HopIndex: 1, Hops: hops}
}

// Clone returns a deep copy so callers can safely mutate HopIndex/Hops
// without aliasing the original (spec.md §5: "packets are moved, not
// aliased").
func (h Header) Clone() Header {
	hops := make([]NodeID, len(h.Hops))
	copy(hops, h.Hops)
	return Header{HopIndex: h.HopIndex, Hops: hops}
}
