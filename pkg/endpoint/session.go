package endpoint

import (
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// outboundSession is one high-level message an endpoint is still waiting
// to see fully acknowledged (spec.md §4.6: "a Session table entry at the
// originator exists from the first send until all fragments have been
// acknowledged").
type outboundSession struct {
	Target           packet.NodeID
	Fragments        []packet.FragmentPayload
	Route            []packet.NodeID
	Acked            []bool
	RouteNeedsRecalc bool
}

func newOutboundSession(target packet.NodeID, fragments []packet.FragmentPayload, route []packet.NodeID) *outboundSession {
	return &outboundSession{
		Target:    target,
		Fragments: fragments,
		Route:     route,
		Acked:     make([]bool, len(fragments)),
	}
}

// Complete reports whether every fragment has been acknowledged.
func (s *outboundSession) Complete() bool {
	for _, acked := range s.Acked {
		if !acked {
			return false
		}
	}
	return true
}

// Predecessor returns the hop immediately before node on this session's
// current route, used to penalize the link a Dropped/UnexpectedRecipient
// NACK names (spec.md §4.4).
func (s *outboundSession) Predecessor(node packet.NodeID) (packet.NodeID, bool) {
	for i, n := range s.Route {
		if n == node && i > 0 {
			return s.Route[i-1], true
		}
	}
	return 0, false
}

// fragmentsFor splits payload into FragmentCapacity-sized chunks, per
// spec.md §4.6: ceil(len(payload)/128) fragments, only the last one
// shorter than capacity. An empty payload yields one empty fragment.
func fragmentsFor(payload []byte) []packet.FragmentPayload {
	if len(payload) == 0 {
		return []packet.FragmentPayload{packet.NewFragmentPayload(nil)}
	}
	var out []packet.FragmentPayload
	for off := 0; off < len(payload); off += packet.FragmentCapacity {
		end := off + packet.FragmentCapacity
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, packet.NewFragmentPayload(payload[off:end]))
	}
	return out
}

// reassemblyKey identifies one inbound message under reassembly: the
// (session, originator) pair spec.md §4.6 specifies, guarding against two
// originators racing for the same session number.
type reassemblyKey struct {
	Session packet.SessionID
	Origin  packet.NodeID
}

type inboundAssembly struct {
	Total     uint64
	Fragments map[packet.FragmentIndex]packet.FragmentPayload
}

func newInboundAssembly(total uint64) *inboundAssembly {
	return &inboundAssembly{Total: total, Fragments: make(map[packet.FragmentIndex]packet.FragmentPayload)}
}

// Complete reports whether every fragment 0..Total-1 has arrived.
func (a *inboundAssembly) Complete() bool {
	return uint64(len(a.Fragments)) == a.Total
}

// Payload concatenates the fragments in order. Only valid once Complete.
func (a *inboundAssembly) Payload() []byte {
	var out []byte
	for i := packet.FragmentIndex(0); uint64(i) < a.Total; i++ {
		out = append(out, a.Fragments[i].Bytes()...)
	}
	return out
}
