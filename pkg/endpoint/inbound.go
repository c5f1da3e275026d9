package endpoint

import (
	"github.com/gaecan04/krusty-club/pkg/discovery"
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// handlePacket dispatches an incoming packet (arrived over the normal
// inbox or the controller shortcut) by Kind.
func (e *Endpoint) handlePacket(p packet.Packet) {
	switch p.Kind {
	case packet.KindMsgFragment:
		e.handleFragment(p)
	case packet.KindAck:
		e.handleAck(p)
	case packet.KindNack:
		e.handleNack(p)
	case packet.KindFloodRequest:
		e.handleFloodRequest(p)
	case packet.KindFloodResponse:
		e.handleFloodResponse(p)
	}
}

// handleFragment implements spec.md §4.6's inbound half: store the
// fragment under its (session, originator) key, always ACK immediately
// regardless of reassembly completeness, and once every fragment has
// arrived, deliver the reassembled payload to the application.
func (e *Endpoint) handleFragment(p packet.Packet) {
	origin := p.Routing.Origin()
	key := reassemblyKey{Session: p.Session, Origin: origin}

	asm, ok := e.inbound[key]
	if !ok {
		asm = newInboundAssembly(p.Fragment.TotalFragments)
		e.inbound[key] = asm
	}
	asm.Fragments[p.Fragment.Index] = p.Fragment.Payload

	ack := packet.NewAck(p.Routing.Reversed(), p.Session, p.Fragment.Index)
	e.sendOnLink(ack.Routing.Current(), ack)

	if asm.Complete() {
		delete(e.inbound, key)
		if e.delivery != nil {
			select {
			case e.delivery <- Delivery{At: e.id, Origin: origin, Session: p.Session, Payload: asm.Payload()}:
			default:
				e.log.Warn("delivery channel full, dropping reassembled message")
			}
		}
	}
}

// handleAck marks a fragment acknowledged and drops the session entirely
// once every fragment has been (spec.md §4.6 ACK completeness).
func (e *Endpoint) handleAck(p packet.Packet) {
	sess, ok := e.outbound[p.Session]
	if !ok || int(p.Ack) >= len(sess.Acked) {
		return
	}
	sess.Acked[p.Ack] = true
	if sess.Complete() {
		delete(e.outbound, p.Session)
	}
}

// handleNack implements spec.md §4.4's originator-side NACK handling: the
// link implicated by the failure is penalized or removed, the route cache
// entry for the session's target is invalidated, a fresh best path is
// computed, and the named fragment is retransmitted over it.
//
// ErrorInRouting's graph mutation follows spec.md §9's resolution of the
// source's ambivalence: the named node is removed entirely only if the
// controller has separately reported it crashed; otherwise only the
// specific link that turned out broken is dropped.
func (e *Endpoint) handleNack(p packet.Packet) {
	sess, ok := e.outbound[p.Session]
	if !ok {
		return
	}

	switch p.Nack.Type {
	case packet.NackDropped:
		if pred, found := sess.Predecessor(p.Nack.At); found {
			e.graph.Penalize(pred, p.Nack.At)
		}
	case packet.NackErrorInRouting:
		if e.crashed[p.Nack.ProblemNode] {
			e.graph.RemoveNode(p.Nack.ProblemNode)
		} else {
			e.graph.RemoveLink(p.Nack.At, p.Nack.ProblemNode)
		}
	case packet.NackUnexpectedRecipient:
		if pred, found := sess.Predecessor(p.Nack.At); found {
			e.graph.Penalize(pred, p.Nack.At)
		}
	case packet.NackDestinationIsDrone:
		// the computed route mistakenly ended at a drone; force a reroute.
	}

	if !e.recomputeRoute(sess) {
		e.startFlood()
		return
	}
	e.retransmitFragment(p.Session, p.Nack.FragmentIndex)
}

// handleFloodRequest answers a flood that reached this edge node: a
// one-neighbor Client/Server is a dead end and always responds, but a
// two-neighbor Client or a Server relays just like a drone does (spec.md
// §4.5 applies the same seen/dead-end/forward logic to every role).
func (e *Endpoint) handleFloodRequest(p packet.Packet) {
	forwards, response := discovery.Relay(e.id, e.role, p.Flood, e.neighbors, e.seen)
	for _, f := range forwards {
		e.sendOnLink(f.Target, f.Packet)
	}
	if response == nil {
		return
	}
	e.sendOnLink(response.Routing.Current(), *response)
}

// handleFloodResponse ingests the returned path trace into this node's
// local topology view immediately on arrival (spec.md §9's resolution of
// the open question on response batching), and records the arrival
// against any flood round still being tracked.
func (e *Endpoint) handleFloodResponse(p packet.Packet) {
	e.graph.IngestPathTrace(p.FloodRsp.PathTrace)
	if fl, ok := e.inFlights[p.FloodRsp.FloodID]; ok {
		fl.RecordResponse()
	}
}
