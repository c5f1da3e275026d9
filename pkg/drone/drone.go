// Package drone implements the drone forwarder (spec.md §4.3, C3): the
// hop validation, next-hop lookup, destination guard, probabilistic drop,
// and flood relay a Drone node performs on every packet that passes
// through it, plus its command handling and crash-drain sequence.
//
// Grounded on original_source/src/droneK/drone.rs's handle_packet /
// process_packet / process_flood_request / process_crash, reworked into
// the teacher's goroutine-plus-channel idiom (pkg/router.Router's Serve
// loop) rather than a crossbeam select_biased! macro: Go has no built-in
// biased select, so the priority order spec.md §9 requires (command
// before packet) is approximated with a non-blocking pre-check before the
// blocking multi-way select, the same trick pkg/node's dispatch loop uses
// when one channel needs to win ties.
package drone

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/gaecan04/krusty-club/pkg/controller"
	"github.com/gaecan04/krusty-club/pkg/discovery"
	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/packet"
)

// Drone is one goroutine's worth of drone-forwarder state. It owns no
// locks: every field is touched only from Run's own goroutine, since
// commands and packets are serialized through the same select loop.
type Drone struct {
	id  packet.NodeID
	log *logrus.Entry

	inbox    <-chan packet.Packet
	commands <-chan controller.Command
	events   chan<- controller.Event

	pdr       float64
	neighbors map[packet.NodeID]chan<- packet.Packet
	seen      discovery.SeenSet

	rng *rand.Rand
}

// New constructs a Drone. fab supplies the shared inbox this drone reads
// every incoming packet from, regardless of which neighbor sent it.
func New(id packet.NodeID, pdr float64, fab *fabric.Fabric, commands <-chan controller.Command, events chan<- controller.Event, log *logrus.Entry) *Drone {
	return &Drone{
		id:        id,
		log:       log.WithField("node", id).WithField("role", "drone"),
		inbox:     fab.Inbox(id),
		commands:  commands,
		events:    events,
		pdr:       pdr,
		neighbors: make(map[packet.NodeID]chan<- packet.Packet),
		seen:      make(discovery.SeenSet),
		rng:       rand.New(rand.NewSource(int64(id) + 1)),
	}
}

// Run is the drone's whole lifetime: it processes commands and packets
// until a Crash command arrives or ctx is cancelled.
func (d *Drone) Run(ctx context.Context) {
	for {
		// Non-blocking pre-check gives commands priority over packets
		// whenever both are ready, per spec.md §9.
		select {
		case cmd := <-d.commands:
			if d.handleCommand(cmd) {
				return
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-d.commands:
			if d.handleCommand(cmd) {
				return
			}
		case p := <-d.inbox:
			d.handlePacket(p)
		}
	}
}

func (d *Drone) handleCommand(cmd controller.Command) (crashed bool) {
	switch cmd.Kind {
	case controller.CmdAddSender:
		d.neighbors[cmd.Peer] = cmd.Sender
	case controller.CmdRemoveSender:
		delete(d.neighbors, cmd.Peer)
	case controller.CmdSetPdr:
		d.pdr = cmd.Pdr
	case controller.CmdCrash:
		d.crash()
		return true
	}
	return false
}

// crash drains every packet already sitting in the inbox before this
// drone disappears: control packets are still forwarded on if possible,
// message fragments are NACKed as a routing error at this node, and flood
// requests are silently dropped since there is no well-defined "dead end"
// response once the relaying drone itself is going away mid-flood.
func (d *Drone) crash() {
	d.log.Info("draining inbox before crash")
	for {
		select {
		case p := <-d.inbox:
			switch {
			case p.Kind == packet.KindFloodRequest:
				// no response: the drone vanishes mid-relay
			case isReturnKind(p.Kind):
				d.deliverReturn(p)
			default:
				d.sendNack(p, packet.Nack{Type: packet.NackErrorInRouting, ProblemNode: d.id, At: d.id})
			}
		default:
			d.neighbors = make(map[packet.NodeID]chan<- packet.Packet)
			d.log.Info("crashed")
			return
		}
	}
}

func (d *Drone) handlePacket(p packet.Packet) {
	if p.Kind == packet.KindFloodRequest {
		d.relayFlood(p)
		return
	}

	if !d.atSelf(p.Routing) {
		d.handleMisrouted(p)
		return
	}

	advanced := p.Clone()
	advanced.Routing.HopIndex++
	if int(advanced.Routing.HopIndex) >= len(advanced.Routing.Hops) {
		d.handleRanOutOfHops(p)
		return
	}

	if isReturnKind(p.Kind) {
		d.forwardReturn(advanced)
		return
	}

	// KindMsgFragment: the only forward-direction, droppable kind.
	next := advanced.Routing.Current()
	sender, ok := d.neighbors[next]
	if !ok {
		d.reportEvent(controller.EventPacketDropped, p)
		d.sendNack(p, packet.Nack{Type: packet.NackErrorInRouting, ProblemNode: next, At: d.id})
		return
	}

	if d.shouldDrop() {
		d.reportEvent(controller.EventPacketDropped, advanced)
		d.sendNack(p, packet.Nack{Type: packet.NackDropped, ProblemNode: d.id, At: d.id})
		return
	}

	sender <- advanced
	d.reportEvent(controller.EventPacketSent, advanced)
}

func (d *Drone) atSelf(h packet.Header) bool {
	return int(h.HopIndex) < len(h.Hops) && h.Current() == d.id
}

// handleMisrouted implements spec.md §4.3 step 2: the packet arrived
// claiming a hop_index that does not name this drone. A MsgFragment gets
// a Nack{UnexpectedRecipient} and a PacketDropped event; a return-kind
// packet (Ack/Nack/FloodResponse) has no further return path to NACK
// along, so it escalates to the controller shortcut instead.
func (d *Drone) handleMisrouted(p packet.Packet) {
	if isReturnKind(p.Kind) {
		d.reportShortcut(p)
		return
	}
	d.reportEvent(controller.EventPacketDropped, p)
	d.sendNack(p, packet.Nack{Type: packet.NackUnexpectedRecipient, ProblemNode: d.id, At: d.id})
}

// handleRanOutOfHops implements spec.md §4.3 step 4: hop_index has
// advanced past the end of the header while still sitting at a drone. A
// MsgFragment can never terminate at a drone, hence Nack{DestinationIsDrone};
// a return-kind packet again has no further NACK path and shortcuts.
func (d *Drone) handleRanOutOfHops(p packet.Packet) {
	if isReturnKind(p.Kind) {
		d.reportShortcut(p)
		return
	}
	d.sendNack(p, packet.Nack{Type: packet.NackDestinationIsDrone, ProblemNode: d.id, At: d.id})
}

// forwardReturn delivers an Ack, Nack, or FloodResponse one more hop
// toward its destination. Failure here means the return path itself is
// broken, so there is no further return path left to NACK along — the
// only recourse is the controller shortcut (spec.md scenario 6).
func (d *Drone) forwardReturn(advanced packet.Packet) {
	next := advanced.Routing.Current()
	sender, ok := d.neighbors[next]
	if !ok {
		d.reportShortcut(advanced)
		return
	}
	sender <- advanced
	d.reportEvent(controller.EventPacketSent, advanced)
}

// deliverReturn re-validates and forwards a control packet found sitting
// in the inbox during crash drain.
func (d *Drone) deliverReturn(p packet.Packet) {
	if !d.atSelf(p.Routing) {
		d.reportShortcut(p)
		return
	}
	advanced := p.Clone()
	advanced.Routing.HopIndex++
	if int(advanced.Routing.HopIndex) >= len(advanced.Routing.Hops) {
		d.reportShortcut(p)
		return
	}
	d.forwardReturn(advanced)
}

func (d *Drone) relayFlood(p packet.Packet) {
	forwards, response := discovery.Relay(d.id, packet.RoleDrone, p.Flood, d.neighbors, d.seen)
	for _, f := range forwards {
		if sender, ok := d.neighbors[f.Target]; ok {
			sender <- f.Packet
		}
	}
	if response == nil {
		return
	}
	next := response.Routing.Current()
	if sender, ok := d.neighbors[next]; ok {
		sender <- *response
		d.reportEvent(controller.EventPacketSent, *response)
	} else {
		d.reportShortcut(*response)
	}
}

func (d *Drone) shouldDrop() bool {
	return d.rng.Float64() < d.pdr
}

func (d *Drone) sendNack(original packet.Packet, nack packet.Nack) {
	resp := packet.NewNack(original.Routing.ReversedPrefix(), original.Session, nack)
	if original.Kind == packet.KindMsgFragment {
		resp.Nack.FragmentIndex = original.Fragment.Index
	}
	next := resp.Routing.Current()
	if sender, ok := d.neighbors[next]; ok {
		sender <- resp
		d.reportEvent(controller.EventPacketSent, resp)
	} else {
		d.reportShortcut(resp)
	}
}

func (d *Drone) reportEvent(kind controller.EventKind, p packet.Packet) {
	select {
	case d.events <- controller.Event{Kind: kind, Node: d.id, Packet: p}:
	default:
		d.log.Warn("event channel full, dropping controller report")
	}
}

func (d *Drone) reportShortcut(p packet.Packet) {
	d.reportEvent(controller.EventControllerShortcut, p)
}

func isReturnKind(k packet.Kind) bool {
	return k == packet.KindAck || k == packet.KindNack || k == packet.KindFloodResponse
}
