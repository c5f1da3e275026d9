// Package controller implements the controller-node command plane
// (spec.md §4.7, C7): the commands a supervising controller issues to
// live nodes, the events nodes report back, and the topology-mutation
// invariants the controller enforces before it ever issues a mutation.
package controller

import (
	"github.com/google/uuid"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

// CommandKind enumerates the controller -> node commands of spec.md §4.7.
type CommandKind int

const (
	CmdAddSender CommandKind = iota
	CmdRemoveSender
	CmdSetPdr
	CmdCrash
	CmdAddLink
	CmdNodeCrashed
	CmdFloodRequired
)

func (k CommandKind) String() string {
	switch k {
	case CmdAddSender:
		return "AddSender"
	case CmdRemoveSender:
		return "RemoveSender"
	case CmdSetPdr:
		return "SetPdr"
	case CmdCrash:
		return "Crash"
	case CmdAddLink:
		return "AddLink"
	case CmdNodeCrashed:
		return "NodeCrashed"
	case CmdFloodRequired:
		return "FloodRequired"
	default:
		return "Unknown"
	}
}

// Command is the single envelope for every controller -> node instruction.
// Only the fields relevant to Kind are meaningful, mirroring the tagged
// union discipline pkg/packet uses for wire packets.
//
// ID is a correlation identifier attached for log tracing only — it plays
// no role in the protocol itself, unlike the monotonic SessionID/FloodID
// counters spec.md §3 defines. It exists purely so a log line at the
// controller and a log line at the receiving node can be tied together,
// the way the teacher ties a uuid.UUID transport ID to every routing rule.
type Command struct {
	ID     uuid.UUID
	Kind   CommandKind
	Peer   packet.NodeID
	Sender chan<- packet.Packet // set for AddSender and AddLink
	Pdr    float64              // set for SetPdr
	Role   packet.NodeRole      // set for AddLink
}

// EventKind enumerates the node -> controller events of spec.md §4.7.
type EventKind int

const (
	EventPacketSent EventKind = iota
	EventPacketDropped
	EventControllerShortcut
)

func (k EventKind) String() string {
	switch k {
	case EventPacketSent:
		return "PacketSent"
	case EventPacketDropped:
		return "PacketDropped"
	case EventControllerShortcut:
		return "ControllerShortcut"
	default:
		return "Unknown"
	}
}

// Event is the single envelope for every node -> controller report.
type Event struct {
	ID     uuid.UUID
	Kind   EventKind
	Node   packet.NodeID
	Packet packet.Packet
}
