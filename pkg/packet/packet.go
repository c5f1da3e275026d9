package packet

import "fmt"

// Kind enumerates the tagged union spec.md §3 calls PacketKind.
type Kind int

const (
	KindMsgFragment Kind = iota
	KindAck
	KindNack
	KindFloodRequest
	KindFloodResponse
)

func (k Kind) String() string {
	switch k {
	case KindMsgFragment:
		return "MsgFragment"
	case KindAck:
		return "Ack"
	case KindNack:
		return "Nack"
	case KindFloodRequest:
		return "FloodRequest"
	case KindFloodResponse:
		return "FloodResponse"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MsgFragmentBody carries one 128-byte slice of a fragmented message.
type MsgFragmentBody struct {
	Index          FragmentIndex
	TotalFragments uint64
	Payload        FragmentPayload
}

// FloodRequestBody is the flood broadcast spec.md §4.5 describes.
type FloodRequestBody struct {
	FloodID   FloodID
	Initiator NodeID
	PathTrace []PathEntry
}

// FloodResponseBody is the reply a flood relay or dead end sends back.
type FloodResponseBody struct {
	FloodID   FloodID
	PathTrace []PathEntry
}

// Packet is the single wire envelope for all five PacketKind variants.
// Exactly one of the *Body fields is meaningful, selected by Kind — this
// mirrors the teacher's routing.Rule tagged-byte-slice discipline (one type,
// several disjoint interpretations) without the byte-packing, since these
// packets never leave the process.
type Packet struct {
	Routing  Header
	Session  SessionID
	Kind     Kind
	Fragment MsgFragmentBody
	Ack      FragmentIndex
	Nack     Nack
	Flood    FloodRequestBody
	FloodRsp FloodResponseBody
}

// NewMsgFragment builds a MsgFragment packet.
func NewMsgFragment(routing Header, session SessionID, idx FragmentIndex, total uint64, payload FragmentPayload) Packet {
	return Packet{
		Routing: routing,
		Session: session,
		Kind:    KindMsgFragment,
		Fragment: MsgFragmentBody{
			Index:          idx,
			TotalFragments: total,
			Payload:        payload,
		},
	}
}

// NewAck builds an Ack packet.
func NewAck(routing Header, session SessionID, idx FragmentIndex) Packet {
	return Packet{Routing: routing, Session: session, Kind: KindAck, Ack: idx}
}

// NewNack builds a Nack packet.
func NewNack(routing Header, session SessionID, nack Nack) Packet {
	return Packet{Routing: routing, Session: session, Kind: KindNack, Nack: nack}
}

// NewFloodRequest builds a FloodRequest packet. Its Routing header is left
// zero-valued: flood requests are broadcast to every neighbor rather than
// addressed along a fixed path (spec.md §4.5).
func NewFloodRequest(floodID FloodID, initiator NodeID, trace []PathEntry) Packet {
	return Packet{
		Kind: KindFloodRequest,
		Flood: FloodRequestBody{
			FloodID:   floodID,
			Initiator: initiator,
			PathTrace: trace,
		},
	}
}

// NewFloodResponse builds a FloodResponse packet whose Routing header is
// already the reversed path trace, per spec.md §4.5.
func NewFloodResponse(routing Header, floodID FloodID, trace []PathEntry) Packet {
	return Packet{
		Routing: routing,
		Kind:    KindFloodResponse,
		FloodRsp: FloodResponseBody{
			FloodID:   floodID,
			PathTrace: trace,
		},
	}
}

// Droppable reports whether a drone's probabilistic drop policy may apply
// to this packet. Only MsgFragment packets are droppable (spec.md §4.3
// step 5); Ack, Nack, and FloodResponse are never dropped, and FloodRequest
// is short-circuited before the drop check is ever reached.
func (p Packet) Droppable() bool {
	return p.Kind == KindMsgFragment
}

// Clone deep-copies the packet's Routing header and any slice fields so it
// can be safely mutated (e.g. to bump HopIndex) without aliasing the
// sender's copy.
func (p Packet) Clone() Packet {
	c := p
	c.Routing = p.Routing.Clone()
	if p.Flood.PathTrace != nil {
		c.Flood.PathTrace = append([]PathEntry(nil), p.Flood.PathTrace...)
	}
	if p.FloodRsp.PathTrace != nil {
		c.FloodRsp.PathTrace = append([]PathEntry(nil), p.FloodRsp.PathTrace...)
	}
	return c
}
