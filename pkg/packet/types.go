// Package packet defines the wire-format types shared by every node role:
// the source-routed header, the session/fragment identifiers, and the
// tagged-union packet body (spec.md §3, §4.1).
//
// Unlike the teacher's routing.Packet (a raw byte slice with accessor
// methods, optimized for zero-copy wire transfer over a real socket), a
// Packet here never crosses a real network boundary — node-to-node
// delivery is an in-process Go channel send (pkg/fabric) — so the body is
// a plain tagged struct. The two binding wire constraints spec.md §4.1
// calls out (fixed 128-byte fragment buffer, length-prefixed last
// fragment) are still enforced by FragmentPayload itself.
package packet

import "fmt"

// NodeID identifies a node uniquely within one simulation run.
type NodeID uint8

// NodeRole is the role a node plays in the overlay graph.
type NodeRole uint8

const (
	RoleClient NodeRole = iota
	RoleServer
	RoleDrone
)

func (r NodeRole) String() string {
	switch r {
	case RoleClient:
		return "Client"
	case RoleServer:
		return "Server"
	case RoleDrone:
		return "Drone"
	default:
		return fmt.Sprintf("NodeRole(%d)", uint8(r))
	}
}

// SessionID identifies a single high-level message at its originator.
type SessionID uint64

// FragmentIndex is the 0-based index of a fragment within a session.
type FragmentIndex uint64

// FloodID identifies one discovery broadcast at its initiator.
type FloodID uint64

// FragmentCapacity is the fixed wire width of a MsgFragment payload.
const FragmentCapacity = 128

// FragmentPayload is a fixed-width 128-byte buffer; Length gives the valid
// prefix. Only the last fragment of a session may have Length < FragmentCapacity.
type FragmentPayload struct {
	Data   [FragmentCapacity]byte
	Length uint8
}

// Bytes returns the valid prefix of the payload.
func (p FragmentPayload) Bytes() []byte {
	return p.Data[:p.Length]
}

// NewFragmentPayload builds a FragmentPayload from a slice no longer than
// FragmentCapacity, panicking otherwise (a caller bug, not a runtime condition).
func NewFragmentPayload(b []byte) FragmentPayload {
	if len(b) > FragmentCapacity {
		panic("packet: fragment payload exceeds capacity")
	}
	var fp FragmentPayload
	copy(fp.Data[:], b)
	fp.Length = uint8(len(b))
	return fp
}

// PathEntry is one hop recorded in a flood's path trace: the node that
// relayed the flood, and the role it was acting in at the time.
type PathEntry struct {
	Node NodeID
	Role NodeRole
}

// NackType enumerates the reasons a Nack may be raised (spec.md §3).
type NackType int

const (
	NackDropped NackType = iota
	NackErrorInRouting
	NackDestinationIsDrone
	NackUnexpectedRecipient
)

func (t NackType) String() string {
	switch t {
	case NackDropped:
		return "Dropped"
	case NackErrorInRouting:
		return "ErrorInRouting"
	case NackDestinationIsDrone:
		return "DestinationIsDrone"
	case NackUnexpectedRecipient:
		return "UnexpectedRecipient"
	default:
		return fmt.Sprintf("NackType(%d)", int(t))
	}
}

// Nack is the negative-acknowledgement body. At names the drone that raised
// it and is set for every NackType. ProblemNode names the node the failure
// implicates: the unreachable next hop for NackErrorInRouting, and the
// raising drone itself otherwise.
type Nack struct {
	FragmentIndex FragmentIndex
	Type          NackType
	ProblemNode   NodeID
	At            NodeID
}
