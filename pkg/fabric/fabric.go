// Package fabric implements the node channel fabric (spec.md §4.2, C2): the
// links between directly connected nodes (every link into a node writes to
// that node's one shared inbox channel), and the process-wide shared_senders registry that lets a node's routing
// engine prune edges whose underlying channel no longer exists.
//
// Design note 9 of spec.md calls for an explicit Fabric object rather than
// hidden package-level mutable state, in the same spirit as the teacher's
// transport.Manager: a registry keyed by an identifier, guarded by one
// mutex, that owns the channel endpoints while individual nodes only ever
// hold borrowed views of them.
package fabric

import (
	"sync"
	"sync/atomic"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

// DefaultBufferSize is the channel capacity used for every link unless a
// caller asks for something else. The simulator is not modelling bounded
// backpressure (spec.md §5 assumes channels are bounded or lossless by
// construction), so a generous buffer is enough to keep sends
// non-blocking under normal load.
const DefaultBufferSize = 64

// Link identifies a directed, ordered pair of nodes: the existence entry
// that says `From` is currently allowed to deliver packets to `To`.
type Link struct {
	From packet.NodeID
	To   packet.NodeID
}

// Fabric is the process-wide registry of per-node inboxes, the directed
// links currently permitted between them, and the monotonic session/flood
// counters spec.md design note 9 says must not be hidden globals.
//
// Every node has exactly one inbox channel, regardless of how many
// neighbors feed it: this is what lets each node's own receive loop use a
// single static select statement (spec.md §9's shortcut/command/packet/
// timer priority order) instead of fanning in a dynamically changing set
// of per-neighbor channels. A directed Link only records whether `From`
// is currently allowed to write into `To`'s inbox; it is not itself a
// distinct channel.
type Fabric struct {
	mu      sync.RWMutex
	inboxes map[packet.NodeID]chan packet.Packet
	links   map[Link]struct{}
	session atomic.Uint64
	flood   atomic.Uint64
}

// New returns an empty Fabric.
func New() *Fabric {
	return &Fabric{
		inboxes: make(map[packet.NodeID]chan packet.Packet),
		links:   make(map[Link]struct{}),
	}
}

func (f *Fabric) inboxLocked(id packet.NodeID) chan packet.Packet {
	ch, ok := f.inboxes[id]
	if !ok {
		ch = make(chan packet.Packet, DefaultBufferSize)
		f.inboxes[id] = ch
	}
	return ch
}

// Inbox returns (creating it if necessary) the single channel a node
// should read every inbound packet from, no matter which neighbor sent it.
func (f *Fabric) Inbox(id packet.NodeID) chan packet.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inboxLocked(id)
}

// Connect records that `from` may deliver packets to `to`, creating `to`'s
// inbox if this is its first link, and returns the send-only view `from`
// should keep and use whenever it wants to reach `to`.
func (f *Fabric) Connect(from, to packet.NodeID) chan<- packet.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.links[Link{From: from, To: to}] = struct{}{}
	return f.inboxLocked(to)
}

// Sender returns the send-only view of the from->to link, and whether it
// currently exists. The routing engine (pkg/topology) reaches it through
// HasLink to prune edges before a path search, per spec.md §4.4.
func (f *Fabric) Sender(from, to packet.NodeID) (chan<- packet.Packet, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, ok := f.links[Link{From: from, To: to}]; !ok {
		return nil, false
	}
	return f.inboxes[to], true
}

// HasLink reports whether a from->to link is currently registered.
func (f *Fabric) HasLink(from, to packet.NodeID) bool {
	_, ok := f.Sender(from, to)
	return ok
}

// Disconnect removes the from->to registry entry. The shared inbox
// channel itself is left alone — other neighbors may still be delivering
// into it, and the receiving node may still be draining it (spec.md §4.3,
// Crash mode) — so nothing is ever closed here.
func (f *Fabric) Disconnect(from, to packet.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, Link{From: from, To: to})
}

// NextSessionID returns a fresh, process-wide monotonically increasing
// SessionID. Uniqueness across originators is guaranteed by the counter
// itself; the reassembly key (session, originator) at the destination
// additionally guards against two originators that raced for the same
// number under a weaker allocator.
func (f *Fabric) NextSessionID() packet.SessionID {
	return packet.SessionID(f.session.Add(1))
}

// NextFloodID returns a fresh, process-wide monotonically increasing FloodID.
func (f *Fabric) NextFloodID() packet.FloodID {
	return packet.FloodID(f.flood.Add(1))
}
