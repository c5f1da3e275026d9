package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/packet"
	"github.com/gaecan04/krusty-club/pkg/topology"
)

// ErrInvariantViolation is returned when a requested topology mutation
// would break one of the connectivity guarantees spec.md §4.7 requires.
var ErrInvariantViolation = errors.New("controller: invariant violation")

// SpawnFunc creates and starts a brand-new drone goroutine with the given
// id, pdr, and initial neighbors, returning the command channel the
// controller should use to reach it from then on. It is supplied by
// whatever owns the node goroutines (pkg/simnet) — the controller itself
// only decides *whether* a spawn is allowed and wires the result into its
// own bookkeeping, the same separation of concerns the teacher's Router
// uses for its setupCallbacks/appCallbacks indirection.
type SpawnFunc func(id packet.NodeID, pdr float64, neighbors []packet.NodeID) (chan<- Command, error)

// Controller is the supervising controller of spec.md §4.7: it owns the
// command channel to every live node, the shortcut channel to every edge
// node, its own mirror of the overlay topology used purely for invariant
// checks, and the inbound event stream nodes report to.
type Controller struct {
	log *logrus.Entry

	fab   *fabric.Fabric
	graph *topology.Graph
	spawn SpawnFunc

	mu        sync.Mutex
	commands  map[packet.NodeID]chan Command
	shortcuts map[packet.NodeID]chan packet.Packet

	events      chan Event
	subMu       sync.Mutex
	subscribers []chan Event
}

// New constructs a Controller. spawn may be nil if SpawnDrone is never
// called (e.g. a fixed-topology simulation run from a config file that
// never issues runtime spawns).
func New(fab *fabric.Fabric, log *logrus.Entry, spawn SpawnFunc) *Controller {
	return &Controller{
		log:       log,
		fab:       fab,
		graph:     topology.New(),
		spawn:     spawn,
		commands:  make(map[packet.NodeID]chan Command),
		shortcuts: make(map[packet.NodeID]chan packet.Packet),
		events:    make(chan Event, 256),
	}
}

// Graph exposes the controller's own topology mirror. It returns the live
// graph, not a copy, and topology.Graph's mutation methods are exported;
// tests and pkg/controller/statusapi only read from it.
func (c *Controller) Graph() *topology.Graph {
	return c.graph
}

// RegisterNode tells the controller about a live node's command channel
// and role, and — for edge nodes — its shortcut channel. Drones have no
// shortcut channel (spec.md §4.2: only edge nodes get one).
func (c *Controller) RegisterNode(id packet.NodeID, role packet.NodeRole, cmdCh chan Command, shortcutCh chan packet.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands[id] = cmdCh
	if shortcutCh != nil {
		c.shortcuts[id] = shortcutCh
	}
	c.graph.AddNode(id, role)
}

// shortcut returns the send side of id's shortcut channel, used internally
// when rescuing a ControllerShortcut event (spec.md scenario 6).
func (c *Controller) shortcut(id packet.NodeID) (chan<- packet.Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.shortcuts[id]
	return ch, ok
}

func (c *Controller) command(id packet.NodeID) (chan Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.commands[id]
	return ch, ok
}

// Events returns the channel nodes should send their PacketSent /
// PacketDropped / ControllerShortcut reports on.
func (c *Controller) Events() chan<- Event {
	return c.events
}

// Subscribe returns a fresh, independently-buffered channel that receives
// a copy of every event the controller processes — an observability hook
// the original Rust controller offered its GUI via a crossbeam_channel
// fan-out (SC_backend.rs); here it is equally useful for tests and the
// debug status API (pkg/controller/statusapi) to watch traffic live.
func (c *Controller) Subscribe() <-chan Event {
	ch := make(chan Event, 256)
	c.subMu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.subMu.Unlock()
	return ch
}

func (c *Controller) fanOut(e Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, sub := range c.subscribers {
		select {
		case sub <- e:
		default: // a slow observer must not stall the controller
		}
	}
}

// Run processes events until ctx is cancelled. It is the controller's
// single-threaded loop, the counterpart to each node's own receive loop.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-c.events:
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			c.handleEvent(e)
			c.fanOut(e)
		}
	}
}

func (c *Controller) handleEvent(e Event) {
	switch e.Kind {
	case EventPacketSent:
		c.log.WithField("node", e.Node).Debugf("packet sent: session=%d kind=%s", e.Packet.Session, e.Packet.Kind)
	case EventPacketDropped:
		c.log.WithField("node", e.Node).Debugf("packet dropped: session=%d kind=%s", e.Packet.Session, e.Packet.Kind)
	case EventControllerShortcut:
		c.rescueViaShortcut(e.Packet)
	}
}

// rescueViaShortcut implements spec.md scenario 6: a drone could not
// forward a non-droppable control packet because its next hop is gone, so
// it asked the controller to deliver it to the packet's final destination
// via that edge node's shortcut channel instead.
func (c *Controller) rescueViaShortcut(p packet.Packet) {
	dest := p.Routing.Destination()
	ch, ok := c.shortcut(dest)
	if !ok {
		c.log.WithField("node", dest).Warn("controller shortcut rescue failed: no shortcut channel registered")
		return
	}
	select {
	case ch <- p:
	default:
		c.log.WithField("node", dest).Warn("controller shortcut rescue failed: shortcut channel full")
	}
}

// sendCommand delivers cmd to peer's command channel, stamping a fresh
// correlation ID and logging the attempt. It never blocks indefinitely
// (spec.md §5 backpressure rule): a full command channel is a logged
// failure, not a hang.
func (c *Controller) sendCommand(peer packet.NodeID, cmd Command) error {
	cmd.ID = uuid.New()
	ch, ok := c.command(peer)
	if !ok {
		return fmt.Errorf("controller: no command channel registered for node %d", peer)
	}
	select {
	case ch <- cmd:
		c.log.WithField("node", peer).WithField("cmd", cmd.Kind).WithField("corr", cmd.ID).Debug("command sent")
		return nil
	default:
		return fmt.Errorf("controller: command channel for node %d is full", peer)
	}
}

// AddLink installs a bidirectional link between a and b: a fabric channel
// in each direction, and the corresponding graph edges in the controller's
// own topology mirror. A side that is a Client or Server receives the
// combined AddLink command of spec.md §4.7 ("installs both sender and
// graph edge"), since only edge nodes keep a local topology.Graph; a side
// that is a Drone receives a plain AddSender, as drones route on
// Header/PDR alone and have no local graph to update.
func (c *Controller) AddLink(a packet.NodeID, roleA packet.NodeRole, b packet.NodeID, roleB packet.NodeRole) error {
	aToB := c.fab.Connect(a, b)
	bToA := c.fab.Connect(b, a)

	if err := c.installLink(a, roleA, b, roleB, aToB); err != nil {
		return err
	}
	if err := c.installLink(b, roleB, a, roleA, bToA); err != nil {
		return err
	}

	c.graph.AddLink(a, roleA, b, roleB)
	c.broadcastFloodRequired()
	return nil
}

// installLink tells node to start sending to peer over sender. An edge
// node (Client or Server) gets the spec.md §4.7 AddLink command, which
// also installs the peer's graph edge locally; a Drone gets a plain
// AddSender, the same command SpawnDrone uses to wire a new drone's links.
func (c *Controller) installLink(node packet.NodeID, nodeRole packet.NodeRole, peer packet.NodeID, peerRole packet.NodeRole, sender chan<- packet.Packet) error {
	if nodeRole == packet.RoleClient || nodeRole == packet.RoleServer {
		return c.sendCommand(node, Command{Kind: CmdAddLink, Peer: peer, Sender: sender, Role: peerRole})
	}
	return c.sendCommand(node, Command{Kind: CmdAddSender, Peer: peer, Sender: sender})
}

// RemoveSender removes the a->b fabric channel and tells a to drop its
// sender to b. The controller's own graph link between a and b is also
// removed, in both directions (topology.Graph.RemoveLink has no one-way
// form), so invariant checks stay accurate.
func (c *Controller) RemoveSender(a, b packet.NodeID) error {
	c.fab.Disconnect(a, b)
	c.graph.RemoveLink(a, b)
	return c.sendCommand(a, Command{Kind: CmdRemoveSender, Peer: b})
}

// RemoveLink removes the link between a and b in both directions, but
// only if doing so would not violate IsRemovalAllowed.
func (c *Controller) RemoveLink(a, b packet.NodeID) error {
	if !c.IsRemovalAllowed(a, b) {
		return fmt.Errorf("%w: removing the link between %d and %d would disconnect the drone subgraph or strand an edge node", ErrInvariantViolation, a, b)
	}
	if err := c.removeLinkUnchecked(a, b); err != nil {
		return err
	}
	c.broadcastFloodRequired()
	return nil
}

func (c *Controller) removeLinkUnchecked(a, b packet.NodeID) error {
	if err := c.RemoveSender(a, b); err != nil {
		return err
	}
	return c.RemoveSender(b, a)
}

// SetPdr replaces a drone's packet drop rate. p must be in [0, 1].
func (c *Controller) SetPdr(drone packet.NodeID, p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("controller: invalid pdr %v", p)
	}
	return c.sendCommand(drone, Command{Kind: CmdSetPdr, Pdr: p})
}

// Crash tears a drone down: it is only accepted if IsCrashAllowed holds.
// On acceptance, every link incident to the drone is removed, a Crash
// command is sent to it, every other live node is told CmdNodeCrashed so
// its own topology view can tell a deliberate crash apart from an ordinary
// link failure (spec.md §9's ErrorInRouting policy), and the drone is
// dropped from the controller's graph.
func (c *Controller) Crash(drone packet.NodeID) error {
	if !c.IsCrashAllowed(drone) {
		return fmt.Errorf("%w: crashing drone %d would disconnect the drone subgraph or strand an edge node", ErrInvariantViolation, drone)
	}

	for _, neighbor := range c.graph.Neighbors(drone) {
		if err := c.removeLinkUnchecked(drone, neighbor); err != nil {
			c.log.WithError(err).Warn("failed to remove link while crashing drone")
		}
	}

	if err := c.sendCommand(drone, Command{Kind: CmdCrash}); err != nil {
		return err
	}
	c.broadcastNodeCrashed(drone)

	c.graph.RemoveNode(drone)
	c.broadcastFloodRequired()
	return nil
}

// broadcastFloodRequired implements spec.md §4.7's "after any accepted
// mutation, the controller broadcasts an application-layer FloodRequired
// hint to edge nodes" rule: every live Client/Server is told to run
// discovery afresh, since the controller's own graph mirror has just
// diverged from theirs.
func (c *Controller) broadcastFloodRequired() {
	for _, id := range c.graph.NodesByRole(packet.RoleClient) {
		if err := c.sendCommand(id, Command{Kind: CmdFloodRequired}); err != nil {
			c.log.WithError(err).WithField("node", id).Warn("failed to deliver flood-required hint")
		}
	}
	for _, id := range c.graph.NodesByRole(packet.RoleServer) {
		if err := c.sendCommand(id, Command{Kind: CmdFloodRequired}); err != nil {
			c.log.WithError(err).WithField("node", id).Warn("failed to deliver flood-required hint")
		}
	}
}

// broadcastNodeCrashed tells every other registered node that drone is
// gone for good, so a later ErrorInRouting NACK naming it can be resolved
// as a node removal rather than a mere link penalty.
func (c *Controller) broadcastNodeCrashed(drone packet.NodeID) {
	c.mu.Lock()
	peers := make([]packet.NodeID, 0, len(c.commands))
	for id := range c.commands {
		if id != drone {
			peers = append(peers, id)
		}
	}
	c.mu.Unlock()

	for _, peer := range peers {
		if err := c.sendCommand(peer, Command{Kind: CmdNodeCrashed, Peer: drone}); err != nil {
			c.log.WithError(err).WithField("node", peer).Warn("failed to deliver node-crashed notice")
		}
	}
}

// SpawnDrone validates the new drone's connectivity, then delegates the
// actual goroutine creation to the injected SpawnFunc, and finally wires
// the resulting command channel and graph edges in exactly the same way
// AddLink does for an existing node.
func (c *Controller) SpawnDrone(id packet.NodeID, pdr float64, neighbors []packet.NodeID) error {
	if c.spawn == nil {
		return fmt.Errorf("controller: no spawn function configured")
	}
	if err := c.ValidateNewDrone(id, neighbors); err != nil {
		return err
	}

	cmdCh, err := c.spawn(id, pdr, neighbors)
	if err != nil {
		return fmt.Errorf("controller: spawn failed: %w", err)
	}

	c.mu.Lock()
	c.commands[id] = asChanCommand(cmdCh)
	c.mu.Unlock()
	c.graph.AddNode(id, packet.RoleDrone)

	for _, n := range neighbors {
		role, _ := c.graph.Role(n)
		if err := c.AddLink(id, packet.RoleDrone, n, role); err != nil {
			return err
		}
	}
	return nil
}

// asChanCommand adapts the send-only channel SpawnFunc returns to the
// bidirectional type the internal registry stores: it returns a new
// unbuffered channel and starts a goroutine that forwards every command
// sent on it to ch.
func asChanCommand(ch chan<- Command) chan Command {
	bidi := make(chan Command)
	go func() {
		for cmd := range bidi {
			ch <- cmd
		}
	}()
	return bidi
}
