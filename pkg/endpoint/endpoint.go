// Package endpoint implements the reliable-delivery loop at client and
// server nodes (spec.md §4.6, C6): outbound fragmentation and session
// tracking, ACK/NACK-driven retransmission, inbound reassembly and ACK
// emission, and the route cache that backs every send.
//
// The node's own receive loop is grounded the same way pkg/drone's is, on
// the teacher's router.Router.Serve dispatch pattern, generalized to the
// five-channel bias order spec.md §9 gives edge nodes: shortcut before
// command before packet before application input before the flood timer.
package endpoint

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/gaecan04/krusty-club/pkg/controller"
	"github.com/gaecan04/krusty-club/pkg/discovery"
	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/packet"
	"github.com/gaecan04/krusty-club/pkg/topology"
)

// RouteCacheSize bounds the LRU route cache every endpoint keeps.
const RouteCacheSize = 256

// SendRequest is the application-input channel's message: "send payload
// to dest", addressed by final NodeID.
type SendRequest struct {
	Dest    packet.NodeID
	Payload []byte
}

// Delivery is what the endpoint hands the application once a message is
// fully reassembled. At names the endpoint that received it, useful when
// several endpoints share one delivery channel (pkg/simnet does).
type Delivery struct {
	At      packet.NodeID
	Origin  packet.NodeID
	Session packet.SessionID
	Payload []byte
}

// Endpoint is one client or server node's reliable-delivery state.
type Endpoint struct {
	id   packet.NodeID
	role packet.NodeRole
	log  *logrus.Entry

	fab   *fabric.Fabric
	graph *topology.Graph

	inbox    <-chan packet.Packet
	shortcut <-chan packet.Packet
	commands <-chan controller.Command
	appInput <-chan SendRequest
	events   chan<- controller.Event
	delivery chan<- Delivery

	neighbors map[packet.NodeID]chan<- packet.Packet
	seen      discovery.SeenSet
	crashed   map[packet.NodeID]bool

	outbound  map[packet.SessionID]*outboundSession
	inbound   map[reassemblyKey]*inboundAssembly
	routes    *lru.Cache
	pending   []SendRequest
	inFlights map[packet.FloodID]*discovery.ActiveFlood

	timer *time.Ticker
}

// Config groups everything Endpoint needs that its owner (pkg/simnet)
// assembles: the shared fabric, this node's local topology view, and the
// four input channels the bias order selects across.
type Config struct {
	ID       packet.NodeID
	Role     packet.NodeRole
	Fabric   *fabric.Fabric
	Graph    *topology.Graph
	Shortcut <-chan packet.Packet
	Commands <-chan controller.Command
	AppInput <-chan SendRequest
	Events   chan<- controller.Event
	Delivery chan<- Delivery
	Log      *logrus.Entry
}

// New constructs an Endpoint from cfg.
func New(cfg Config) *Endpoint {
	routes, err := lru.New(RouteCacheSize)
	if err != nil {
		panic(err) // RouteCacheSize is a positive constant; lru.New only fails on size <= 0
	}
	return &Endpoint{
		id:        cfg.ID,
		role:      cfg.Role,
		log:       cfg.Log.WithField("node", cfg.ID).WithField("role", cfg.Role),
		fab:       cfg.Fabric,
		graph:     cfg.Graph,
		inbox:     cfg.Fabric.Inbox(cfg.ID),
		shortcut:  cfg.Shortcut,
		commands:  cfg.Commands,
		appInput:  cfg.AppInput,
		events:    cfg.Events,
		delivery:  cfg.Delivery,
		neighbors: make(map[packet.NodeID]chan<- packet.Packet),
		seen:      make(discovery.SeenSet),
		crashed:   make(map[packet.NodeID]bool),
		outbound:  make(map[packet.SessionID]*outboundSession),
		inbound:   make(map[reassemblyKey]*inboundAssembly),
		routes:    routes,
		inFlights: make(map[packet.FloodID]*discovery.ActiveFlood),
		timer:     time.NewTicker(discovery.DefaultTimeout / 4),
	}
}

// Run is the endpoint's whole lifetime.
func (e *Endpoint) Run(ctx context.Context) {
	defer e.timer.Stop()
	for {
		if e.step(ctx) {
			return
		}
	}
}

// step processes exactly one event, honoring the shortcut > command >
// packet > application-input > timer bias order via a non-blocking
// precheck chain before falling back to a blocking multi-way select.
func (e *Endpoint) step(ctx context.Context) (stop bool) {
	select {
	case p := <-e.shortcut:
		e.handlePacket(p)
		return false
	default:
	}
	select {
	case cmd := <-e.commands:
		e.handleCommand(cmd)
		return false
	default:
	}
	select {
	case p := <-e.inbox:
		e.handlePacket(p)
		return false
	default:
	}
	select {
	case req := <-e.appInput:
		e.send(req)
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return true
	case p := <-e.shortcut:
		e.handlePacket(p)
	case cmd := <-e.commands:
		e.handleCommand(cmd)
	case p := <-e.inbox:
		e.handlePacket(p)
	case req := <-e.appInput:
		e.send(req)
	case <-e.timer.C:
		e.retryPending()
	}
	return false
}

func (e *Endpoint) handleCommand(cmd controller.Command) {
	switch cmd.Kind {
	case controller.CmdAddSender:
		e.neighbors[cmd.Peer] = cmd.Sender
	case controller.CmdAddLink:
		e.neighbors[cmd.Peer] = cmd.Sender
		e.graph.AddLink(e.id, e.role, cmd.Peer, cmd.Role)
	case controller.CmdRemoveSender:
		delete(e.neighbors, cmd.Peer)
	case controller.CmdNodeCrashed:
		e.crashed[cmd.Peer] = true
	case controller.CmdFloodRequired:
		e.startFlood()
	}
}

func (e *Endpoint) reportEvent(kind controller.EventKind, p packet.Packet) {
	select {
	case e.events <- controller.Event{Kind: kind, Node: e.id, Packet: p}:
	default:
		e.log.Warn("event channel full, dropping controller report")
	}
}

func (e *Endpoint) reportShortcut(p packet.Packet) {
	e.reportEvent(controller.EventControllerShortcut, p)
}

func (e *Endpoint) sendOnLink(next packet.NodeID, p packet.Packet) {
	sender, ok := e.neighbors[next]
	if !ok {
		e.reportShortcut(p)
		return
	}
	sender <- p
	e.reportEvent(controller.EventPacketSent, p)
}
