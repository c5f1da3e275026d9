// Package simnet wires a parsed network configuration into a running
// simulation: one goroutine per node (drone or reliable endpoint), the
// shared fabric and controller that glue them together, and the channels
// an embedder uses to inject application traffic and observe results.
//
// This is the Go counterpart of the original Rust simulator's network
// initializer (original_source/src/network/initializer.rs), folded here
// the way the teacher's pkg/node glues transport.Manager, router.Router,
// and setup.Node into one running visor.
package simnet

import (
	"context"
	"fmt"
	"sort"

	"github.com/gaecan04/krusty-club/pkg/controller"
	"github.com/gaecan04/krusty-club/pkg/drone"
	"github.com/gaecan04/krusty-club/pkg/endpoint"
	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/netconfig"
	"github.com/gaecan04/krusty-club/pkg/packet"
	"github.com/gaecan04/krusty-club/pkg/simlog"
	"github.com/gaecan04/krusty-club/pkg/topology"
)

// commandBufferSize bounds every node's controller command channel.
const commandBufferSize = 32

// Simulation is every live node goroutine plus the shared infrastructure
// (fabric, controller) that connects them, built once from a
// netconfig.NetworkConfig and then run until its context is cancelled.
type Simulation struct {
	log  *simlog.Master
	fab  *fabric.Fabric
	ctrl *controller.Controller

	drones    map[packet.NodeID]*drone.Drone
	endpoints map[packet.NodeID]*endpoint.Endpoint
	appInputs map[packet.NodeID]chan endpoint.SendRequest
	roles     map[packet.NodeID]packet.NodeRole

	delivery chan endpoint.Delivery
	runCtx   context.Context
}

// Build constructs every node and wires the topology cfg describes, but
// starts no goroutines yet; call Run to start the simulation.
func Build(cfg *netconfig.NetworkConfig, log *simlog.Master) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim := &Simulation{
		log:       log,
		fab:       fabric.New(),
		drones:    make(map[packet.NodeID]*drone.Drone),
		endpoints: make(map[packet.NodeID]*endpoint.Endpoint),
		appInputs: make(map[packet.NodeID]chan endpoint.SendRequest),
		roles:     make(map[packet.NodeID]packet.NodeRole),
		delivery:  make(chan endpoint.Delivery, 256),
	}
	sim.ctrl = controller.New(sim.fab, log.PackageLogger("controller"), sim.spawnDrone)
	sim.runCtx = context.Background()

	for _, d := range cfg.Drone {
		sim.addDrone(d.ID, d.Pdr)
	}
	for _, cl := range cfg.Client {
		sim.addEndpoint(cl.ID, packet.RoleClient)
	}
	for _, s := range cfg.Server {
		sim.addEndpoint(s.ID, packet.RoleServer)
	}

	for _, e := range edges(cfg) {
		if err := sim.ctrl.AddLink(e.a, e.ra, e.b, e.rb); err != nil {
			return nil, fmt.Errorf("simnet: wiring edge %d-%d: %w", e.a, e.b, err)
		}
	}

	return sim, nil
}

func (s *Simulation) addDrone(id packet.NodeID, pdr float64) {
	cmds := make(chan controller.Command, commandBufferSize)
	d := drone.New(id, pdr, s.fab, cmds, s.ctrl.Events(), s.log.NodeLogger("drone", uint8(id)))
	s.drones[id] = d
	s.roles[id] = packet.RoleDrone
	s.ctrl.RegisterNode(id, packet.RoleDrone, cmds, nil)
}

func (s *Simulation) addEndpoint(id packet.NodeID, role packet.NodeRole) {
	cmds := make(chan controller.Command, commandBufferSize)
	shortcut := make(chan packet.Packet, commandBufferSize)
	appInput := make(chan endpoint.SendRequest, commandBufferSize)

	ep := endpoint.New(endpoint.Config{
		ID:       id,
		Role:     role,
		Fabric:   s.fab,
		Graph:    topology.New(),
		Shortcut: shortcut,
		Commands: cmds,
		AppInput: appInput,
		Events:   s.ctrl.Events(),
		Delivery: s.delivery,
		Log:      s.log.NodeLogger(roleTag(role), uint8(id)),
	})

	s.endpoints[id] = ep
	s.appInputs[id] = appInput
	s.roles[id] = role
	s.ctrl.RegisterNode(id, role, cmds, shortcut)
}

func roleTag(role packet.NodeRole) string {
	switch role {
	case packet.RoleClient:
		return "client"
	case packet.RoleServer:
		return "server"
	default:
		return "drone"
	}
}

// edgeEntry is one undirected link between two configured nodes, with both
// endpoints' roles attached so the caller never has to look them up
// separately.
type edgeEntry struct {
	a, b   packet.NodeID
	ra, rb packet.NodeRole
}

// edges returns every link cfg declares exactly once (the config lists
// each bidirectional edge from both ends; this collapses duplicates).
func edges(cfg *netconfig.NetworkConfig) []edgeEntry {
	roles := make(map[packet.NodeID]packet.NodeRole)
	for _, d := range cfg.Drone {
		roles[d.ID] = packet.RoleDrone
	}
	for _, c := range cfg.Client {
		roles[c.ID] = packet.RoleClient
	}
	for _, s := range cfg.Server {
		roles[s.ID] = packet.RoleServer
	}

	seen := make(map[[2]packet.NodeID]bool)
	var out []edgeEntry
	addAll := func(id packet.NodeID, neighbors []packet.NodeID) {
		for _, n := range neighbors {
			key := [2]packet.NodeID{id, n}
			if id > n {
				key = [2]packet.NodeID{n, id}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, edgeEntry{a: id, b: n, ra: roles[id], rb: roles[n]})
		}
	}
	for _, d := range cfg.Drone {
		addAll(d.ID, d.ConnectedNodeIDs)
	}
	for _, c := range cfg.Client {
		addAll(c.ID, c.ConnectedNodeIDs)
	}
	for _, s := range cfg.Server {
		addAll(s.ID, s.ConnectedNodeIDs)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].a != out[j].a {
			return out[i].a < out[j].a
		}
		return out[i].b < out[j].b
	})
	return out
}

// spawnDrone is the controller.SpawnFunc this simulation hands its
// controller: it builds and starts a brand-new drone goroutine, handing
// back the command channel the controller should address it through from
// then on.
func (s *Simulation) spawnDrone(id packet.NodeID, pdr float64, neighbors []packet.NodeID) (chan<- controller.Command, error) {
	cmds := make(chan controller.Command, commandBufferSize)
	d := drone.New(id, pdr, s.fab, cmds, s.ctrl.Events(), s.log.NodeLogger("drone", uint8(id)))
	s.drones[id] = d
	s.roles[id] = packet.RoleDrone
	go d.Run(s.runCtx)
	return cmds, nil
}

// Run starts every node's goroutine and the controller's own event loop,
// and blocks until ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) {
	s.runCtx = ctx
	go s.ctrl.Run(ctx)
	for _, d := range s.drones {
		go d.Run(ctx)
	}
	for _, ep := range s.endpoints {
		go ep.Run(ctx)
	}
	<-ctx.Done()
}

// Send enqueues an application payload for delivery from a live client or
// server to dest.
func (s *Simulation) Send(from, dest packet.NodeID, payload []byte) error {
	ch, ok := s.appInputs[from]
	if !ok {
		return fmt.Errorf("simnet: node %d is not a live client or server", from)
	}
	select {
	case ch <- endpoint.SendRequest{Dest: dest, Payload: payload}:
		return nil
	default:
		return fmt.Errorf("simnet: application input channel for node %d is full", from)
	}
}

// Deliveries returns the channel every endpoint's fully reassembled
// inbound message arrives on.
func (s *Simulation) Deliveries() <-chan endpoint.Delivery {
	return s.delivery
}

// Events returns a fresh subscription to the controller's event stream.
func (s *Simulation) Events() <-chan controller.Event {
	return s.ctrl.Subscribe()
}

// Controller exposes the underlying controller, so a caller can issue
// topology mutations directly or serve it read-only through
// pkg/controller/statusapi.
func (s *Simulation) Controller() *controller.Controller {
	return s.ctrl
}
