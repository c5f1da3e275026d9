package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaecan04/krusty-club/pkg/controller"
	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/packet"
	"github.com/gaecan04/krusty-club/pkg/topology"
)

func newTestEndpoint(t *testing.T, id packet.NodeID, role packet.NodeRole, fab *fabric.Fabric, graph *topology.Graph) (*Endpoint, chan controller.Command, chan SendRequest, chan controller.Event, chan Delivery) {
	t.Helper()
	cmds := make(chan controller.Command, 8)
	appInput := make(chan SendRequest, 8)
	events := make(chan controller.Event, 16)
	delivery := make(chan Delivery, 4)
	log := logrus.New().WithField("test", true)

	ep := New(Config{
		ID:       id,
		Role:     role,
		Fabric:   fab,
		Graph:    graph,
		Shortcut: make(chan packet.Packet, 4),
		Commands: cmds,
		AppInput: appInput,
		Events:   events,
		Delivery: delivery,
		Log:      log,
	})
	return ep, cmds, appInput, events, delivery
}

func runEndpoint(t *testing.T, ep *Endpoint) {
	ctx, cancel := context.WithCancel(context.Background())
	go ep.Run(ctx)
	t.Cleanup(cancel)
}

func TestSendDeliversFragmentToDestination(t *testing.T) {
	fab := fabric.New()
	clientGraph := topology.New()
	clientGraph.AddLink(1, packet.RoleClient, 2, packet.RoleServer)

	client, cmds, appInput, _, _ := newTestEndpoint(t, 1, packet.RoleClient, fab, clientGraph)
	runEndpoint(t, client)

	sendToServer := fab.Connect(1, 2)
	cmds <- controller.Command{Kind: controller.CmdAddSender, Peer: 2, Sender: sendToServer}

	serverInbox := fab.Inbox(2)
	appInput <- SendRequest{Dest: 2, Payload: []byte("hello world")}

	select {
	case got := <-serverInbox:
		assert.Equal(t, packet.KindMsgFragment, got.Kind)
		assert.Equal(t, "hello world", string(got.Fragment.Payload.Bytes()))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fragment at server")
	}
}

func TestFragmentReassemblyDeliversAndAcks(t *testing.T) {
	fab := fabric.New()
	serverGraph := topology.New()
	serverGraph.AddLink(1, packet.RoleClient, 2, packet.RoleServer)

	server, cmds, _, _, delivery := newTestEndpoint(t, 2, packet.RoleServer, fab, serverGraph)
	runEndpoint(t, server)

	sendBack := fab.Connect(2, 1)
	cmds <- controller.Command{Kind: controller.CmdAddSender, Peer: 1, Sender: sendBack}

	ackInbox := fab.Inbox(1)
	hdr := packet.FromPath([]packet.NodeID{1, 2})
	hdr.HopIndex = 1
	p := packet.NewMsgFragment(hdr, 42, 0, 1, packet.NewFragmentPayload([]byte("hi")))
	fab.Connect(1, 2) <- p

	select {
	case d := <-delivery:
		assert.Equal(t, "hi", string(d.Payload))
		assert.Equal(t, packet.SessionID(42), d.Session)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	select {
	case ack := <-ackInbox:
		assert.Equal(t, packet.KindAck, ack.Kind)
		assert.Equal(t, packet.FragmentIndex(0), ack.Ack)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack")
	}
}

func TestNackDroppedPenalizesAndRetransmits(t *testing.T) {
	fab := fabric.New()
	graph := topology.New()
	graph.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	graph.AddLink(2, packet.RoleDrone, 3, packet.RoleServer)

	client, cmds, appInput, _, _ := newTestEndpoint(t, 1, packet.RoleClient, fab, graph)
	runEndpoint(t, client)

	sendToDrone := fab.Connect(1, 2)
	cmds <- controller.Command{Kind: controller.CmdAddSender, Peer: 2, Sender: sendToDrone}
	// The drone's onward link must exist in the fabric too, or BestPath
	// prunes the 2->3 edge and the client floods instead of sending.
	fab.Connect(2, 3)

	droneInbox := fab.Inbox(2)
	appInput <- SendRequest{Dest: 3, Payload: []byte("x")}

	var firstSend packet.Packet
	select {
	case firstSend = <-droneInbox:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial send")
	}

	nackHdr := firstSend.Routing.ReversedPrefix()
	nack := packet.NewNack(nackHdr, firstSend.Session, packet.Nack{
		FragmentIndex: firstSend.Fragment.Index,
		Type:          packet.NackDropped,
		At:            2,
	})
	fab.Connect(2, 1) <- nack

	select {
	case retransmit := <-droneInbox:
		assert.Equal(t, packet.KindMsgFragment, retransmit.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for retransmission")
	}

	w, ok := graph.Weight(1, 2)
	require.True(t, ok)
	assert.Greater(t, w, 1)
}
