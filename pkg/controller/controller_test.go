package controller

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaecan04/krusty-club/pkg/fabric"
	"github.com/gaecan04/krusty-club/pkg/packet"
)

func testController(t *testing.T) (*Controller, map[packet.NodeID]chan Command) {
	t.Helper()
	fab := fabric.New()
	log := logrus.New().WithField("test", true)
	ctrl := New(fab, log, nil)

	chans := make(map[packet.NodeID]chan Command)
	register := func(id packet.NodeID, role packet.NodeRole, shortcut bool) {
		ch := make(chan Command, 16)
		chans[id] = ch
		var sc chan packet.Packet
		if shortcut {
			sc = make(chan packet.Packet, 8)
		}
		ctrl.RegisterNode(id, role, ch, sc)
	}

	register(1, packet.RoleClient, true)
	register(2, packet.RoleDrone, false)
	register(3, packet.RoleDrone, false)
	register(4, packet.RoleServer, true)

	require.NoError(t, ctrl.AddLink(1, packet.RoleClient, 2, packet.RoleDrone))
	require.NoError(t, ctrl.AddLink(2, packet.RoleDrone, 3, packet.RoleDrone))
	require.NoError(t, ctrl.AddLink(3, packet.RoleDrone, 4, packet.RoleServer))
	// Second drone neighbor for the server, per the minimum-degree invariant.
	register(5, packet.RoleDrone, false)
	require.NoError(t, ctrl.AddLink(5, packet.RoleDrone, 4, packet.RoleServer))
	require.NoError(t, ctrl.AddLink(2, packet.RoleDrone, 5, packet.RoleDrone))
	// Third drone neighbor for the server, so it still has two after drone 3
	// is crashed.
	register(6, packet.RoleDrone, false)
	require.NoError(t, ctrl.AddLink(6, packet.RoleDrone, 4, packet.RoleServer))
	require.NoError(t, ctrl.AddLink(5, packet.RoleDrone, 6, packet.RoleDrone))

	// Drain the AddSender commands issued by setup so later assertions only
	// see commands from the action under test.
	for _, ch := range chans {
		for {
			select {
			case <-ch:
			default:
				goto next
			}
		}
	next:
	}

	return ctrl, chans
}

func TestAddLinkSendsAddLinkToEdgeNodeAndAddSenderToDrone(t *testing.T) {
	fab := fabric.New()
	log := logrus.New().WithField("test", true)
	ctrl := New(fab, log, nil)

	chA := make(chan Command, 4)
	chB := make(chan Command, 4)
	ctrl.RegisterNode(1, packet.RoleClient, chA, nil)
	ctrl.RegisterNode(2, packet.RoleDrone, chB, nil)

	require.NoError(t, ctrl.AddLink(1, packet.RoleClient, 2, packet.RoleDrone))

	cmdA := <-chA
	assert.Equal(t, CmdAddLink, cmdA.Kind)
	assert.Equal(t, packet.NodeID(2), cmdA.Peer)
	assert.Equal(t, packet.RoleDrone, cmdA.Role)
	assert.NotNil(t, cmdA.Sender)

	cmdB := <-chB
	assert.Equal(t, CmdAddSender, cmdB.Kind)
	assert.Equal(t, packet.NodeID(1), cmdB.Peer)
}

func TestAddLinkBetweenTwoDronesSendsAddSenderToBoth(t *testing.T) {
	fab := fabric.New()
	log := logrus.New().WithField("test", true)
	ctrl := New(fab, log, nil)

	chA := make(chan Command, 4)
	chB := make(chan Command, 4)
	ctrl.RegisterNode(2, packet.RoleDrone, chA, nil)
	ctrl.RegisterNode(3, packet.RoleDrone, chB, nil)

	require.NoError(t, ctrl.AddLink(2, packet.RoleDrone, 3, packet.RoleDrone))

	cmdA := <-chA
	assert.Equal(t, CmdAddSender, cmdA.Kind)
	assert.Equal(t, packet.NodeID(3), cmdA.Peer)

	cmdB := <-chB
	assert.Equal(t, CmdAddSender, cmdB.Kind)
	assert.Equal(t, packet.NodeID(2), cmdB.Peer)
}

func TestCrashRejectedWhenItWouldStrandServer(t *testing.T) {
	ctrl, _ := testController(t)
	// Server 4 has drone neighbors 3, 5 and 6; crashing 3 still leaves it
	// with 5 and 6, so this crash is fine...
	assert.True(t, ctrl.IsCrashAllowed(3))
	// ...but once 3 is gone, crashing 5 as well would leave it with 6 alone.
	require.NoError(t, ctrl.Crash(3))
	assert.False(t, ctrl.IsCrashAllowed(5))
}

func TestCrashRemovesNodeAndSendsCrashCommand(t *testing.T) {
	ctrl, chans := testController(t)
	require.NoError(t, ctrl.Crash(3))

	assert.False(t, ctrl.Graph().HasNode(3))

	// Crashing 3 first removes its links (a RemoveSender per neighbor)
	// before the Crash command itself, so scan past those.
	var sawCrash bool
	for _, cmd := range drainAvailable(chans[3]) {
		if cmd.Kind == CmdCrash {
			sawCrash = true
		}
	}
	assert.True(t, sawCrash, "expected a CmdCrash command to node 3")

	// Every other live node should have learned 3 is gone for good.
	cmd1 := <-chans[1]
	assert.Equal(t, CmdNodeCrashed, cmd1.Kind)
	assert.Equal(t, packet.NodeID(3), cmd1.Peer)
}

// drainAvailable collects every command already queued on ch without
// blocking once it runs dry.
func drainAvailable(ch chan Command) []Command {
	var out []Command
	for {
		select {
		case cmd := <-ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func TestCrashRejectsNonDroneNode(t *testing.T) {
	ctrl, _ := testController(t)
	err := ctrl.Crash(1)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestRemoveLinkRejectedWhenItWouldStrandClient(t *testing.T) {
	ctrl, _ := testController(t)
	// Client 1 has a single drone neighbor, node 2: removing it would
	// violate the minimum client degree invariant.
	err := ctrl.RemoveLink(1, 2)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestShortcutRescueDeliversToOrigin(t *testing.T) {
	fab := fabric.New()
	log := logrus.New().WithField("test", true)
	ctrl := New(fab, log, nil)

	shortcutCh := make(chan packet.Packet, 4)
	ctrl.RegisterNode(1, packet.RoleClient, make(chan Command, 1), shortcutCh)

	// A Nack drone 2 raised on its way back to client 1, the origin of the
	// NACKed message and the Nack's final hop.
	hdr := packet.FromPath([]packet.NodeID{2, 1})
	p := packet.NewNack(hdr, 7, packet.Nack{Type: packet.NackDropped, At: 2})

	ctrl.rescueViaShortcut(p)

	select {
	case got := <-shortcutCh:
		assert.Equal(t, p.Kind, got.Kind)
	default:
		t.Fatal("expected packet on shortcut channel")
	}
}

func TestSubscribeReceivesFanOutEvents(t *testing.T) {
	fab := fabric.New()
	log := logrus.New().WithField("test", true)
	ctrl := New(fab, log, nil)

	sub := ctrl.Subscribe()
	ctrl.handleEvent(Event{Kind: EventPacketSent, Node: 1})
	ctrl.fanOut(Event{Kind: EventPacketSent, Node: 1})

	select {
	case e := <-sub:
		assert.Equal(t, EventPacketSent, e.Kind)
	default:
		t.Fatal("expected a fanned-out event")
	}
}
