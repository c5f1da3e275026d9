package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

func TestAddLinkIsBidirectionalAndIdempotent(t *testing.T) {
	g := New()
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone) // repeat: no-op

	w, ok := g.Weight(1, 2)
	require.True(t, ok)
	assert.Equal(t, 1, w)

	w, ok = g.Weight(2, 1)
	require.True(t, ok)
	assert.Equal(t, 1, w)
}

func TestRemoveNodeDropsIncidentEdges(t *testing.T) {
	g := New()
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(2, packet.RoleDrone, 3, packet.RoleServer)

	g.RemoveNode(2)

	_, ok := g.Weight(1, 2)
	assert.False(t, ok)
	_, ok = g.Weight(2, 3)
	assert.False(t, ok)
	assert.False(t, g.HasNode(2))
}

func TestPenalizeNeverDecreasesAndStopsAfterRemoval(t *testing.T) {
	g := New()
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)

	g.Penalize(1, 2)
	g.Penalize(1, 2)
	w, _ := g.Weight(1, 2)
	assert.Equal(t, 3, w)

	g.RemoveLink(1, 2)
	g.Penalize(1, 2) // no-op: link gone
	_, ok := g.Weight(1, 2)
	assert.False(t, ok)
}

type fakeOracle struct {
	missing map[[2]packet.NodeID]bool
}

func (f fakeOracle) HasLink(from, to packet.NodeID) bool {
	return !f.missing[[2]packet.NodeID{from, to}]
}

func buildLineTopology() *Graph {
	// C1 -- D2 -- D3 -- S4
	g := New()
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(2, packet.RoleDrone, 3, packet.RoleDrone)
	g.AddLink(3, packet.RoleDrone, 4, packet.RoleServer)
	return g
}

func TestBestPathLine(t *testing.T) {
	g := buildLineTopology()
	path, err := g.BestPath(1, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, []packet.NodeID{1, 2, 3, 4}, path)
}

func TestBestPathRoleConstraintRejectsEdgeEndpoints(t *testing.T) {
	g := New()
	// two clients directly linked: illegal per config rules, but the
	// graph itself must still never route *through* a non-drone endpoint.
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(2, packet.RoleDrone, 3, packet.RoleClient)
	g.AddLink(3, packet.RoleClient, 4, packet.RoleServer) // 3 is a Client; can't be an intermediate

	_, err := g.BestPath(1, 4, nil)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestBestPathNoLoopsThroughSource(t *testing.T) {
	g := New()
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(2, packet.RoleDrone, 1, packet.RoleClient) // already covered by AddLink bidirectionality
	g.AddLink(2, packet.RoleDrone, 3, packet.RoleServer)

	path, err := g.BestPath(1, 3, nil)
	require.NoError(t, err)
	assert.NotContains(t, path[1:len(path)-1], packet.NodeID(1))
}

func TestBestPathPrunesStaleFabricEdges(t *testing.T) {
	// Diamond: C1 -- D2 -- S4, C1 -- D3 -- S4. D2 has no live fabric sender.
	g := New()
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(1, packet.RoleClient, 3, packet.RoleDrone)
	g.AddLink(2, packet.RoleDrone, 4, packet.RoleServer)
	g.AddLink(3, packet.RoleDrone, 4, packet.RoleServer)

	oracle := fakeOracle{missing: map[[2]packet.NodeID]bool{{1, 2}: true}}
	path, err := g.BestPath(1, 4, oracle)
	require.NoError(t, err)
	assert.Equal(t, []packet.NodeID{1, 3, 4}, path)
}

func TestBestPathTieBreaksOnHopsThenLexicographic(t *testing.T) {
	g := New()
	// Two equal-weight paths of equal length from 1 to 5: via 2,4 and via 3,4.
	g.AddLink(1, packet.RoleClient, 2, packet.RoleDrone)
	g.AddLink(1, packet.RoleClient, 3, packet.RoleDrone)
	g.AddLink(2, packet.RoleDrone, 4, packet.RoleDrone)
	g.AddLink(3, packet.RoleDrone, 4, packet.RoleDrone)
	g.AddLink(4, packet.RoleDrone, 5, packet.RoleServer)

	path, err := g.BestPath(1, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []packet.NodeID{1, 2, 4, 5}, path)
}

func TestBestPathUnreachableReturnsNoRoute(t *testing.T) {
	g := New()
	g.AddNode(1, packet.RoleClient)
	g.AddNode(2, packet.RoleServer)
	_, err := g.BestPath(1, 2, nil)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestIngestPathTraceIsIdempotent(t *testing.T) {
	g := New()
	trace := []packet.PathEntry{
		{Node: 1, Role: packet.RoleClient},
		{Node: 2, Role: packet.RoleDrone},
		{Node: 4, Role: packet.RoleServer},
	}
	g.IngestPathTrace(trace)
	g.IngestPathTrace(trace)

	assert.Equal(t, 3, g.NodeCount())
	w, ok := g.Weight(1, 2)
	require.True(t, ok)
	assert.Equal(t, 1, w)
}
