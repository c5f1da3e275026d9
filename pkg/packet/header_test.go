package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderReversed(t *testing.T) {
	h := FromPath([]NodeID{1, 2, 3, 4})
	h.HopIndex = 3 // arrived at destination

	rev := h.Reversed()
	assert.Equal(t, []NodeID{4, 3, 2, 1}, rev.Hops)
	assert.Equal(t, uint8(1), rev.HopIndex)

	// reverse(reverse(hops)) == hops (spec.md §8 round-trip law)
	back := rev.Reversed()
	assert.Equal(t, h.Hops, back.Hops)
}

func TestHeaderReversedPrefix(t *testing.T) {
	h := FromPath([]NodeID{1, 2, 3, 4})
	h.HopIndex = 2 // rejected at node 3, before forwarding

	rev := h.ReversedPrefix()
	assert.Equal(t, []NodeID{3, 2, 1}, rev.Hops)
	assert.Equal(t, uint8(1), rev.HopIndex)
}

func TestHeaderCloneIsIndependent(t *testing.T) {
	h := FromPath([]NodeID{1, 2, 3})
	c := h.Clone()
	c.Hops[0] = 99
	c.HopIndex = 2

	require.Equal(t, NodeID(1), h.Hops[0])
	require.Equal(t, uint8(1), h.HopIndex)
}

func TestHeaderAccessors(t *testing.T) {
	h := FromPath([]NodeID{1, 2, 3})
	assert.Equal(t, NodeID(1), h.Origin())
	assert.Equal(t, NodeID(3), h.Destination())
	assert.Equal(t, NodeID(2), h.Current())
	assert.False(t, h.AtDestination())

	h.HopIndex = 2
	assert.True(t, h.AtDestination())
	assert.Equal(t, NodeID(3), h.Current())
}
