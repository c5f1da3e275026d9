package netconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

func validConfig() *NetworkConfig {
	return &NetworkConfig{
		Drone: []Drone{
			{ID: 2, Pdr: 0.1, ConnectedNodeIDs: []packet.NodeID{1, 3}},
			{ID: 3, Pdr: 0.1, ConnectedNodeIDs: []packet.NodeID{2, 4, 6}},
			{ID: 6, Pdr: 0.1, ConnectedNodeIDs: []packet.NodeID{3, 4}},
		},
		Client: []Client{
			{ID: 1, ConnectedNodeIDs: []packet.NodeID{2}},
		},
		Server: []Server{
			{ID: 4, ConnectedNodeIDs: []packet.NodeID{3, 6}},
		},
	}
}

func TestValidateAcceptsWellFormedNetwork(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsDuplicateID(t *testing.T) {
	cfg := validConfig()
	cfg.Client[0].ID = 2
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsSelfEdge(t *testing.T) {
	cfg := validConfig()
	cfg.Drone[0].ConnectedNodeIDs = append(cfg.Drone[0].ConnectedNodeIDs, 2)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsNonReciprocatedEdge(t *testing.T) {
	cfg := validConfig()
	cfg.Drone[0].ConnectedNodeIDs = []packet.NodeID{1, 3, 4}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsClientToClientEdge(t *testing.T) {
	cfg := validConfig()
	cfg.Client = append(cfg.Client, Client{ID: 5, ConnectedNodeIDs: []packet.NodeID{1}})
	cfg.Client[0].ConnectedNodeIDs = append(cfg.Client[0].ConnectedNodeIDs, 5)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsDisconnectedGraph(t *testing.T) {
	cfg := validConfig()
	cfg.Drone = append(cfg.Drone, Drone{ID: 9, Pdr: 0.0, ConnectedNodeIDs: []packet.NodeID{10}})
	cfg.Client = append(cfg.Client, Client{ID: 10, ConnectedNodeIDs: []packet.NodeID{9}})
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsOutOfRangePdr(t *testing.T) {
	cfg := validConfig()
	cfg.Drone[0].Pdr = 1.5
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestValidateRejectsServerWithTooFewNeighbors(t *testing.T) {
	cfg := validConfig()
	cfg.Server[0].ConnectedNodeIDs = []packet.NodeID{3}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.toml")
	assert.Error(t, err)
}
