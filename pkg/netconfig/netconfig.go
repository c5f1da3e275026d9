// Package netconfig decodes and validates the TOML network description
// spec.md §6 defines: a fixed set of drone/client/server sections giving
// each node's id, role-specific fields, and the ids of the nodes it is
// wired to.
package netconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

// Drone is one `[[drone]]` table entry.
type Drone struct {
	ID               packet.NodeID   `toml:"id"`
	Pdr              float64         `toml:"pdr"`
	ConnectedNodeIDs []packet.NodeID `toml:"connected_node_ids"`
}

// Client is one `[[client]]` table entry.
type Client struct {
	ID               packet.NodeID   `toml:"id"`
	ConnectedNodeIDs []packet.NodeID `toml:"connected_node_ids"`
}

// Server is one `[[server]]` table entry.
type Server struct {
	ID               packet.NodeID   `toml:"id"`
	ConnectedNodeIDs []packet.NodeID `toml:"connected_node_ids"`
}

// NetworkConfig is the decoded shape of the whole TOML file, before
// validation.
type NetworkConfig struct {
	Drone  []Drone  `toml:"drone"`
	Client []Client `toml:"client"`
	Server []Server `toml:"server"`
}

// Load reads and decodes path, then validates the result against spec.md
// §6's rules. A decode or validation failure is the ConfigInvalid error
// kind spec.md §7 names; callers exit 2 on it.
func Load(path string) (*NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("netconfig: reading %s: %w", path, err)
	}

	var cfg NetworkConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("netconfig: decoding %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
