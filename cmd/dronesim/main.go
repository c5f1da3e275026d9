// Command dronesim runs a drone-messaging-network simulation from a TOML
// network configuration file.
package main

import "github.com/gaecan04/krusty-club/cmd/dronesim/commands"

func main() {
	commands.Execute()
}
