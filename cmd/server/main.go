// Command harryai-server serves the chat API without the interactive CLI.
package main

import (
	"os"

	"github.com/fumbl3b/harryAi/internal/commands"
)

func main() {
	cmd := commands.NewServeCmd()
	cmd.Use = "harryai-server"
	cmd.Version = commands.Version
	commands.AddGlobalFlags(cmd)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
