package main

import "github.com/fumbl3b/harryAi/internal/commands"

func main() {
	commands.Execute()
}
