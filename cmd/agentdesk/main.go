package main

import "github.com/agentdesk/agentdesk/cmd/agentdesk/commands"

func main() {
	commands.Execute()
}
