// Command agentrun is the CLI surface of the agent runtime: it
// wires configuration, the orchestrator, and file history into the four
// subcommands real operators drive the runtime through.
package main

func main() {
	Execute()
}
