package main

import "github.com/agentic-research/cachesync/cmd"

func main() {
	cmd.Execute()
}
