package main

import (
	"os"

	"certregistry/cmd/certctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
