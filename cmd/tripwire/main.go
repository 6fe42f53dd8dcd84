package main

import (
	"os"

	"github.com/moolen/tripwire/cmd/tripwire/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
