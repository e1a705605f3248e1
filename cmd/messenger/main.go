package main

import (
	"os"

	"github.com/tukib/dtec-messenger-electron/cmd/messenger/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
