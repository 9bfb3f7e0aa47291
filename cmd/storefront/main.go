package main

import (
	"os"

	"storefront/cmd/storefront/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
