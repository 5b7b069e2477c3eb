package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/stackdhq/stackd/cmd/cli/commands"
)

func main() {
	// Best effort; the CLI works from plain environment variables too.
	_ = godotenv.Load()

	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
