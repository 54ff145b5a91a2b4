// Package main provides the entry point for the opendelivery CLI.
package main

import (
	"fmt"
	"os"

	"github.com/jacentio/opendelivery/internal/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
