// Package main is the entry point for the prodflow CLI.
// prodctl is the operator terminal tool for the prodflow controller API.
package main

import (
	"os"

	"prodflow/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
