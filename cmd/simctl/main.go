// Package main is the entry point for simctl.
// simctl is the operator's terminal tool for the simplane controller.
package main

import (
	"os"

	"simplane/cmd/simctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
