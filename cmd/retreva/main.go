// Package main provides the entry point for the retreva CLI.
package main

import (
	"os"

	"github.com/retreva/retreva/cmd/retreva/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
