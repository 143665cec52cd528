// Package main provides the entry point for the kbank CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/kbank/cmd/kbank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
