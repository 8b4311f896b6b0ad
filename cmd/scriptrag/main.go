// Package main provides the entry point for the scriptrag CLI.
package main

import (
	"os"

	"github.com/trieloff/scriptrag/cmd/scriptrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
