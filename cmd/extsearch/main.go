// Package main provides the entry point for the extsearch CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/extsearch/cmd/extsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
