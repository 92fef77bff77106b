// Package main provides ragctl, the command line client for the RAG engine.
package main

import (
	"fmt"
	"os"

	"github.com/landrecords/rag-engine/cmd/ragctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
