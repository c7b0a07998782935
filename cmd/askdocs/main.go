// Command askdocs answers questions about an indexed document corpus.
// It provides a CLI (via Cobra) for building the index and asking one-off
// questions, and an HTTP server with a chat widget for interactive use.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/askdocs-go/cmd/askdocs/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
