// Command folio is the entry point for the portfolio assistant backend.
// It provides a CLI interface (via Cobra) for serving the chat API, building
// the knowledge index, and asking one-off questions.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/folio-go/cmd/folio/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
