// Command askweb is the entry point for the AskWeb query answering service.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// query pipeline over SSE and WebSocket.
package main

import (
	"fmt"
	"os"

	"github.com/askweb/askweb-go/cmd/askweb/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
