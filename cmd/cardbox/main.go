// cardbox is the control CLI for the cardboxd ingest daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		// Interrupted mid-command; exit with the conventional code, quietly.
		os.Exit(130)
	}
	fmt.Fprintln(os.Stderr, "cardbox:", err)
	os.Exit(1)
}
