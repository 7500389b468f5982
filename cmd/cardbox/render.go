package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// tone classifies an ingest value for terminal coloring: toneGood for healthy
// state and completed sessions, toneBusy for in-flight or cancelled ones,
// toneBad for failures and missing volumes.
type tone int

const (
	toneNeutral tone = iota
	toneGood
	toneBusy
	toneBad
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func paint(s string, t tone, colored bool) string {
	if !colored {
		return s
	}
	switch t {
	case toneGood:
		return ansiGreen + s + ansiReset
	case toneBusy:
		return ansiYellow + s + ansiReset
	case toneBad:
		return ansiRed + s + ansiReset
	default:
		return s
	}
}

// outcomeTone maps a terminal session outcome to its display tone.
func outcomeTone(outcome string) tone {
	switch outcome {
	case "completed":
		return toneGood
	case "cancelled":
		return toneBusy
	case "aborted":
		return toneBad
	default:
		return toneNeutral
	}
}

// printField writes one aligned "Label  value" status line.
func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%-14s %s\n", label, value)
}

func terminalColors(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
