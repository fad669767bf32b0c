package tui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether f is attached to a terminal. Commands print
// plain tables otherwise.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
