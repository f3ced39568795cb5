package view

import (
	"io"
	"os"

	"golang.org/x/term"
)

// fallbackRows is used when the output is not a terminal.
const fallbackRows = 24

// TableRows returns how many device rows fit on the terminal behind fd once
// reserved lines (header, status, log tail) are taken out.
func TableRows(fd int, reserved int) int {
	rows := fallbackRows
	if term.IsTerminal(fd) {
		if _, h, err := term.GetSize(fd); err == nil && h > 0 {
			rows = h
		}
	}
	rows -= reserved
	if rows < 1 {
		rows = 1
	}
	return rows
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ClearScreen moves the cursor home and clears the terminal.
func ClearScreen(w io.Writer) {
	_, _ = io.WriteString(w, "\033[2J\033[H")
}
