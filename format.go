package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// isTerminal reports whether fd refers to a terminal, used to resolve the
// "auto" log format and to decide whether the watch command's live event
// stream is colorized.
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// eventColor maps an event kind name to its ANSI color code for the watch
// command's live output. Returns "" (no color) when the kind is unknown.
func eventColor(kind string) string {
	switch kind {
	case "CREATED":
		return "32" // green
	case "MODIFIED":
		return "33" // yellow
	case "DELETED":
		return "31" // red
	case "MONITORED_DIR_MOVED":
		return "35" // magenta
	case "DROPPED_EVENTS":
		return "31;1" // bold red
	default:
		return ""
	}
}

// colorize wraps s in an ANSI color code when enabled is true.
func colorize(s, code string, enabled bool) string {
	if !enabled || code == "" {
		return s
	}

	return fmt.Sprintf("\x1b[%sm%s\x1b[0m", code, s)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	// Compute column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header.
	printRow(w, headers, widths)

	// Print rows.
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
