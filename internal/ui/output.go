// Package ui prints the human-facing progress lines of an ingest run.
// Output goes to stderr so stdout stays free for the JSON report.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)

	out io.Writer = os.Stderr
)

// SetOutput redirects all ui output. Passing nil discards it.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	out = w
}

// Header prints a formatted header
func Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(out, "\n%s\n", line)
	green.Fprintf(out, "%-60s\n", center(text, 60))
	green.Fprintf(out, "%s\n\n", line)
}

// Step prints a step indicator
func Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(out, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func Success(text string) {
	green.Fprintf(out, "  → %s\n", text)
}

// Info prints an info message
func Info(text string) {
	fmt.Fprintf(out, "  → %s\n", text)
}

// Warning prints a warning message
func Warning(text string) {
	yellow.Fprintf(out, "  ⚠ %s\n", text)
}

// Error prints an error message
func Error(text string) {
	red.Fprintf(out, "Error: %s\n", text)
}

// BlueText prints blue text
func BlueText(text string) {
	blue.Fprintln(out, text)
}

// YellowText prints yellow text
func YellowText(text string) {
	yellow.Fprintln(out, text)
}

// Institution prints one institution's tally: new transactions over batches.
func Institution(name string, id int64, newTxns, batches, redundant int) {
	label := name
	if id != 0 {
		label = fmt.Sprintf("%s (#%d)", name, id)
	}
	line := fmt.Sprintf("%-32s %5d new  %3d files  %3d redundant", label, newTxns, batches, redundant)
	if newTxns == 0 {
		fmt.Fprintf(out, "  %s\n", line)
		return
	}
	green.Fprintf(out, "  %s\n", line)
}

// center centers text within a given width
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
