// Package printer formats certctl output for terminals.
package printer

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

func init() {
	// Color stays on when piped unless NO_COLOR is set.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Printer writes to one stream, so commands can be pointed at a buffer.
type Printer struct {
	w io.Writer
}

func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Success prints a green line with a check mark.
func (p *Printer) Success(format string, a ...any) {
	green.Fprintf(p.w, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a yellow line.
func (p *Printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.w, "! %s\n", fmt.Sprintf(format, a...))
}

// Failure prints a bold red line.
func (p *Printer) Failure(format string, a ...any) {
	red.Fprintf(p.w, "✗ %s\n", fmt.Sprintf(format, a...))
}

// Info prints an uncolored line.
func (p *Printer) Info(format string, a ...any) {
	fmt.Fprintf(p.w, format+"\n", a...)
}

// Field prints an aligned key/value pair with the key in cyan.
func (p *Printer) Field(key string, value any) {
	cyan.Fprintf(p.w, "  %-14s", key+":")
	fmt.Fprintf(p.w, " %v\n", value)
}
