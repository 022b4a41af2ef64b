// Package output provides formatted output for remote file operations.
package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Stats holds transfer statistics for output.
type Stats interface {
	GetFiles() int
	GetDirs() int
	GetSkipped() int
	GetBytes() string
	GetDuration() time.Duration
}

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// Recap prints a one-line summary of a transfer.
func (o *Output) Recap(verb string, stats Stats) {
	o.printf("%s ", o.color(colorBold, strings.ToUpper(verb)))

	files := o.color(colorGreen, fmt.Sprintf("files=%d", stats.GetFiles()))
	dirs := o.color(colorGreen, fmt.Sprintf("dirs=%d", stats.GetDirs()))
	skipped := o.color(colorCyan, fmt.Sprintf("skipped=%d", stats.GetSkipped()))

	o.printf("%s %s %s %s", files, dirs, skipped, stats.GetBytes())
	o.printf(" %s\n", o.color(colorGray, fmt.Sprintf("(%.2fs)", stats.GetDuration().Seconds())))
}

// Done prints a completed step.
// Format: ✓ message
func (o *Output) Done(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorGreen, "✓"), fmt.Sprintf(format, args...))
}

// Skipped prints a step that was left alone.
// Format: ○ message
func (o *Output) Skipped(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorCyan, "○"), fmt.Sprintf(format, args...))
}

// Table prints rows aligned in columns under a header.
func (o *Output) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// Section prints a section header.
func (o *Output) Section(name string) {
	o.printf("\n%s\n", o.color(colorBold, name))
}

// Println prints a plain line.
func (o *Output) Println(format string, args ...any) {
	o.printf(format+"\n", args...)
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}
