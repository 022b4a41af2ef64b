// Package progress renders transfer progress independently of the code that
// walks and copies file trees.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// Sink receives progress from the engine. Calls happen inline with the
// transfer, so implementations must not block.
type Sink interface {
	// Status prints a transient status line such as "pulling a to b".
	Status(format string, args ...any)

	// Report renders done out of total bytes.
	Report(done, total int64)

	// ClearLine erases the current status line.
	ClearLine()
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Status(string, ...any) {}
func (Nop) Report(int64, int64)   {}
func (Nop) ClearLine()            {}

const (
	defaultWidth = 30
	clearLine    = "\r\033[2K"
)

// Bar draws a bounded-width progress bar on a terminal line.
type Bar struct {
	w      io.Writer
	width  int
	ansi   bool
	status bool
}

// NewBar creates a bar writing to w. The bar shrinks on narrow terminals
// and falls back to plain carriage returns when w is not a terminal.
func NewBar(w io.Writer) *Bar {
	b := &Bar{w: w, width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b.ansi = true
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			// room for brackets and "xxxx.xx MB of xxxx.xx MB, 100%"
			if avail := cols - 40; avail < b.width {
				b.width = max(avail, 10)
			}
		}
	}
	return b
}

// Status prints a line above the bar. On a terminal it is erased again by ClearLine.
func (b *Bar) Status(format string, args ...any) {
	if !b.ansi {
		fmt.Fprintf(b.w, "\r"+format+"\n", args...)
		return
	}
	fmt.Fprintf(b.w, clearLine+format+"\n", args...)
	b.status = true
}

// Report redraws the bar for done out of total bytes.
func (b *Bar) Report(done, total int64) {
	fmt.Fprint(b.w, "\r"+Render(done, total, b.width))
}

// ClearLine erases the bar and, on a terminal, the status line above it.
func (b *Bar) ClearLine() {
	if !b.ansi {
		fmt.Fprint(b.w, "\r\n")
		return
	}
	fmt.Fprint(b.w, clearLine)
	if b.status {
		fmt.Fprint(b.w, "\033[1A"+clearLine)
		b.status = false
	}
}

// Render returns a bar of the given width followed by the size pair and
// percentage, e.g. "[=======       ] 512 KB of 2.3 MB, 22%".
func Render(done, total int64, width int) string {
	pct := 100
	if total > 0 {
		pct = int(done * 100 / total)
	}
	pct = min(max(pct, 0), 100)
	filled := width * pct / 100

	return fmt.Sprintf("[%s%s] %s of %s, %d%%",
		strings.Repeat("=", filled),
		strings.Repeat(" ", width-filled),
		FormatSize(done), FormatSize(total), pct)
}

var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatSize formats a byte count with 1024-based units rounded to two
// decimals, e.g. 1536 is "1.5 KB".
func FormatSize(n int64) string {
	v := float64(n)
	i := 0
	for math.Abs(v) >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	if math.Abs(v) >= 1024 && i < len(units)-1 {
		v = math.Round(v/1024*100) / 100
		i++
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}
