package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Test seams for terminal mode switching and password reads.
var (
	makeRaw      = term.MakeRaw
	restore      = term.Restore
	readPassword = term.ReadPassword
)

const (
	keyInterrupt = 0x03
	keyEOT       = 0x04
)

// Confirmer asks Y/N questions on a shared input.
type Confirmer struct {
	in *Input
	w  io.Writer
}

// NewConfirmer creates a Confirmer that reads from in and echoes to w.
func NewConfirmer(in *Input, w io.Writer) *Confirmer {
	return &Confirmer{in: in, w: w}
}

// Confirm prints question and waits for Y or N, case-insensitive. Any other
// key repeats the question, line terminators are ignored, and end of input
// or Ctrl-C/Ctrl-D count as N.
func (c *Confirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if c.in.tty {
		if state, err := makeRaw(c.in.fd); err == nil {
			defer restore(c.in.fd, state)
		}
	}

	fmt.Fprintf(c.w, "%s (Y/N) ", question)
	for {
		key, err := c.in.ReadKey(ctx)
		if errors.Is(err, io.EOF) {
			fmt.Fprint(c.w, "\r\n")
			return false, nil
		}
		if err != nil {
			return false, err
		}

		switch key {
		case 'y', 'Y':
			fmt.Fprintf(c.w, "%c\r\n", key)
			return true, nil
		case 'n', 'N':
			fmt.Fprintf(c.w, "%c\r\n", key)
			return false, nil
		case keyInterrupt, keyEOT:
			fmt.Fprint(c.w, "\r\n")
			return false, nil
		case '\r', '\n':
			continue
		default:
			fmt.Fprintf(c.w, "\r\n%s (Y/N) ", question)
		}
	}
}

// Secret prints label and reads a line from the terminal without echo.
func Secret(w io.Writer, label string) ([]byte, error) {
	if _, err := fmt.Fprint(w, label+": "); err != nil {
		return nil, err
	}
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", label, err)
	}
	return secret, nil
}

// Passphrase returns a callback that prompts on w for the passphrase of an
// encrypted private key.
func Passphrase(w io.Writer) func(keyPath string) ([]byte, error) {
	return func(keyPath string) ([]byte, error) {
		return Secret(w, fmt.Sprintf("Passphrase for %s", keyPath))
	}
}
