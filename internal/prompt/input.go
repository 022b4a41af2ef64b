// Package prompt reads operator input: console lines, Y/N confirmations and secrets.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Input serialises reads from one underlying reader so the console line
// reader and the confirmation prompt can share stdin. Reads happen on a
// single goroutine, one per request, which lets callers stop waiting when
// their context is cancelled.
type Input struct {
	r   *bufio.Reader
	fd  int
	tty bool

	once    sync.Once
	reqs    chan request
	pending chan result
}

type request struct {
	key bool
	res chan result
}

type result struct {
	line string
	key  byte
	err  error
}

// NewInput wraps r. When r is a terminal, key reads switch it to raw mode.
func NewInput(r io.Reader) *Input {
	in := &Input{
		r:    bufio.NewReader(r),
		fd:   -1,
		reqs: make(chan request),
	}
	if f, ok := r.(*os.File); ok {
		in.fd = int(f.Fd())
		in.tty = term.IsTerminal(in.fd)
	}
	return in
}

// IsTerminal reports whether the input is an interactive terminal.
func (in *Input) IsTerminal() bool {
	return in.tty
}

// ReadLine returns the next line without its line terminator. A final line
// without a terminator is returned before io.EOF.
func (in *Input) ReadLine(ctx context.Context) (string, error) {
	res, err := in.do(ctx, false)
	if err != nil {
		return "", err
	}
	if res.err != nil {
		if errors.Is(res.err, io.EOF) && len(res.line) > 0 {
			return strings.TrimRight(res.line, "\r\n"), nil
		}
		return "", res.err
	}
	return strings.TrimRight(res.line, "\r\n"), nil
}

// ReadKey returns the next byte of input.
func (in *Input) ReadKey(ctx context.Context) (byte, error) {
	res, err := in.do(ctx, true)
	if err != nil {
		return 0, err
	}
	return res.key, res.err
}

func (in *Input) do(ctx context.Context, key bool) (result, error) {
	in.once.Do(func() { go in.loop() })

	// A request abandoned by a cancelled caller is still answered; the next
	// caller receives that answer.
	if in.pending == nil {
		res := make(chan result, 1)
		in.reqs <- request{key: key, res: res}
		in.pending = res
	}

	select {
	case res := <-in.pending:
		in.pending = nil
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (in *Input) loop() {
	for req := range in.reqs {
		var res result
		if req.key {
			res.key, res.err = in.r.ReadByte()
			if res.err == nil {
				res.line = string(res.key)
			}
		} else {
			res.line, res.err = in.r.ReadString('\n')
		}
		req.res <- res
	}
}
