package sftp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/eugenetaranov/rcc/internal/connector"
)

// Shell starts an interactive login shell in dir and blocks until it exits
// or ctx is cancelled. When stdin is a terminal it is switched to raw mode
// for the lifetime of the shell.
func (c *Connector) Shell(ctx context.Context, dir string, streams connector.ShellIO) error {
	if c.ssh == nil {
		return connector.ErrNotConnected
	}

	session, err := c.ssh.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	width, height := 80, 24
	if f, ok := streams.Stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			width, height = w, h
		}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(termType(), height, width, modes); err != nil {
		return fmt.Errorf("failed to request pty: %w", err)
	}

	if f, ok := streams.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer term.Restore(int(f.Fd()), state)
	}

	session.Stdin = streams.Stdin
	session.Stdout = streams.Stdout
	session.Stderr = streams.Stderr

	if dir != "" && dir != "/" {
		err = session.Start(fmt.Sprintf(`cd %s && exec "${SHELL:-/bin/sh}" -l`, shellQuote(dir)))
	} else {
		err = session.Shell()
	}
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	c.log.Debug("shell started", zap.String("dir", dir))

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		if errors.As(err, &exitErr) || errors.As(err, &missing) {
			return nil
		}
		return err
	}
}

func termType() string {
	if t := os.Getenv("TERM"); t != "" {
		return t
	}
	return "xterm-256color"
}

// shellQuote quotes a string for safe use in shell commands.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}
