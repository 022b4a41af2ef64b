package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"
)

type consoleState int

const (
	stateIdle consoleState = iota
	stateConnected
	stateExited
)

func (st consoleState) String() string {
	switch st {
	case stateIdle:
		return "idle"
	case stateConnected:
		return "connected"
	default:
		return "exited"
	}
}

// RunConsole opens the session once and dispatches commands read line by
// line until exit, quit, end of input or cancellation. Command errors are
// reported and the loop continues. The store is closed on return.
func (s *Session) RunConsole(ctx context.Context) error {
	if s.Interactive {
		return fmt.Errorf("already inside the console: %w", ErrUsage)
	}

	state := stateIdle
	if err := s.Connect(ctx); err != nil {
		return err
	}
	state = s.transition(state, stateConnected)
	s.Interactive = true
	defer func() {
		s.Interactive = false
		s.transition(state, stateExited)
		if err := s.Close(); err != nil {
			s.Log.Debug("closing session", zap.Error(err))
		}
	}()

	s.Out.Info("connected to %s, type 'help' for commands or 'exit' to leave", s.Profile)

	parser := shellwords.NewParser()
	for state == stateConnected {
		fmt.Fprint(s.Stdout, promptLabel(s))

		line, err := s.In.ReadLine(ctx)
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			fmt.Fprintln(s.Stdout)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading console input: %w", err)
		}

		args, err := parser.Parse(line)
		if err != nil {
			s.Out.Error("%v", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		if args[0] == "exit" || args[0] == "quit" {
			return nil
		}

		if err := s.dispatch(ctx, args); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.report(err)
		}
	}
	return nil
}

// dispatch runs one console line through a fresh command tree bound to s.
func (s *Session) dispatch(ctx context.Context, args []string) error {
	root := NewRootCommand(s)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (s *Session) transition(from, to consoleState) consoleState {
	s.Log.Debug("console state", zap.Stringer("from", from), zap.Stringer("to", to))
	return to
}

// promptLabel is the console prompt, e.g. "deploy@example.com:/srv> ".
func promptLabel(s *Session) string {
	return fmt.Sprintf("%s@%s:%s> ", s.Profile.Username, s.Profile.Host, s.Store.Getwd())
}
