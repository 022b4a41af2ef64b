package cli

import (
	"context"
	"errors"

	"github.com/eugenetaranov/rcc/internal/connector"
	"github.com/eugenetaranov/rcc/internal/engine"
	"github.com/eugenetaranov/rcc/internal/profile"
)

// Process exit codes.
const (
	ExitOK                = 0
	ExitUnexpected        = 1
	ExitConfig            = 2
	ExitUnsupportedFormat = 3
	ExitConnection        = 4
	ExitAuthentication    = 5
	ExitUsage             = 6
	ExitNoActiveSession   = 7
	ExitNotFound          = 8
	ExitConflict          = 9
	ExitInterrupted       = 130
)

var exitCodes = []struct {
	err  error
	code int
}{
	{context.Canceled, ExitInterrupted},
	{ErrUsage, ExitUsage},
	{profile.ErrUnsupportedFormat, ExitUnsupportedFormat},
	{profile.ErrConfig, ExitConfig},
	{profile.ErrParse, ExitConfig},
	{connector.ErrConnection, ExitConnection},
	{connector.ErrAuthentication, ExitAuthentication},
	{profile.ErrNoActiveSession, ExitNoActiveSession},
	{engine.ErrRemoteNotFound, ExitNotFound},
	{engine.ErrLocalNotFound, ExitNotFound},
	{engine.ErrNotDirectory, ExitNotFound},
	{engine.ErrConflict, ExitConflict},
	{engine.ErrLocalConflict, ExitConflict},
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, c := range exitCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ExitUnexpected
}
