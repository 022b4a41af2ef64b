// Package cli implements the rcc command surface and the interactive console.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/eugenetaranov/rcc/internal/connector"
	"github.com/eugenetaranov/rcc/internal/connector/sftp"
	"github.com/eugenetaranov/rcc/internal/engine"
	"github.com/eugenetaranov/rcc/internal/logging"
	"github.com/eugenetaranov/rcc/internal/output"
	"github.com/eugenetaranov/rcc/internal/profile"
	"github.com/eugenetaranov/rcc/internal/progress"
	"github.com/eugenetaranov/rcc/internal/prompt"
)

// StoreFactory builds an unconnected store for a profile.
type StoreFactory func(p *profile.Profile, s *Session) connector.Store

// Session is the state shared by every command of one process or one
// console. It owns at most one open store.
type Session struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Version is printed by the version command.
	Version string

	// NewStore builds the store opened by commands that need one.
	NewStore StoreFactory

	Out   *output.Output
	In    *prompt.Input
	Log   *zap.Logger
	Cache *profile.Cache

	Profile *profile.Profile
	Store   connector.Store
	Engine  *engine.Engine

	// Interactive is set while the console loop runs.
	Interactive bool

	// profileOverride is the --use flag of the command being run.
	profileOverride string
}

// NewSession creates a session bound to the given streams that opens SFTP stores.
func NewSession(stdin io.Reader, stdout, stderr io.Writer) *Session {
	out := output.New(stdout)
	out.SetColor(isTerminal(stdout))

	return &Session{
		Stdin:    stdin,
		Stdout:   stdout,
		Stderr:   stderr,
		Version:  "dev",
		NewStore: newSFTPStore,
		Out:      out,
		In:       prompt.NewInput(stdin),
		Log:      zap.NewNop(),
	}
}

// configure applies the global flags.
func (s *Session) configure(f *globalFlags) error {
	s.Out.SetColor(!f.noColor && isTerminal(s.Stdout))
	s.Out.SetDebug(f.debug)

	log, err := logging.New(logging.Config{Debug: f.debug, Output: s.Stderr})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	s.Log = log

	cachePath := f.sessionFile
	if cachePath == "" {
		if cachePath, err = profile.DefaultCachePath(); err != nil {
			return err
		}
	}
	s.Cache = profile.NewCache(cachePath)
	s.Log.Debug("session cache", zap.String("path", s.Cache.Path()))
	s.profileOverride = f.use
	return nil
}

// Connect resolves the profile and opens its store unless one is already open.
func (s *Session) Connect(ctx context.Context) error {
	if s.Store != nil {
		return nil
	}

	prof, err := s.Cache.Resolve(s.profileOverride)
	if err != nil {
		return err
	}

	store := s.NewStore(prof, s)
	s.Log.Debug("connecting", zap.String("profile", prof.Path), zap.String("target", prof.String()))
	if err := store.Connect(ctx); err != nil {
		store.Close()
		return err
	}

	if _, err := store.Chdir(ctx, prof.WorkingDirectory); err != nil {
		s.Out.Warn("working directory %s is not available, staying in %s: %v", prof.WorkingDirectory, store.Getwd(), err)
	}

	s.Out.Debug("connected to %s as %s, working directory %s", store, prof, store.Getwd())

	s.Profile = prof
	s.Store = store
	s.Engine = engine.New(store,
		engine.WithOutput(s.Out),
		engine.WithProgress(progress.NewBar(s.Stdout)),
		engine.WithLogger(s.Log),
		engine.WithConfirmer(prompt.NewConfirmer(s.In, s.Stdout)),
	)
	return nil
}

// Close closes the open store, if any. It is safe to call more than once.
func (s *Session) Close() error {
	if s.Store == nil {
		return nil
	}
	err := s.Store.Close()
	s.Store = nil
	s.Engine = nil
	s.Log.Debug("session closed")
	_ = s.Log.Sync()
	return err
}

func newSFTPStore(p *profile.Profile, s *Session) connector.Store {
	opts := []sftp.Option{
		sftp.WithLogger(s.Log),
		sftp.WithKnownHosts(p.KnownHosts),
	}
	if p.IsKeyAuth {
		opts = append(opts,
			sftp.WithPrivateKey(expandHome(p.Password)),
			sftp.WithPassphrase(prompt.Passphrase(s.Stderr)),
		)
	} else {
		opts = append(opts, sftp.WithPassword(p.Password))
	}

	return sftp.New(connector.Config{
		Host:    p.Host,
		Port:    p.Port,
		User:    p.Username,
		Timeout: p.Timeout,
	}, opts...)
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
