package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eugenetaranov/rcc/internal/connector"
	"github.com/eugenetaranov/rcc/internal/engine"
	"github.com/eugenetaranov/rcc/internal/profile"
	"github.com/eugenetaranov/rcc/internal/progress"
)

// ErrUsage marks invalid arguments, flags or commands.
var ErrUsage = errors.New("usage error")

type globalFlags struct {
	use         string
	sessionFile string
	debug       bool
	noColor     bool
}

// NewRootCommand builds the command tree bound to s. A fresh tree is built
// for every console line so flag values never leak between commands.
func NewRootCommand(s *Session) *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "rcc",
		Short: "rcc - remote connection console",
		Long: `rcc manages a remote host profile and moves file trees between the
local machine and that host over SSH/SFTP.

Select a profile once with 'rcc use <profile.json|profile.yml>' and every
following command runs against it.`,
		Version:       s.Version,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if s.Interactive && s.Cache != nil {
				return nil
			}
			return s.configure(&flags)
		},
	}

	root.PersistentFlags().StringVarP(&flags.use, "use", "u", "", "Profile to use instead of the active one")
	root.PersistentFlags().StringVar(&flags.sessionFile, "session-file", os.Getenv(profile.EnvSessionFile), "File that records the active profile")
	root.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug output")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})
	root.SetIn(s.Stdin)
	root.SetOut(s.Stdout)
	root.SetErr(s.Stderr)

	root.AddCommand(
		newUseCommand(s),
		newOpenCommand(s),
		newPullCommand(s),
		newPushCommand(s),
		newMoveCommand(s, false),
		newMoveCommand(s, true),
		newDeleteCommand(s),
		newListCommand(s),
		newCdCommand(s),
		newConsoleCommand(s),
		newVersionCommand(s),
	)

	return root
}

// Execute runs one command line against s and returns the process exit code.
func (s *Session) Execute(ctx context.Context, args []string) int {
	root := NewRootCommand(s)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	code := ExitCode(err)
	if ctx.Err() != nil && err != nil {
		code = ExitInterrupted
	}
	if err != nil {
		s.report(err)
	}
	return code
}

// report prints err the way both one-shot commands and the console do.
func (s *Session) report(err error) {
	if errors.Is(err, context.Canceled) {
		s.Out.Warn("interrupted")
		return
	}
	s.Out.Error("(%d) %v", ExitCode(err), err)
	if errors.Is(err, ErrUsage) {
		s.Out.Println("Run 'rcc help' for usage.")
	}
}

func usageArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", ErrUsage, err)
		}
		return nil
	}
}

func newUseCommand(s *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "use [profile]",
		Short: "Select the active profile",
		Long: `Record a profile document as the active one. Without an argument the
active profile is shown. '.', '/' or '-' clear the selection.

Examples:
  rcc use prod.yml
  rcc use -`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				active, err := s.Cache.Active()
				if err != nil {
					return err
				}
				prof, err := profile.Load(active)
				if err != nil {
					return err
				}
				s.Out.Println("%s (%s, working directory %s)", active, prof, prof.WorkingDirectory)
				return nil
			}

			prof, err := s.Cache.SetActive(args[0])
			if err != nil {
				return err
			}
			if prof == nil {
				s.Out.Done("cleared active profile")
				return nil
			}
			s.Out.Done("using %s (%s)", prof.Path, prof)
			if s.Interactive {
				s.Out.Warn("the console stays connected to %s until it is restarted", s.Profile)
			}
			return nil
		},
	}
}

func newOpenCommand(s *Session) *cobra.Command {
	var stdin, stdout, stderr string

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open an interactive shell on the remote host",
		Long: `Start a login shell on the remote host in the profile's working directory.
The standard streams can be redirected to files.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.Interactive {
				return fmt.Errorf("open is not available inside the console: %w", ErrUsage)
			}
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			shell, ok := s.Store.(connector.Shell)
			if !ok {
				return fmt.Errorf("%s does not support interactive shells", s.Store)
			}

			streams := connector.ShellIO{Stdin: s.Stdin, Stdout: s.Stdout, Stderr: s.Stderr}
			var files []*os.File
			defer func() {
				for _, f := range files {
					f.Close()
				}
			}()

			if stdin != "" {
				f, err := os.Open(stdin)
				if err != nil {
					return fmt.Errorf("failed to open stdin redirect: %w", err)
				}
				files = append(files, f)
				streams.Stdin = f
			}
			if stdout != "" {
				f, err := os.OpenFile(stdout, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open stdout redirect: %w", err)
				}
				files = append(files, f)
				streams.Stdout = f
			}
			if stderr != "" {
				f, err := os.OpenFile(stderr, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("failed to open stderr redirect: %w", err)
				}
				files = append(files, f)
				streams.Stderr = f
			}

			return shell.Shell(cmd.Context(), s.Store.Getwd(), streams)
		},
	}

	cmd.Flags().StringVar(&stdin, "redirect-stdin", "", "Read shell input from this file")
	cmd.Flags().StringVar(&stdout, "redirect-stdout", "", "Append shell output to this file")
	cmd.Flags().StringVar(&stderr, "redirect-stderr", "", "Append shell errors to this file")
	return cmd
}

func newPullCommand(s *Session) *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "pull <remote> <local>",
		Short: "Download a remote file or directory",
		Long: `Copy a remote file or directory tree to a local path that does not exist yet.

Examples:
  rcc pull logs/app.log ./app.log
  rcc pull /var/www ./www --progress`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			res, err := s.Engine.Pull(cmd.Context(), args[0], args[1], showProgress)
			if err != nil {
				return err
			}
			s.Out.Recap("pulled", res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showProgress, "progress", "p", false, "Show a progress bar")
	return cmd
}

func newPushCommand(s *Session) *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "push <local> <remote>",
		Short: "Upload a local file or directory",
		Long: `Copy a local file or directory tree to the remote host. Remote paths
that already exist are skipped with a warning, so an interrupted push can
simply be repeated.

Examples:
  rcc push ./dist /srv/app
  rcc push build.tar.gz releases/build.tar.gz --progress`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			res, err := s.Engine.Push(cmd.Context(), args[0], args[1], showProgress)
			if err != nil {
				return err
			}
			s.Out.Recap("pushed", res)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showProgress, "progress", "p", false, "Show a progress bar")
	return cmd
}

func newMoveCommand(s *Session, copyTree bool) *cobra.Command {
	var showProgress bool

	use, short, verb := "move <old> <new>", "Move or rename a remote path", "moved"
	if copyTree {
		use, short, verb = "copy <old> <new>", "Copy a remote file or directory", "copied"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + `. The destination must not exist.
Relative paths are resolved against the working directory.`,
		Args: usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			res, err := s.Engine.Move(cmd.Context(), args[0], args[1], copyTree, showProgress)
			if err != nil {
				return err
			}
			if copyTree {
				s.Out.Recap(verb, res)
			}
			return nil
		},
	}

	if copyTree {
		cmd.Aliases = []string{"cp"}
	} else {
		cmd.Aliases = []string{"mv"}
	}
	cmd.Flags().BoolVarP(&showProgress, "progress", "p", false, "Show a progress bar")
	return cmd
}

func newDeleteCommand(s *Session) *cobra.Command {
	return &cobra.Command{
		Use:     "del <path>",
		Aliases: []string{"rm"},
		Short:   "Delete a remote file or directory",
		Long: `Delete a remote file or directory tree. The size of the target is shown
and the deletion has to be confirmed with Y.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			_, err := s.Engine.Delete(cmd.Context(), args[0])
			return err
		},
	}
}

func newListCommand(s *Session) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the working directory",
		Long:    `List the working directory with the recursive size of every entry.`,
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			l, err := s.Engine.List(cmd.Context())
			if err != nil {
				return err
			}
			renderListing(s, l)
			return nil
		},
	}
}

func renderListing(s *Session, l *engine.Listing) {
	s.Out.Section(l.Dir)

	rows := make([][]string, 0, len(l.Items))
	for _, item := range l.Items {
		kind, name := "file", item.Name
		if item.IsDir {
			kind, name = "dir", item.Name+"/"
		}
		accessed := "-"
		if !item.AccessTime.IsZero() {
			accessed = humanize.Time(item.AccessTime)
		}
		rows = append(rows, []string{
			kind,
			progress.FormatSize(item.Total.Bytes),
			fmt.Sprint(item.Total.Count),
			accessed,
			name,
		})
	}
	s.Out.Table([]string{"TYPE", "SIZE", "ENTRIES", "ACCESSED", "NAME"}, rows)

	sum := l.Summary
	s.Out.Println("%d files, %d directories, %d entries (%d recursive), %s",
		sum.Files, sum.Dirs, sum.Entries, sum.Recursive, progress.FormatSize(sum.Bytes))
}

func newCdCommand(s *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "cd <path>",
		Short: "Change the remembered working directory",
		Long: `Change the working directory on the remote host and store it in the
active profile so later commands start there.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.Connect(cmd.Context()); err != nil {
				return err
			}
			dir, err := s.Engine.ChangeDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			s.Profile.WorkingDirectory = dir
			if err := profile.Persist(s.Profile); err != nil {
				return err
			}
			s.Out.Done("working directory is now %s", dir)
			return nil
		},
	}
}

func newConsoleCommand(s *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Run several commands over one connection",
		Long: `Open the active profile once and read commands line by line. Every rcc
command except console and open is available. Type exit or quit to leave.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.RunConsole(cmd.Context())
		},
	}
}

func newVersionCommand(s *Session) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			s.Out.Println("rcc version %s", s.Version)
		},
	}
}
