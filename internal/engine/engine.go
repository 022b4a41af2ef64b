// Package engine transfers and reconciles file trees between the local
// filesystem and a remote store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenetaranov/rcc/internal/connector"
	"github.com/eugenetaranov/rcc/internal/output"
	"github.com/eugenetaranov/rcc/internal/progress"
)

// DefaultChunkSize is the buffer size used when streaming file content.
const DefaultChunkSize = 32 * 1024

var (
	// ErrRemoteNotFound is returned when a remote path does not exist.
	ErrRemoteNotFound = errors.New("remote path does not exist")

	// ErrLocalNotFound is returned when a local path does not exist.
	ErrLocalNotFound = errors.New("local path does not exist")

	// ErrConflict is returned when a remote destination already exists.
	ErrConflict = errors.New("destination already exists")

	// ErrLocalConflict is returned when a local destination already exists.
	ErrLocalConflict = errors.New("local path already exists")

	// ErrNotDirectory is returned when a directory was expected.
	ErrNotDirectory = errors.New("not a directory")
)

// Confirmer gates destructive operations on an operator answer.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Engine runs transfer, reconcile and listing operations against one store.
type Engine struct {
	store     connector.Store
	out       *output.Output
	bar       progress.Sink
	log       *zap.Logger
	confirm   Confirmer
	chunkSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutput sets where operation messages are printed.
func WithOutput(out *output.Output) Option {
	return func(e *Engine) {
		e.out = out
	}
}

// WithProgress sets the sink used when an operation asks for progress.
func WithProgress(sink progress.Sink) Option {
	return func(e *Engine) {
		e.bar = sink
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithConfirmer sets the gate asked before deleting.
func WithConfirmer(c Confirmer) Option {
	return func(e *Engine) {
		e.confirm = c
	}
}

// WithChunkSize overrides the streaming buffer size.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// New creates an engine for store. Without a Confirmer every delete is declined.
func New(store connector.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		out:       output.New(io.Discard),
		bar:       progress.Nop{},
		log:       zap.NewNop(),
		confirm:   decline{},
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the engine operates on.
func (e *Engine) Store() connector.Store {
	return e.store
}

// ChangeDir makes p the store's working directory and returns its absolute path.
func (e *Engine) ChangeDir(ctx context.Context, p string) (string, error) {
	target, err := e.stat(ctx, e.Resolve(p))
	if err != nil {
		return "", err
	}
	if !target.IsDir {
		return "", fmt.Errorf("%s: %w", target.Path, ErrNotDirectory)
	}
	dir, err := e.store.Chdir(ctx, target.Path)
	if err != nil {
		return "", fmt.Errorf("changing directory to %s: %w", target.Path, err)
	}
	return dir, nil
}

// Resolve normalises separators and anchors a relative path at the store's
// working directory.
func (e *Engine) Resolve(p string) string {
	p = NormalizeSeparators(p)
	if !path.IsAbs(p) {
		p = path.Join(e.store.Getwd(), p)
	}
	return path.Clean(p)
}

// NormalizeSeparators converts backslashes to forward slashes.
func NormalizeSeparators(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func (e *Engine) sink(showProgress bool) progress.Sink {
	if showProgress {
		return e.bar
	}
	return progress.Nop{}
}

// stat returns the remote entry at p, mapping a missing path to ErrRemoteNotFound.
func (e *Engine) stat(ctx context.Context, p string) (*connector.Entry, error) {
	entry, err := e.store.Stat(ctx, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrRemoteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return entry, nil
}

// copyChunks streams src to dst through a fixed buffer, reporting progress
// after every chunk and stopping between chunks when ctx is cancelled.
func (e *Engine) copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, sink progress.Sink) (int64, error) {
	buf := make([]byte, e.chunkSize)
	var done int64

	sink.Report(0, total)
	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return done, err
			}
			done += int64(n)
			sink.Report(done, total)
		}
		if errors.Is(rerr, io.EOF) {
			return done, nil
		}
		if rerr != nil {
			return done, rerr
		}
	}
}

type decline struct{}

func (decline) Confirm(context.Context, string) (bool, error) { return false, nil }

// within reports whether p is root or below it.
func within(root, p string) bool {
	if root == "/" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}
