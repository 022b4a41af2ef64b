package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/eugenetaranov/rcc/internal/progress"
)

// TransferResult summarises a pull, push or copy.
type TransferResult struct {
	Files    int
	Dirs     int
	Skipped  int
	Bytes    int64
	Duration time.Duration
}

// GetFiles returns the number of files written (implements output.Stats).
func (r *TransferResult) GetFiles() int { return r.Files }

// GetDirs returns the number of directories created (implements output.Stats).
func (r *TransferResult) GetDirs() int { return r.Dirs }

// GetSkipped returns the number of entries left alone (implements output.Stats).
func (r *TransferResult) GetSkipped() int { return r.Skipped }

// GetBytes returns the formatted byte count (implements output.Stats).
func (r *TransferResult) GetBytes() string { return progress.FormatSize(r.Bytes) }

// GetDuration returns the elapsed time (implements output.Stats).
func (r *TransferResult) GetDuration() time.Duration { return r.Duration }

// Pull copies a remote file or directory tree to a new local path. Existing
// local paths are never overwritten.
func (e *Engine) Pull(ctx context.Context, remotePath, localPath string, showProgress bool) (*TransferResult, error) {
	start := time.Now()
	res := &TransferResult{}

	src := e.Resolve(remotePath)
	root, err := e.stat(ctx, src)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(localPath); err == nil {
		return nil, fmt.Errorf("%s: %w", localPath, ErrLocalConflict)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	sink := e.sink(showProgress)
	for step, err := range remoteTree(ctx, e.store, *root, localPath, filepath.Join, false) {
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		switch step.Op {
		case OpMkdir:
			if err := os.Mkdir(step.Dst, 0o755); err != nil {
				res.Duration = time.Since(start)
				return res, fmt.Errorf("creating %s: %w", step.Dst, err)
			}
			res.Dirs++
		case OpFile:
			sink.Status("pulling %s to %s", step.Src, step.Dst)
			n, err := e.pullFile(ctx, step, sink)
			sink.ClearLine()
			res.Bytes += n
			if err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			res.Files++
			e.log.Debug("pulled file", zap.String("src", step.Src), zap.String("dst", step.Dst), zap.Int64("bytes", n))
		}
	}

	res.Duration = time.Since(start)
	e.out.Done("pulled %s to %s", src, localPath)
	return res, nil
}

// pullFile streams one remote file into a newly created local file. The
// local file is removed again when the transfer does not complete.
func (e *Engine) pullFile(ctx context.Context, step Step, sink progress.Sink) (int64, error) {
	r, err := e.store.OpenRead(ctx, step.Src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", step.Src, err)
	}
	defer r.Close()

	f, err := os.OpenFile(step.Dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%s: %w", step.Dst, ErrLocalConflict)
		}
		return 0, fmt.Errorf("creating %s: %w", step.Dst, err)
	}

	n, err := e.copyChunks(ctx, f, r, step.Size, sink)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(step.Dst); rmErr != nil {
			e.log.Debug("removing partial file", zap.String("path", step.Dst), zap.Error(rmErr))
		}
		return n, fmt.Errorf("pulling %s: %w", step.Src, err)
	}
	return n, nil
}

// Push copies a local file or directory tree to the store. Destinations that
// already exist are skipped with a warning; an existing directory is still
// descended into so an interrupted push can be resumed.
func (e *Engine) Push(ctx context.Context, localPath, remotePath string, showProgress bool) (*TransferResult, error) {
	start := time.Now()
	res := &TransferResult{}

	info, err := os.Stat(localPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", localPath, ErrLocalNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	dst := e.Resolve(remotePath)
	sink := e.sink(showProgress)

	// Directories that exist remotely as files; nothing below them can be pushed.
	var blocked []string

	for step, err := range localTree(ctx, localPath, info, dst) {
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		if isBlocked(blocked, step.Dst) {
			res.Skipped++
			continue
		}
		if step.Op == OpLoop {
			e.out.Warn("%s links back into its own tree, skipping", step.Src)
			res.Skipped++
			continue
		}

		existing, err := e.store.Stat(ctx, step.Dst)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("stat %s: %w", step.Dst, err)
		}

		switch step.Op {
		case OpMkdir:
			if existing != nil {
				res.Skipped++
				if !existing.IsDir {
					e.out.Warn("%s exists and is not a directory, skipping", step.Dst)
					blocked = append(blocked, step.Dst)
					continue
				}
				e.out.Skipped("%s already exists, skipping", step.Dst)
				continue
			}
			if err := e.store.Mkdir(ctx, step.Dst); err != nil {
				res.Duration = time.Since(start)
				return res, fmt.Errorf("creating %s: %w", step.Dst, err)
			}
			res.Dirs++
		case OpFile:
			if existing != nil {
				e.out.Skipped("%s already exists, skipping", step.Dst)
				res.Skipped++
				continue
			}
			sink.Status("pushing %s to %s", step.Src, step.Dst)
			n, err := e.pushFile(ctx, step, sink)
			sink.ClearLine()
			res.Bytes += n
			if err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			res.Files++
			e.log.Debug("pushed file", zap.String("src", step.Src), zap.String("dst", step.Dst), zap.Int64("bytes", n))
		}
	}

	res.Duration = time.Since(start)
	e.out.Done("pushed %s to %s", localPath, dst)
	return res, nil
}

// pushFile streams one local file to the store, removing the remote file
// again when the transfer does not complete.
func (e *Engine) pushFile(ctx context.Context, step Step, sink progress.Sink) (int64, error) {
	f, err := os.Open(step.Src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", step.Src, err)
	}
	defer f.Close()

	w, err := e.store.OpenWrite(ctx, step.Dst)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", step.Dst, err)
	}

	n, err := e.copyChunks(ctx, w, f, step.Size, sink)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		e.removePartial(step.Dst)
		return n, fmt.Errorf("pushing %s: %w", step.Src, err)
	}
	return n, nil
}

// removePartial deletes an incomplete remote file. It runs after the
// operation's context may already be cancelled.
func (e *Engine) removePartial(p string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.Remove(ctx, p); err != nil {
		e.log.Debug("removing partial file", zap.String("path", p), zap.Error(err))
	}
}

func isBlocked(blocked []string, p string) bool {
	for _, b := range blocked {
		if within(b, p) {
			return true
		}
	}
	return false
}
