package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/eugenetaranov/rcc/internal/connector"
	"github.com/eugenetaranov/rcc/internal/progress"
)

// MoveResult summarises a move or copy.
type MoveResult struct {
	TransferResult

	// Renamed is set when the source was moved with a single rename.
	Renamed bool
}

// DeleteResult summarises a delete.
type DeleteResult struct {
	// Aborted is set when the operator declined; nothing was removed.
	Aborted bool

	// Removed counts the files and directories deleted.
	Removed int

	// Size is what the target held before deletion.
	Size Size
}

// Size is the recursive byte total and entry count of a subtree. Count
// includes the root.
type Size struct {
	Bytes int64
	Count int
}

// Move renames oldPath to newPath, or copies it when copyTree is set. Existing
// destinations are never overwritten.
func (e *Engine) Move(ctx context.Context, oldPath, newPath string, copyTree, showProgress bool) (*MoveResult, error) {
	start := time.Now()
	res := &MoveResult{}

	src := e.Resolve(oldPath)
	dst := e.Resolve(newPath)

	root, err := e.stat(ctx, src)
	if err != nil {
		return nil, err
	}
	exists, err := e.store.Exists(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dst, err)
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", dst, ErrConflict)
	}
	if root.IsDir && within(src, dst) {
		return nil, fmt.Errorf("cannot place %s inside itself at %s: %w", src, dst, ErrConflict)
	}

	if !copyTree {
		if err := e.store.Rename(ctx, src, dst); err != nil {
			return nil, fmt.Errorf("moving %s to %s: %w", src, dst, err)
		}
		res.Renamed = true
		res.Duration = time.Since(start)
		e.out.Done("moved %s to %s", src, dst)
		return res, nil
	}

	sink := e.sink(showProgress)
	for step, err := range remoteTree(ctx, e.store, *root, dst, path.Join, true) {
		if err != nil {
			res.Duration = time.Since(start)
			return res, err
		}

		switch step.Op {
		case OpMkdir:
			if err := e.store.Mkdir(ctx, step.Dst); err != nil {
				res.Duration = time.Since(start)
				return res, fmt.Errorf("creating %s: %w", step.Dst, err)
			}
			res.Dirs++
		case OpFile:
			sink.Status("copying %s to %s", step.Src, step.Dst)
			n, err := e.copyFile(ctx, step, sink)
			sink.ClearLine()
			res.Bytes += n
			if err != nil {
				res.Duration = time.Since(start)
				return res, err
			}
			res.Files++
		}
	}

	res.Duration = time.Since(start)
	e.out.Done("copied %s to %s", src, dst)
	return res, nil
}

// copyFile streams one remote file to another remote path.
func (e *Engine) copyFile(ctx context.Context, step Step, sink progress.Sink) (int64, error) {
	r, err := e.store.OpenRead(ctx, step.Src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", step.Src, err)
	}
	defer r.Close()

	w, err := e.store.OpenWrite(ctx, step.Dst)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", step.Dst, err)
	}

	n, err := e.copyChunks(ctx, w, r, step.Size, sink)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		e.removePartial(step.Dst)
		return n, fmt.Errorf("copying %s: %w", step.Src, err)
	}
	return n, nil
}

// Delete removes a remote file or directory tree after showing its size and
// asking for confirmation. Directories are emptied bottom-up.
func (e *Engine) Delete(ctx context.Context, remotePath string) (*DeleteResult, error) {
	target := e.Resolve(remotePath)
	root, err := e.stat(ctx, target)
	if err != nil {
		return nil, err
	}

	size, err := e.AggregateSize(ctx, *root)
	if err != nil {
		return nil, err
	}
	res := &DeleteResult{Size: size}

	kind := "file"
	if root.IsDir {
		kind = "directory"
	}
	e.out.Info("%s %s holds %d entries, %s", kind, target, size.Count, progress.FormatSize(size.Bytes))

	ok, err := e.confirm.Confirm(ctx, fmt.Sprintf("Delete %s?", target))
	if err != nil {
		return nil, err
	}
	if !ok {
		res.Aborted = true
		e.out.Info("Aborted")
		return res, nil
	}

	for step, err := range removalOrder(ctx, e.store, *root) {
		if err != nil {
			return res, err
		}
		switch step.Op {
		case OpRemove:
			err = e.store.Remove(ctx, step.Src)
		case OpRemoveDir:
			err = e.store.RemoveDir(ctx, step.Src)
		}
		if err != nil {
			return res, fmt.Errorf("deleting %s: %w", step.Src, err)
		}
		res.Removed++
	}

	e.out.Done("deleted %s", target)
	return res, nil
}

// AggregateSize sums file sizes below entry and counts every entry visited,
// the root included. A directory that vanished or cannot be listed is counted
// without descendants; other listing errors are returned.
func (e *Engine) AggregateSize(ctx context.Context, entry connector.Entry) (Size, error) {
	if err := ctx.Err(); err != nil {
		return Size{}, err
	}
	if !entry.IsDir {
		return Size{Bytes: entry.Size, Count: 1}, nil
	}

	total := Size{Count: 1}
	children, err := e.store.ReadDir(ctx, entry.Path)
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
		e.log.Debug("skipping unreadable directory", zap.String("path", entry.Path), zap.Error(err))
		return total, nil
	}
	if err != nil {
		return Size{}, fmt.Errorf("listing %s: %w", entry.Path, err)
	}

	for _, child := range children {
		if child.Name == "." || child.Name == ".." {
			continue
		}
		sub, err := e.AggregateSize(ctx, child)
		if err != nil {
			return Size{}, err
		}
		total.Bytes += sub.Bytes
		total.Count += sub.Count
	}
	return total, nil
}
