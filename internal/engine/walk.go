package engine

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/eugenetaranov/rcc/internal/connector"
)

// Op is the kind of action a Step asks for.
type Op int

const (
	// OpMkdir creates the destination directory.
	OpMkdir Op = iota
	// OpFile streams one file from Src to Dst.
	OpFile
	// OpRemove deletes a file.
	OpRemove
	// OpRemoveDir deletes an empty directory.
	OpRemoveDir
	// OpLoop marks a local directory that resolves to one of its own
	// ancestors. It is not descended into.
	OpLoop
)

func (o Op) String() string {
	switch o {
	case OpMkdir:
		return "mkdir"
	case OpFile:
		return "file"
	case OpRemove:
		return "remove"
	case OpRemoveDir:
		return "rmdir"
	case OpLoop:
		return "loop"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Step is one action produced by a tree walk.
type Step struct {
	Op    Op
	Src   string
	Dst   string
	Size  int64
	Depth int
}

// remoteTree walks a remote subtree pre-order. Each directory step is
// yielded before its children are listed, so a consumer that creates the
// directory on the step has it in place before any child arrives. With
// dirsFirst, subdirectories are visited before sibling files; otherwise
// children come in listing order. join maps a destination directory and a
// child name to the child's destination.
func remoteTree(ctx context.Context, store connector.Store, root connector.Entry, dst string, join func(...string) string, dirsFirst bool) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		walkRemote(ctx, store, root, dst, 0, join, dirsFirst, yield)
	}
}

func walkRemote(ctx context.Context, store connector.Store, e connector.Entry, dst string, depth int, join func(...string) string, dirsFirst bool, yield func(Step, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(Step{}, err)
		return false
	}
	if !e.IsDir {
		return yield(Step{Op: OpFile, Src: e.Path, Dst: dst, Size: e.Size, Depth: depth}, nil)
	}
	if !yield(Step{Op: OpMkdir, Src: e.Path, Dst: dst, Depth: depth}, nil) {
		return false
	}

	children, err := store.ReadDir(ctx, e.Path)
	if err != nil {
		yield(Step{}, fmt.Errorf("listing %s: %w", e.Path, err))
		return false
	}
	if dirsFirst {
		children = dirsBeforeFiles(children)
	}
	for _, child := range children {
		if child.Name == "." || child.Name == ".." {
			continue
		}
		if !walkRemote(ctx, store, child, join(dst, child.Name), depth+1, join, dirsFirst, yield) {
			return false
		}
	}
	return true
}

func dirsBeforeFiles(entries []connector.Entry) []connector.Entry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b connector.Entry) int {
		switch {
		case a.IsDir == b.IsDir:
			return 0
		case a.IsDir:
			return -1
		default:
			return 1
		}
	})
	return sorted
}

// localTree walks a local subtree pre-order with subdirectories created and
// descended into before sibling files. Destinations are remote paths below dst.
func localTree(ctx context.Context, root string, info os.FileInfo, dst string) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		walkLocal(ctx, root, info, dst, 0, nil, yield)
	}
}

// walkLocal follows symlinks. ancestors holds the directories above src so a
// link back into its own chain is reported as OpLoop instead of recursed into.
func walkLocal(ctx context.Context, src string, info os.FileInfo, dst string, depth int, ancestors []os.FileInfo, yield func(Step, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(Step{}, err)
		return false
	}
	if !info.IsDir() {
		return yield(Step{Op: OpFile, Src: src, Dst: dst, Size: info.Size(), Depth: depth}, nil)
	}
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return yield(Step{Op: OpLoop, Src: src, Dst: dst, Depth: depth}, nil)
		}
	}
	if !yield(Step{Op: OpMkdir, Src: src, Dst: dst, Depth: depth}, nil) {
		return false
	}
	ancestors = append(ancestors, info)

	entries, err := os.ReadDir(src)
	if err != nil {
		yield(Step{}, fmt.Errorf("listing %s: %w", src, err))
		return false
	}

	var dirs, files []os.FileInfo
	for _, de := range entries {
		// Stat rather than de.Info so symlinks are followed.
		fi, err := os.Stat(filepath.Join(src, de.Name()))
		if err != nil {
			yield(Step{}, fmt.Errorf("stat %s: %w", filepath.Join(src, de.Name()), err))
			return false
		}
		if fi.IsDir() {
			dirs = append(dirs, fi)
		} else {
			files = append(files, fi)
		}
	}
	for _, fi := range append(dirs, files...) {
		if !walkLocal(ctx, filepath.Join(src, fi.Name()), fi, path.Join(dst, fi.Name()), depth+1, slices.Clip(ancestors), yield) {
			return false
		}
	}
	return true
}

// removalOrder walks a remote subtree post-order: every child is yielded
// before the directory that holds it.
func removalOrder(ctx context.Context, store connector.Store, root connector.Entry) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		walkRemoval(ctx, store, root, 0, yield)
	}
}

func walkRemoval(ctx context.Context, store connector.Store, e connector.Entry, depth int, yield func(Step, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(Step{}, err)
		return false
	}
	if !e.IsDir {
		return yield(Step{Op: OpRemove, Src: e.Path, Size: e.Size, Depth: depth}, nil)
	}

	children, err := store.ReadDir(ctx, e.Path)
	if err != nil {
		yield(Step{}, fmt.Errorf("listing %s: %w", e.Path, err))
		return false
	}
	for _, child := range children {
		if child.Name == "." || child.Name == ".." {
			continue
		}
		if !walkRemoval(ctx, store, child, depth+1, yield) {
			return false
		}
	}
	return yield(Step{Op: OpRemoveDir, Src: e.Path, Depth: depth}, nil)
}
