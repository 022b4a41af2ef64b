package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/rcc/internal/connector/memory"
)

func collect(t *testing.T, seq func(func(Step, error) bool)) []string {
	t.Helper()
	var got []string
	for step, err := range seq {
		require.NoError(t, err)
		got = append(got, step.Op.String()+" "+step.Src+" -> "+step.Dst)
	}
	return got
}

func remoteFixture(t *testing.T, opts ...memory.Option) *memory.Store {
	t.Helper()
	store := memory.New(opts...)
	require.NoError(t, store.Connect(context.Background()))
	store.WriteFile("/a/z.txt", []byte("z"))
	store.WriteFile("/a/b/c.txt", []byte("cc"))
	store.WriteFile("/a/m.txt", []byte("mmm"))
	return store
}

func TestRemoteTreeListingOrder(t *testing.T) {
	store := remoteFixture(t)
	root, err := store.Stat(context.Background(), "/a")
	require.NoError(t, err)

	got := collect(t, remoteTree(context.Background(), store, *root, "/dst", path.Join, false))
	assert.Equal(t, []string{
		"mkdir /a -> /dst",
		"mkdir /a/b -> /dst/b",
		"file /a/b/c.txt -> /dst/b/c.txt",
		"file /a/m.txt -> /dst/m.txt",
		"file /a/z.txt -> /dst/z.txt",
	}, got)
}

func TestRemoteTreeDirsFirst(t *testing.T) {
	store := remoteFixture(t)
	store.WriteFile("/a/0.txt", []byte("0"))
	root, err := store.Stat(context.Background(), "/a")
	require.NoError(t, err)

	got := collect(t, remoteTree(context.Background(), store, *root, "/dst", path.Join, true))
	assert.Equal(t, []string{
		"mkdir /a -> /dst",
		"mkdir /a/b -> /dst/b",
		"file /a/b/c.txt -> /dst/b/c.txt",
		"file /a/0.txt -> /dst/0.txt",
		"file /a/m.txt -> /dst/m.txt",
		"file /a/z.txt -> /dst/z.txt",
	}, got)
}

func TestRemoteTreeStopsEarly(t *testing.T) {
	store := remoteFixture(t)
	root, err := store.Stat(context.Background(), "/a")
	require.NoError(t, err)

	n := 0
	for range remoteTree(context.Background(), store, *root, "/dst", path.Join, false) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestRemoteTreeListingError(t *testing.T) {
	boom := errors.New("connection lost")
	store := remoteFixture(t, memory.WithFault("readdir", "/a/b", boom))
	root, err := store.Stat(context.Background(), "/a")
	require.NoError(t, err)

	var last error
	for _, err := range remoteTree(context.Background(), store, *root, "/dst", path.Join, false) {
		last = err
	}
	assert.ErrorIs(t, last, boom)
}

func TestLocalTreeSubdirsBeforeFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":       "a",
		"sub/b.txt":   "bb",
		"sub/deep/c":  "ccc",
		"z/empty.txt": "",
	})
	info, err := os.Stat(root)
	require.NoError(t, err)

	var got []string
	for step, err := range localTree(context.Background(), root, info, "/r") {
		require.NoError(t, err)
		rel, _ := filepath.Rel(root, step.Src)
		got = append(got, step.Op.String()+" "+filepath.ToSlash(rel)+" -> "+step.Dst)
	}
	assert.Equal(t, []string{
		"mkdir . -> /r",
		"mkdir sub -> /r/sub",
		"mkdir sub/deep -> /r/sub/deep",
		"file sub/deep/c -> /r/sub/deep/c",
		"file sub/b.txt -> /r/sub/b.txt",
		"mkdir z -> /r/z",
		"file z/empty.txt -> /r/z/empty.txt",
		"file a.txt -> /r/a.txt",
	}, got)
}

func TestLocalTreeStopsAtLinkToAncestor(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a", "sub/b.txt": "b"})
	require.NoError(t, os.Symlink("..", filepath.Join(root, "sub", "back")))
	info, err := os.Stat(root)
	require.NoError(t, err)

	var got []string
	for step, err := range localTree(context.Background(), root, info, "/r") {
		require.NoError(t, err)
		rel, _ := filepath.Rel(root, step.Src)
		got = append(got, step.Op.String()+" "+filepath.ToSlash(rel)+" -> "+step.Dst)
	}
	assert.Equal(t, []string{
		"mkdir . -> /r",
		"mkdir sub -> /r/sub",
		"loop sub/back -> /r/sub/back",
		"file sub/b.txt -> /r/sub/b.txt",
		"file a.txt -> /r/a.txt",
	}, got)
}

func TestLocalTreeFollowsLinkToSibling(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"shared/x.txt": "x"})
	require.NoError(t, os.Symlink("shared", filepath.Join(root, "alias")))
	info, err := os.Stat(root)
	require.NoError(t, err)

	var got []string
	for step, err := range localTree(context.Background(), root, info, "/r") {
		require.NoError(t, err)
		got = append(got, step.Op.String()+" "+step.Dst)
	}
	assert.Equal(t, []string{
		"mkdir /r",
		"mkdir /r/alias",
		"file /r/alias/x.txt",
		"mkdir /r/shared",
		"file /r/shared/x.txt",
	}, got)
}

func TestLocalTreeCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})
	info, err := os.Stat(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var last error
	for _, err := range localTree(ctx, root, info, "/r") {
		last = err
	}
	assert.ErrorIs(t, last, context.Canceled)
}

func TestRemovalOrderIsPostOrder(t *testing.T) {
	store := remoteFixture(t)
	root, err := store.Stat(context.Background(), "/a")
	require.NoError(t, err)

	var got []string
	for step, err := range removalOrder(context.Background(), store, *root) {
		require.NoError(t, err)
		got = append(got, step.Op.String()+" "+step.Src)
	}
	assert.Equal(t, []string{
		"remove /a/b/c.txt",
		"rmdir /a/b",
		"remove /a/m.txt",
		"remove /a/z.txt",
		"rmdir /a",
	}, got)
}

func TestRemovalOrderPermissionError(t *testing.T) {
	store := remoteFixture(t, memory.WithFault("readdir", "/a/b", fs.ErrPermission))
	root, err := store.Stat(context.Background(), "/a")
	require.NoError(t, err)

	var last error
	for _, err := range removalOrder(context.Background(), store, *root) {
		last = err
	}
	assert.ErrorIs(t, last, fs.ErrPermission)
}
