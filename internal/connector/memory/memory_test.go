package memory

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/rcc/internal/connector"
)

func connected(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := New(opts...)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

func TestRequiresConnect(t *testing.T) {
	s := New()
	_, err := s.Stat(context.Background(), "/")
	assert.ErrorIs(t, err, connector.ErrNotConnected)
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := connected(t)

	w, err := s.OpenWrite(ctx, "/a.txt")
	require.NoError(t, err)
	_, err = io.WriteString(w, "hello")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.OpenRead(ctx, "/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	e, err := s.Stat(ctx, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.Size)
	assert.False(t, e.IsDir)
	assert.Equal(t, []string{"create /a.txt"}, s.Calls())
}

func TestOpenWriteNeedsParent(t *testing.T) {
	s := connected(t)
	_, err := s.OpenWrite(context.Background(), "/missing/a.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRemoveDirRequiresEmpty(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	s.WriteFile("/d/f", []byte("x"))

	assert.Error(t, s.RemoveDir(ctx, "/d"))
	require.NoError(t, s.Remove(ctx, "/d/f"))
	require.NoError(t, s.RemoveDir(ctx, "/d"))

	ok, err := s.Exists(ctx, "/d")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenameMovesSubtree(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	s.WriteFile("/src/a/b.txt", []byte("b"))

	require.NoError(t, s.Rename(ctx, "/src", "/dst"))
	assert.Equal(t, []string{"/dst", "/dst/a", "/dst/a/b.txt"}, s.Paths("/"))
}

func TestChdirAndRelativePaths(t *testing.T) {
	ctx := context.Background()
	s := connected(t)
	s.MkdirAll("/var/log")

	wd, err := s.Chdir(ctx, "var")
	require.NoError(t, err)
	assert.Equal(t, "/var", wd)

	entries, err := s.ReadDir(ctx, ".")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "log", entries[0].Name)
	assert.Equal(t, "/var/log", entries[0].Path)
	assert.True(t, entries[0].IsDir)
}

func TestWorkdirOption(t *testing.T) {
	ctx := context.Background()
	s := connected(t, WithWorkdir("srv/app"))
	assert.Equal(t, "/srv/app", s.Getwd())

	s.MkdirAll("/srv/app")
	w, err := s.OpenWrite(ctx, "notes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hi"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := s.ReadFile("/srv/app/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestFault(t *testing.T) {
	boom := errors.New("boom")
	s := connected(t, WithFault("readdir", "/locked", fs.ErrPermission), WithFault("stat", "/x", boom))
	s.MkdirAll("/locked")

	_, err := s.ReadDir(context.Background(), "/locked")
	assert.ErrorIs(t, err, fs.ErrPermission)

	_, err = s.Exists(context.Background(), "/x")
	assert.ErrorIs(t, err, boom)
}
