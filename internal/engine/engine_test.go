package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/rcc/internal/connector/memory"
	"github.com/eugenetaranov/rcc/internal/output"
)

// recordingSink records every progress event as a line.
type recordingSink struct {
	events   []string
	onReport func(done, total int64)
}

func (s *recordingSink) Status(format string, args ...any) {
	s.events = append(s.events, "status "+fmt.Sprintf(format, args...))
}

func (s *recordingSink) Report(done, total int64) {
	s.events = append(s.events, fmt.Sprintf("report %d/%d", done, total))
	if s.onReport != nil {
		s.onReport(done, total)
	}
}

func (s *recordingSink) ClearLine() {
	s.events = append(s.events, "clear")
}

// answer is a Confirmer with a fixed reply.
type answer struct {
	yes   bool
	asked []string
}

func (a *answer) Confirm(_ context.Context, question string) (bool, error) {
	a.asked = append(a.asked, question)
	return a.yes, nil
}

type fixture struct {
	store *memory.Store
	eng   *Engine
	sink  *recordingSink
	out   *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.Connect(context.Background()))

	f := &fixture{store: store, sink: &recordingSink{}, out: &bytes.Buffer{}}
	o := output.New(f.out)
	o.SetColor(false)
	opts = append([]Option{WithOutput(o), WithProgress(f.sink)}, opts...)
	f.eng = New(store, opts...)
	return f
}

// writeTree creates files below root from a map of relative path to content.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// readTree returns every file below root keyed by slash-separated relative path.
func readTree(t *testing.T, root string) map[string]string {
	t.Helper()
	got := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		got[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return got
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	f.store.MkdirAll("/srv/app")
	_, err := f.store.Chdir(context.Background(), "/srv/app")
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/srv/app"},
		{in: ".", want: "/srv/app"},
		{in: "logs", want: "/srv/app/logs"},
		{in: `logs\today`, want: "/srv/app/logs/today"},
		{in: "../data/", want: "/srv/data"},
		{in: "/etc", want: "/etc"},
		{in: `\var\log`, want: "/var/log"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.eng.Resolve(tt.in), tt.in)
	}
}

func TestChangeDir(t *testing.T) {
	f := newFixture(t)
	f.store.MkdirAll("/var/log")
	f.store.WriteFile("/var/log/syslog", []byte("x"))
	ctx := context.Background()

	dir, err := f.eng.ChangeDir(ctx, `var\log`)
	require.NoError(t, err)
	assert.Equal(t, "/var/log", dir)
	assert.Equal(t, "/var/log", f.store.Getwd())

	_, err = f.eng.ChangeDir(ctx, "syslog")
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = f.eng.ChangeDir(ctx, "/nope")
	assert.ErrorIs(t, err, ErrRemoteNotFound)
	assert.Equal(t, "/var/log", f.store.Getwd())
}

func TestCopyChunks(t *testing.T) {
	f := newFixture(t, WithChunkSize(4))
	sink := &recordingSink{}
	var dst bytes.Buffer

	n, err := f.eng.copyChunks(context.Background(), &dst, bytes.NewReader([]byte("0123456789")), 10, sink)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "0123456789", dst.String())
	assert.Equal(t, []string{"report 0/10", "report 4/10", "report 8/10", "report 10/10"}, sink.events)
}

func TestCopyChunksCancelled(t *testing.T) {
	f := newFixture(t, WithChunkSize(4))
	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{onReport: func(done, _ int64) {
		if done > 0 {
			cancel()
		}
	}}
	var dst bytes.Buffer

	n, err := f.eng.copyChunks(ctx, &dst, bytes.NewReader([]byte("0123456789")), 10, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, "0123", dst.String())
}
