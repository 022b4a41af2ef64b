package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eugenetaranov/rcc/internal/profile"
)

func TestConsoleRunsCommandsOnOneConnection(t *testing.T) {
	h := newHarness(t, strings.Join([]string{
		"ls",
		"",
		"cd var",
		"bogus",
		"console",
		"open",
		`cd "missing dir"`,
		"ls",
		"exit",
		"ls",
	}, "\n")+"\n")
	h.store.MkdirAll("/var/log")
	require.Equal(t, ExitOK, h.run("use", h.profile))

	require.Equal(t, ExitOK, h.run("console"))
	out := h.out.String()

	assert.Contains(t, out, "connected to u@h:22")
	assert.Contains(t, out, "u@h:/> ")
	assert.Contains(t, out, "u@h:/var> ")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "already inside the console")
	assert.Contains(t, out, "open is not available inside the console")
	assert.Contains(t, out, "/var/missing dir")
	assert.Equal(t, 1, strings.Count(out, "log/"), "the line after exit must not run")

	assert.False(t, h.store.Connected(), "console must close the session")
	assert.Nil(t, h.s.Store)
	assert.False(t, h.s.Interactive)

	prof, err := profile.Load(h.profile)
	require.NoError(t, err)
	assert.Equal(t, "/var", prof.WorkingDirectory)
}

func TestConsoleEndOfInput(t *testing.T) {
	h := newHarness(t, "ls")
	require.Equal(t, ExitOK, h.run("use", h.profile))

	require.Equal(t, ExitOK, h.run("console"))
	assert.False(t, h.store.Connected())
}

func TestConsoleDeleteSharesInput(t *testing.T) {
	h := newHarness(t, "del a\ny\nls\nquit\n")
	h.store.WriteFile("/a/b.txt", []byte("b"))
	h.store.WriteFile("/keep.txt", []byte("k"))
	require.Equal(t, ExitOK, h.run("use", h.profile))

	require.Equal(t, ExitOK, h.run("console"))
	assert.Equal(t, []string{"/keep.txt"}, h.store.Paths("/"))
	assert.Contains(t, h.out.String(), "deleted /a")
}

func TestConsoleInterrupt(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	h := newHarnessReader(t, pr)
	require.Equal(t, ExitOK, h.run("use", h.profile))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- h.runContext(ctx, "console") }()

	// The write returns once the console has read the line, so it is connected.
	_, err := pw.Write([]byte("ls\n"))
	require.NoError(t, err)
	cancel()

	select {
	case code := <-done:
		assert.Equal(t, ExitOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("console did not stop on interrupt")
	}
	assert.False(t, h.store.Connected())
}

func TestConsoleRequiresProfile(t *testing.T) {
	h := newHarness(t, "ls\n")
	assert.Equal(t, ExitNoActiveSession, h.run("console"))
}
