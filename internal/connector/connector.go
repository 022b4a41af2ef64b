// Package connector defines the interface for file operations on a remote store.
package connector

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrConnection is returned when the remote endpoint cannot be reached.
	ErrConnection = errors.New("host could not be reached")

	// ErrAuthentication is returned when the remote endpoint rejects the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotConnected is returned by stores used before Connect or after Close.
	ErrNotConnected = errors.New("not connected")
)

// Entry describes one file or directory on the store.
type Entry struct {
	Name       string
	Path       string
	IsDir      bool
	Size       int64
	ModTime    time.Time
	AccessTime time.Time
}

// Store is the interface for connecting to and manipulating files on a remote store.
//
// Paths are slash-separated. Relative paths are resolved against the current
// working directory. Missing paths are reported with errors wrapping
// fs.ErrNotExist and forbidden ones with errors wrapping fs.ErrPermission.
type Store interface {
	// Connect establishes a connection to the store.
	Connect(ctx context.Context) error

	// Close terminates the connection.
	Close() error

	// Exists reports whether a file or directory exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns the attributes of the entry at path.
	Stat(ctx context.Context, path string) (*Entry, error)

	// ReadDir lists the immediate children of a directory, excluding "." and "..".
	ReadDir(ctx context.Context, path string) ([]Entry, error)

	// OpenRead opens a file for reading.
	OpenRead(ctx context.Context, path string) (io.ReadCloser, error)

	// OpenWrite creates or truncates a file for writing.
	OpenWrite(ctx context.Context, path string) (io.WriteCloser, error)

	// Mkdir creates a single directory.
	Mkdir(ctx context.Context, path string) error

	// Remove deletes a file.
	Remove(ctx context.Context, path string) error

	// RemoveDir deletes an empty directory.
	RemoveDir(ctx context.Context, path string) error

	// Rename moves a file or directory.
	Rename(ctx context.Context, oldPath, newPath string) error

	// Chdir changes the working directory and returns the new absolute path.
	Chdir(ctx context.Context, path string) (string, error)

	// Getwd returns the absolute working directory.
	Getwd() string

	// String returns a human-readable description of the connection.
	String() string
}

// ShellIO holds the streams attached to an interactive remote shell.
type ShellIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Shell is implemented by stores that can also start an interactive login shell.
type Shell interface {
	Shell(ctx context.Context, dir string, streams ShellIO) error
}

// Config holds common configuration for connectors.
type Config struct {
	// Host is the target hostname or IP address.
	Host string

	// Port is the target TCP port.
	Port int

	// User is the username for authentication.
	User string

	// Timeout is the connection timeout in seconds.
	Timeout int
}

// DialTimeout returns the connection timeout, defaulting to ten seconds.
func (c Config) DialTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}
