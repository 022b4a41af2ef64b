// Package memory provides an in-memory store used to exercise the engine
// without a remote host.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eugenetaranov/rcc/internal/connector"
)

type node struct {
	dir   bool
	data  []byte
	mtime time.Time
	atime time.Time
}

type fault struct {
	op   string
	path string
}

// Store keeps a file tree in memory and records every mutating call.
type Store struct {
	mu        sync.Mutex
	nodes     map[string]*node
	cwd       string
	connected bool
	faults    map[fault]error
	calls     []string
	now       func() time.Time
}

// Option configures the memory store.
type Option func(*Store)

// WithWorkdir sets the initial working directory.
func WithWorkdir(dir string) Option {
	return func(s *Store) {
		s.cwd = path.Clean("/" + dir)
	}
}

// WithFault makes the named operation fail with err for path.
// Operations are stat, readdir, open, create, mkdir, remove, rmdir, rename and chdir.
func WithFault(op, p string, err error) Option {
	return func(s *Store) {
		s.faults[fault{op: op, path: path.Clean(p)}] = err
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store containing only the root directory.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:  make(map[string]*node),
		cwd:    "/",
		faults: make(map[fault]error),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nodes["/"] = &node{dir: true, mtime: s.now(), atime: s.now()}
	return s
}

// Connect marks the store as connected.
func (s *Store) Connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

// Close marks the store as disconnected.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// Connected reports whether Connect was called without a matching Close.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Calls returns the mutating operations performed so far, e.g. "remove /a/b.txt".
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// ResetCalls forgets the recorded operations.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// WriteFile stores data at p, creating parent directories. Not recorded.
func (s *Store) WriteFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	s.mkdirAll(path.Dir(p))
	s.nodes[p] = &node{data: append([]byte(nil), data...), mtime: s.now(), atime: s.now()}
}

// MkdirAll creates p and any missing parents. Not recorded.
func (s *Store) MkdirAll(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(s.resolve(p))
}

// ReadFile returns the content stored at p.
func (s *Store) ReadFile(p string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[s.resolve(p)]
	if !ok || n.dir {
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), n.data...), nil
}

// Paths returns every path in the store below root, sorted.
func (s *Store) Paths(root string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	root = s.resolve(root)
	var out []string
	for p := range s.nodes {
		if p != root && within(root, p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Exists reports whether p exists.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Stat returns the entry at p.
func (s *Store) Stat(ctx context.Context, p string) (*connector.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("stat", p); err != nil {
		return nil, err
	}
	n, ok := s.nodes[p]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	e := entry(p, n)
	return &e, nil
}

// ReadDir lists the children of directory p sorted by name.
func (s *Store) ReadDir(ctx context.Context, p string) ([]connector.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("readdir", p); err != nil {
		return nil, err
	}
	n, ok := s.nodes[p]
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	if !n.dir {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fmt.Errorf("not a directory")}
	}

	var entries []connector.Entry
	for child, cn := range s.nodes {
		if child != p && path.Dir(child) == p {
			entries = append(entries, entry(child, cn))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// OpenRead opens the file at p for reading.
func (s *Store) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("open", p); err != nil {
		return nil, err
	}
	n, ok := s.nodes[p]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if n.dir {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fmt.Errorf("is a directory")}
	}
	n.atime = s.now()
	return io.NopCloser(bytes.NewReader(append([]byte(nil), n.data...))), nil
}

// OpenWrite creates or truncates the file at p.
func (s *Store) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("create", p); err != nil {
		return nil, err
	}
	if err := s.parentDir(p, "create"); err != nil {
		return nil, err
	}
	if n, ok := s.nodes[p]; ok && n.dir {
		return nil, &fs.PathError{Op: "create", Path: p, Err: fmt.Errorf("is a directory")}
	}
	n := &node{mtime: s.now(), atime: s.now()}
	s.nodes[p] = n
	s.calls = append(s.calls, "create "+p)
	return &writer{s: s, n: n}, nil
}

// Mkdir creates directory p. The parent must exist.
func (s *Store) Mkdir(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("mkdir", p); err != nil {
		return err
	}
	if _, ok := s.nodes[p]; ok {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	if err := s.parentDir(p, "mkdir"); err != nil {
		return err
	}
	s.nodes[p] = &node{dir: true, mtime: s.now(), atime: s.now()}
	s.calls = append(s.calls, "mkdir "+p)
	return nil
}

// Remove deletes the file at p.
func (s *Store) Remove(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("remove", p); err != nil {
		return err
	}
	n, ok := s.nodes[p]
	if !ok {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	if n.dir {
		return &fs.PathError{Op: "remove", Path: p, Err: fmt.Errorf("is a directory")}
	}
	delete(s.nodes, p)
	s.calls = append(s.calls, "remove "+p)
	return nil
}

// RemoveDir deletes the empty directory at p.
func (s *Store) RemoveDir(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("rmdir", p); err != nil {
		return err
	}
	n, ok := s.nodes[p]
	if !ok {
		return &fs.PathError{Op: "rmdir", Path: p, Err: fs.ErrNotExist}
	}
	if !n.dir {
		return &fs.PathError{Op: "rmdir", Path: p, Err: fmt.Errorf("not a directory")}
	}
	for child := range s.nodes {
		if child != p && path.Dir(child) == p {
			return &fs.PathError{Op: "rmdir", Path: p, Err: fmt.Errorf("directory not empty")}
		}
	}
	delete(s.nodes, p)
	s.calls = append(s.calls, "rmdir "+p)
	return nil
}

// Rename moves oldPath and everything below it to newPath.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldPath, newPath = s.resolve(oldPath), s.resolve(newPath)
	if err := s.check("rename", oldPath); err != nil {
		return err
	}
	if _, ok := s.nodes[oldPath]; !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	if _, ok := s.nodes[newPath]; ok {
		return &fs.PathError{Op: "rename", Path: newPath, Err: fs.ErrExist}
	}
	if err := s.parentDir(newPath, "rename"); err != nil {
		return err
	}

	moved := make(map[string]*node)
	for p, n := range s.nodes {
		if within(oldPath, p) {
			moved[newPath+strings.TrimPrefix(p, oldPath)] = n
			delete(s.nodes, p)
		}
	}
	for p, n := range moved {
		s.nodes[p] = n
	}
	s.calls = append(s.calls, "rename "+oldPath+" "+newPath)
	return nil
}

// Chdir changes the working directory.
func (s *Store) Chdir(ctx context.Context, p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = s.resolve(p)
	if err := s.check("chdir", p); err != nil {
		return "", err
	}
	n, ok := s.nodes[p]
	if !ok {
		return "", &fs.PathError{Op: "chdir", Path: p, Err: fs.ErrNotExist}
	}
	if !n.dir {
		return "", &fs.PathError{Op: "chdir", Path: p, Err: fmt.Errorf("not a directory")}
	}
	s.cwd = p
	return p, nil
}

// Getwd returns the working directory.
func (s *Store) Getwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// String returns a description of the store.
func (s *Store) String() string {
	return "memory://"
}

func (s *Store) resolve(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(s.cwd, p)
	}
	return path.Clean(p)
}

func (s *Store) check(op, p string) error {
	if !s.connected {
		return connector.ErrNotConnected
	}
	if err, ok := s.faults[fault{op: op, path: p}]; ok {
		return &fs.PathError{Op: op, Path: p, Err: err}
	}
	return nil
}

func (s *Store) parentDir(p, op string) error {
	parent, ok := s.nodes[path.Dir(p)]
	if !ok || !parent.dir {
		return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}
	return nil
}

func (s *Store) mkdirAll(p string) {
	for dir := p; ; dir = path.Dir(dir) {
		if _, ok := s.nodes[dir]; !ok {
			s.nodes[dir] = &node{dir: true, mtime: s.now(), atime: s.now()}
		}
		if dir == "/" {
			return
		}
	}
}

type writer struct {
	s *Store
	n *node
}

func (w *writer) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	w.n.data = append(w.n.data, p...)
	w.n.mtime = w.s.now()
	return len(p), nil
}

func (w *writer) Close() error {
	return nil
}

func entry(p string, n *node) connector.Entry {
	e := connector.Entry{
		Name:       path.Base(p),
		Path:       p,
		IsDir:      n.dir,
		ModTime:    n.mtime,
		AccessTime: n.atime,
	}
	if !n.dir {
		e.Size = int64(len(n.data))
	}
	return e
}

func within(root, p string) bool {
	if root == "/" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

// Ensure Store implements the connector.Store interface.
var _ connector.Store = (*Store)(nil)
