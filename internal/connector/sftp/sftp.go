// Package sftp provides a store backed by an SFTP subsystem over SSH.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eugenetaranov/rcc/internal/connector"
)

// PassphraseFunc returns the passphrase for an encrypted private key.
type PassphraseFunc func(keyPath string) ([]byte, error)

// Connector talks to a remote host over SSH and exposes its file system through SFTP.
type Connector struct {
	cfg        connector.Config
	password   string
	keyFile    string
	knownHosts string
	passphrase PassphraseFunc
	log        *zap.Logger

	ssh  *ssh.Client
	sftp *sftp.Client
	cwd  string
}

// Option configures the SFTP connector.
type Option func(*Connector)

// WithPassword authenticates with a password.
func WithPassword(password string) Option {
	return func(c *Connector) {
		c.password = password
	}
}

// WithPrivateKey authenticates with the private key stored at keyFile.
func WithPrivateKey(keyFile string) Option {
	return func(c *Connector) {
		c.keyFile = keyFile
	}
}

// WithPassphrase sets the callback used when the private key is encrypted.
func WithPassphrase(fn PassphraseFunc) Option {
	return func(c *Connector) {
		c.passphrase = fn
	}
}

// WithKnownHosts verifies the host key against a known_hosts file.
func WithKnownHosts(file string) Option {
	return func(c *Connector) {
		c.knownHosts = file
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Connector) {
		c.log = log
	}
}

// New creates a new SFTP connector. Connect must be called before use.
func New(cfg connector.Config, opts ...Option) *Connector {
	c := &Connector{
		cfg: cfg,
		log: zap.NewNop(),
		cwd: "/",
	}
	if c.cfg.Port == 0 {
		c.cfg.Port = 22
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect dials the host, authenticates and opens the SFTP subsystem.
func (c *Connector) Connect(ctx context.Context) error {
	clientCfg, err := c.clientConfig()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	c.log.Debug("dialing", zap.String("addr", addr), zap.String("user", c.cfg.User))

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", connector.ErrConnection, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		if isAuthError(err) {
			return fmt.Errorf("%w: %v", connector.ErrAuthentication, err)
		}
		return fmt.Errorf("%w: %s: %v", connector.ErrConnection, addr, err)
	}
	c.ssh = ssh.NewClient(sshConn, chans, reqs)

	c.sftp, err = sftp.NewClient(c.ssh)
	if err != nil {
		c.ssh.Close()
		c.ssh = nil
		return fmt.Errorf("failed to start sftp subsystem: %w", err)
	}

	if wd, err := c.sftp.Getwd(); err == nil && wd != "" {
		c.cwd = wd
	}
	c.log.Debug("connected", zap.String("addr", addr), zap.String("cwd", c.cwd))
	return nil
}

func (c *Connector) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := c.authMethod()
	if err != nil {
		return nil, err
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if c.knownHosts != "" {
		hostKey, err = knownhosts.New(c.knownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", c.knownHosts, err)
		}
	} else {
		c.log.Debug("host key verification disabled", zap.String("host", c.cfg.Host))
	}

	return &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKey,
		Timeout:         c.cfg.DialTimeout(),
	}, nil
}

func (c *Connector) authMethod() (ssh.AuthMethod, error) {
	if c.keyFile == "" {
		return ssh.Password(c.password), nil
	}

	pem, err := os.ReadFile(c.keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read private key: %v", connector.ErrAuthentication, err)
	}

	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && c.passphrase != nil {
		var pass []byte
		pass, err = c.passphrase(c.keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read passphrase: %w", err)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, pass)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key %s: %v", connector.ErrAuthentication, c.keyFile, err)
	}

	return ssh.PublicKeys(signer), nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// Close terminates the SFTP subsystem and the SSH connection.
func (c *Connector) Close() error {
	var errs []error
	if c.sftp != nil {
		errs = append(errs, c.sftp.Close())
		c.sftp = nil
	}
	if c.ssh != nil {
		errs = append(errs, c.ssh.Close())
		c.ssh = nil
	}
	return errors.Join(errs...)
}

// Exists reports whether p exists.
func (c *Connector) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.Stat(ctx, p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Stat returns the attributes of p.
func (c *Connector) Stat(ctx context.Context, p string) (*connector.Entry, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	p = c.resolve(p)
	fi, err := c.sftp.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: err}
	}
	e := toEntry(p, fi)
	return &e, nil
}

// ReadDir lists the children of p.
func (c *Connector) ReadDir(ctx context.Context, p string) ([]connector.Entry, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	p = c.resolve(p)
	infos, err := c.sftp.ReadDir(p)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: err}
	}

	entries := make([]connector.Entry, 0, len(infos))
	for _, fi := range infos {
		if fi.Name() == "." || fi.Name() == ".." {
			continue
		}
		entries = append(entries, toEntry(path.Join(p, fi.Name()), fi))
	}
	return entries, nil
}

// OpenRead opens p for reading.
func (c *Connector) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	p = c.resolve(p)
	f, err := c.sftp.Open(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: p, Err: err}
	}
	return f, nil
}

// OpenWrite creates or truncates p.
func (c *Connector) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}
	p = c.resolve(p)
	f, err := c.sftp.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, &fs.PathError{Op: "create", Path: p, Err: err}
	}
	return f, nil
}

// Mkdir creates directory p.
func (c *Connector) Mkdir(ctx context.Context, p string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	p = c.resolve(p)
	if err := c.sftp.Mkdir(p); err != nil {
		return &fs.PathError{Op: "mkdir", Path: p, Err: err}
	}
	return nil
}

// Remove deletes file p.
func (c *Connector) Remove(ctx context.Context, p string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	p = c.resolve(p)
	if err := c.sftp.Remove(p); err != nil {
		return &fs.PathError{Op: "remove", Path: p, Err: err}
	}
	return nil
}

// RemoveDir deletes the empty directory p.
func (c *Connector) RemoveDir(ctx context.Context, p string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	p = c.resolve(p)
	if err := c.sftp.RemoveDirectory(p); err != nil {
		return &fs.PathError{Op: "rmdir", Path: p, Err: err}
	}
	return nil
}

// Rename moves oldPath to newPath.
func (c *Connector) Rename(ctx context.Context, oldPath, newPath string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	oldPath, newPath = c.resolve(oldPath), c.resolve(newPath)
	if err := c.sftp.Rename(oldPath, newPath); err != nil {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: err}
	}
	return nil
}

// Chdir changes the working directory used to resolve relative paths.
func (c *Connector) Chdir(ctx context.Context, p string) (string, error) {
	e, err := c.Stat(ctx, p)
	if err != nil {
		return "", err
	}
	if !e.IsDir {
		return "", &fs.PathError{Op: "chdir", Path: e.Path, Err: errors.New("not a directory")}
	}
	c.cwd = e.Path
	return c.cwd, nil
}

// Getwd returns the working directory.
func (c *Connector) Getwd() string {
	return c.cwd
}

// String returns a description of the connection.
func (c *Connector) String() string {
	return fmt.Sprintf("sftp://%s@%s:%d", c.cfg.User, c.cfg.Host, c.cfg.Port)
}

func (c *Connector) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.sftp == nil {
		return connector.ErrNotConnected
	}
	return nil
}

func (c *Connector) resolve(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(c.cwd, p)
	}
	return path.Clean(p)
}

func toEntry(p string, fi os.FileInfo) connector.Entry {
	e := connector.Entry{
		Name:    path.Base(p),
		Path:    p,
		IsDir:   fi.IsDir(),
		ModTime: fi.ModTime(),
	}
	if !e.IsDir {
		e.Size = fi.Size()
	}
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		e.AccessTime = time.Unix(int64(st.Atime), 0)
	} else {
		e.AccessTime = e.ModTime
	}
	return e
}

// Ensure Connector implements the connector interfaces.
var (
	_ connector.Store = (*Connector)(nil)
	_ connector.Shell = (*Connector)(nil)
)
