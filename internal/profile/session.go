package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoActiveSession is returned when no profile was given and none is active.
var ErrNoActiveSession = errors.New("no active session, select a profile with 'rcc use <profile>' or pass --use")

// EnvSessionFile overrides the location of the session cache file.
const EnvSessionFile = "RCC_SESSION_FILE"

// IsClearSentinel reports whether p asks to clear the active profile.
func IsClearSentinel(p string) bool {
	switch p {
	case ".", "/", "-":
		return true
	default:
		return false
	}
}

// DefaultCachePath returns $RCC_SESSION_FILE, or rcc/session below the
// user configuration directory.
func DefaultCachePath() (string, error) {
	if p := os.Getenv(EnvSessionFile); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "rcc", "session"), nil
}

// Cache is the pointer file holding the path of the active profile.
type Cache struct {
	path string
}

// NewCache creates a cache stored at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the location of the cache file.
func (c *Cache) Path() string {
	return c.path
}

// Active returns the path of the active profile.
func (c *Cache) Active() (string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoActiveSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session file: %w", err)
	}

	p := strings.TrimSpace(string(data))
	if p == "" {
		return "", ErrNoActiveSession
	}
	return p, nil
}

// SetActive makes the profile at p the active one and returns it. The
// sentinels ".", "/" and "-" clear the active profile and return nil.
func (c *Cache) SetActive(p string) (*Profile, error) {
	if IsClearSentinel(p) {
		return nil, c.Clear()
	}

	prof, err := Load(p)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := writeFileAtomic(c.path, []byte(prof.Path+"\n")); err != nil {
		return nil, err
	}
	return prof, nil
}

// Clear forgets the active profile. Clearing an empty cache is not an error.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Resolve loads explicitPath when given, otherwise the active profile.
func (c *Cache) Resolve(explicitPath string) (*Profile, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	p, err := c.Active()
	if err != nil {
		return nil, err
	}
	return Load(p)
}
