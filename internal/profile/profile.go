// Package profile loads, validates and persists remote host profiles and
// tracks which profile is currently active.
package profile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfig is returned for missing or malformed profile fields and unreadable documents.
	ErrConfig = errors.New("invalid profile")

	// ErrParse is returned when a profile document is not valid JSON or YAML.
	ErrParse = errors.New("malformed profile document")

	// ErrUnsupportedFormat is returned for profile files that are neither JSON nor YAML.
	ErrUnsupportedFormat = errors.New("unsupported profile format, use .json, .yml or .yaml")
)

// DefaultWorkingDirectory is used when a profile does not name one.
const DefaultWorkingDirectory = "/"

const keyWorkingDirectory = "workingDirectory"

// requiredKeys must be present in every profile document.
var requiredKeys = []string{"host", "username", "password", "port", "isKeyAuth"}

type format int

const (
	formatJSON format = iota
	formatYAML
)

// Profile identifies a remote endpoint and the credentials used to reach it.
type Profile struct {
	Host     string
	Port     int
	Username string

	// Password is the literal secret, or the private key path when IsKeyAuth is set.
	Password  string
	IsKeyAuth bool

	// WorkingDirectory is an absolute remote path. It is the only field
	// that changes after Load.
	WorkingDirectory string

	// KnownHosts optionally names a known_hosts file used to verify the host key.
	KnownHosts string

	// Timeout is the connection timeout in seconds, zero for the default.
	Timeout int

	// Path is the absolute location of the document the profile was loaded from.
	Path string

	format format
}

// String returns user@host:port.
func (p *Profile) String() string {
	return fmt.Sprintf("%s@%s:%d", p.Username, p.Host, p.Port)
}

// Load reads and validates the profile document at path.
func Load(path string) (*Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	f, err := formatOf(abs)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfig, path, err)
	}

	p, err := Parse(data, f == formatYAML)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	p.Path = abs
	return p, nil
}

// Parse decodes a profile document. YAML is assumed when yamlDoc is true,
// JSON otherwise.
func Parse(data []byte, yamlDoc bool) (*Profile, error) {
	var doc map[string]any
	f := formatJSON
	if yamlDoc {
		f = formatYAML
		var err error
		if doc, err = yamlScalars(data); err != nil {
			return nil, err
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
	}

	p, err := fromMap(doc)
	if err != nil {
		return nil, err
	}
	p.format = f
	return p, nil
}

// yamlScalars decodes a YAML mapping keeping every scalar value as written,
// so "007" stays "007". Null scalars become nil and nested values are kept
// as nodes.
func yamlScalars(data []byte) (map[string]any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	doc := make(map[string]any)
	if len(root.Content) == 0 {
		return doc, nil
	}
	m := root.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrParse)
	}

	for i := 0; i+1 < len(m.Content); i += 2 {
		v := m.Content[i+1]
		if v.Kind == yaml.AliasNode && v.Alias != nil {
			v = v.Alias
		}
		switch {
		case v.Kind == yaml.ScalarNode && v.ShortTag() == "!!null":
			doc[m.Content[i].Value] = nil
		case v.Kind == yaml.ScalarNode:
			doc[m.Content[i].Value] = v.Value
		default:
			doc[m.Content[i].Value] = v
		}
	}
	return doc, nil
}

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yml", ".yaml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func fromMap(doc map[string]any) (*Profile, error) {
	var missing []string
	for _, key := range requiredKeys {
		if _, ok := doc[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required key(s): %s", ErrConfig, strings.Join(missing, ", "))
	}

	p := &Profile{WorkingDirectory: DefaultWorkingDirectory}
	var err error

	if p.Host, err = toString(doc, "host"); err != nil {
		return nil, err
	}
	if p.Host == "" {
		return nil, fmt.Errorf("%w: 'host' cannot be empty", ErrConfig)
	}
	if p.Username, err = toString(doc, "username"); err != nil {
		return nil, err
	}
	if p.Password, err = toString(doc, "password"); err != nil {
		return nil, err
	}
	if p.Port, err = toInt(doc, "port"); err != nil {
		return nil, err
	}
	if p.Port < 1 || p.Port > 65535 {
		return nil, fmt.Errorf("%w: 'port' must be between 1 and 65535, got %d", ErrConfig, p.Port)
	}
	if p.IsKeyAuth, err = toBool(doc, "isKeyAuth"); err != nil {
		return nil, err
	}

	if _, ok := doc[keyWorkingDirectory]; ok {
		wd, err := toString(doc, keyWorkingDirectory)
		if err != nil {
			return nil, err
		}
		p.WorkingDirectory = CleanRemote(wd)
	}
	if _, ok := doc["knownHosts"]; ok {
		if p.KnownHosts, err = toString(doc, "knownHosts"); err != nil {
			return nil, err
		}
	}
	if _, ok := doc["timeout"]; ok {
		if p.Timeout, err = toInt(doc, "timeout"); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// CleanRemote normalizes separators and anchors a remote path at the root.
func CleanRemote(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" {
		return DefaultWorkingDirectory
	}
	return path.Clean("/" + p)
}

func toString(doc map[string]any, key string) (string, error) {
	switch v := doc[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("%w: '%s' must be a string", ErrConfig, key)
	}
}

func toInt(doc map[string]any, key string) (int, error) {
	bad := fmt.Errorf("%w: '%s' must be an integer", ErrConfig, key)
	switch v := doc[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		if v > math.MaxInt32 {
			return 0, bad
		}
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, bad
		}
		return int(v), nil
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, bad
		}
		return n, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, bad
		}
		return n, nil
	default:
		return 0, bad
	}
}

func toBool(doc map[string]any, key string) (bool, error) {
	switch v := doc[key].(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: '%s' must be true or false", ErrConfig, key)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: '%s' must be true or false", ErrConfig, key)
	}
}
