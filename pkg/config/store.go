package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajitpratap0/pulsar/pkg/errors"
)

// DefaultConnectionsDir is where connections live unless configured.
const DefaultConnectionsDir = "connections"

// Environment variables read by FromEnvironment.
const (
	EnvEntrypoint = "PULSAR_ENTRYPOINT"
	EnvYAMLConfig = "PULSAR_YAML_CONFIG"
)

// Store keeps connections as <name>.yaml files in a directory.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir, or DefaultConnectionsDir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultConnectionsDir
	}
	return &Store{Dir: dir}
}

// Path returns the file holding connection name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.Dir, name+".yaml")
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Newf(errors.ErrorTypeConfig, "invalid connection name %q", name)
	}
	return nil
}

// Exists reports whether connection name has been saved.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Load reads connection name.
func (s *Store) Load(name string) (*Connection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(name)) //nolint:gosec // G304: name is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrorTypeNotFound, "connection %q does not exist, create it with `pulsar init %s`", name, name).
				WithDetail("path", s.Path(name))
		}
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to read connection %q", name)
	}
	return Parse(name, data)
}

// Save writes conn under its name, replacing any previous version. Files
// are private to the user since they usually hold credentials.
func (s *Store) Save(conn *Connection) error {
	if err := validName(conn.Name); err != nil {
		return err
	}
	data, err := conn.Bytes()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeResource, "failed to create connections directory")
	}
	if err := os.WriteFile(s.Path(conn.Name), data, 0o600); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeResource, "failed to write connection %q", conn.Name)
	}
	return nil
}

// Init saves a new connection and refuses to overwrite an existing one.
func (s *Store) Init(conn *Connection) error {
	if err := validName(conn.Name); err != nil {
		return err
	}
	if s.Exists(conn.Name) {
		return errors.Newf(errors.ErrorTypeConfig,
			"connection %q already exists; to re-init it, delete the file %s and run this command again",
			conn.Name, s.Path(conn.Name))
	}
	return s.Save(conn)
}

// List returns the saved connection names, sorted. A missing directory
// holds no connections.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to list connections")
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names, nil
}

// FromEnvironment builds the connection handed to a container. getenv is
// usually os.Getenv.
func FromEnvironment(getenv func(string) string) (*Connection, error) {
	executable := getenv(EnvEntrypoint)
	if executable == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "%s environment variable is not set", EnvEntrypoint)
	}
	encoded := getenv(EnvYAMLConfig)
	if encoded == "" {
		return nil, errors.Newf(errors.ErrorTypeConfig, "%s environment variable is not set", EnvYAMLConfig)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "%s is not valid base64", EnvYAMLConfig)
	}
	conn, err := Parse("env", data)
	if err != nil {
		return nil, err
	}
	if err := conn.SetExecutable(executable); err != nil {
		return nil, err
	}
	return conn, nil
}

// EncodeEnvironment returns the PULSAR_YAML_CONFIG value for conn.
func EncodeEnvironment(conn *Connection) (string, error) {
	data, err := conn.Bytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
