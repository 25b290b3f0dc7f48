package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CONFLICTWATCH"

// Store reads the configuration file through viper and writes single keys
// back through the YAML node tree, keeping comments and unrelated keys.
type Store struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// token has no default, so it has to be bound for Unmarshal to see it.
	_ = v.BindEnv("token")
	setDefaults(v)
	return v
}

// Load reads and validates the configuration. Every call reads the file
// again; a Config value is never mutated after it is returned.
func (s *Store) Load() (*Config, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	v := s.newViper()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// Set persists value under a dotted key such as "token" or "log.level".
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config %s: top level is not a mapping", s.path)
	}

	var val yaml.Node
	if err := val.Encode(value); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	setNode(root, strings.Split(key, "."), &val)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := writeFile(s.path, out); err != nil {
		return err
	}
	s.logger.Debug("config updated", "key", key, "file", s.path)
	return nil
}

func setNode(m *yaml.Node, path []string, val *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != path[0] {
			continue
		}
		if len(path) == 1 {
			m.Content[i+1] = val
			return
		}
		child := m.Content[i+1]
		if child.Kind != yaml.MappingNode {
			child = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			m.Content[i+1] = child
		}
		setNode(child, path[1:], val)
		return
	}

	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: path[0]}
	if len(path) == 1 {
		m.Content = append(m.Content, key, val)
		return
	}
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, key, child)
	setNode(child, path[1:], val)
}

// writeFile replaces path atomically. The file holds a token, hence 0600.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Watch calls fn whenever the configuration file changes on disk. A missing
// file is created empty first so that a later login is observed.
func (s *Store) Watch(fn func()) error {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		if err := writeFile(s.path, nil); err != nil {
			return fmt.Errorf("create config: %w", err)
		}
	}

	v := s.newViper()
	// A file that does not parse is still watched so a fix is picked up.
	if err := v.ReadInConfig(); err != nil {
		s.logger.Debug("watching unreadable config", "file", s.path, "err", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		s.logger.Debug("config file changed", "file", e.Name, "op", e.Op.String())
		fn()
	})
	v.WatchConfig()
	return nil
}
