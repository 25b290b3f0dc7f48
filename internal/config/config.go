package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNotFound is returned by Load when no configuration file exists.
var ErrNotFound = errors.New("configuration not found")

type Config struct {
	Token  string `mapstructure:"token"`
	API    string `mapstructure:"api"`
	Remote string `mapstructure:"remote"`
	Web    string `mapstructure:"web"`

	RepoPath           string    `mapstructure:"repo_path"`
	IgnoredRepos       []string  `mapstructure:"ignored_repos"`
	NotifyPullRequests bool      `mapstructure:"notify_pull_requests"`
	LogFile            string    `mapstructure:"log_file"`
	Intervals          Intervals `mapstructure:"intervals"`
	Log                LogConfig `mapstructure:"log"`
	TUI                TUIConfig `mapstructure:"tui"`
}

type Intervals struct {
	Head      time.Duration `mapstructure:"head"`
	Poll      time.Duration `mapstructure:"poll"`
	Discovery time.Duration `mapstructure:"discovery"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type TUIConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

const (
	DefaultAPI    = "https://api.getsturdy.com"
	DefaultRemote = "https://git.getsturdy.com/"
	DefaultWeb    = "https://getsturdy.com"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("api", DefaultAPI)
	v.SetDefault("remote", DefaultRemote)
	v.SetDefault("web", DefaultWeb)
	v.SetDefault("repo_path", ".")
	v.SetDefault("ignored_repos", []string{})
	v.SetDefault("notify_pull_requests", false)
	v.SetDefault("intervals.head", "2s")
	v.SetDefault("intervals.poll", "1s")
	v.SetDefault("intervals.discovery", "30s")
	v.SetDefault("intervals.debounce", "200ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("tui.refresh_interval", "500ms")
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	cfg.fillDerived()
	return &cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.fillDerived()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) fillDerived() {
	c.API = strings.TrimRight(c.API, "/")
	c.Web = strings.TrimRight(c.Web, "/")
	if c.LogFile == "" {
		c.LogFile = filepath.Join(DefaultDir(), "logs", "conflictwatch.log")
	}
	if c.RepoPath != "" {
		if abs, err := filepath.Abs(c.RepoPath); err == nil {
			c.RepoPath = abs
		}
	}
}

func (c *Config) validate() error {
	for _, u := range []struct{ key, value string }{
		{"api", c.API},
		{"remote", c.Remote},
		{"web", c.Web},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil {
			return fmt.Errorf("%s: invalid URL %q: %w", u.key, u.value, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s: URL %q needs scheme and host", u.key, u.value)
		}
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"intervals.head", c.Intervals.Head},
		{"intervals.poll", c.Intervals.Poll},
		{"intervals.discovery", c.Intervals.Discovery},
		{"intervals.debounce", c.Intervals.Debounce},
		{"tui.refresh_interval", c.TUI.RefreshInterval},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.key, d.value)
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: invalid level %q (debug|info|warn|error)", c.Log.Level)
	}
	return nil
}

// IsIgnored reports whether the owner/name repository was dismissed with "Never".
func (c *Config) IsIgnored(fullName string) bool {
	for _, r := range c.IgnoredRepos {
		if r == fullName {
			return true
		}
	}
	return false
}

// DefaultDir is where the configuration and logs live unless overridden.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "conflictwatch")
	}
	return filepath.Join(os.TempDir(), "conflictwatch")
}

// DefaultPath is the default configuration file.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}
