package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, content string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return NewStore(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestLoad_Missing(t *testing.T) {
	s := newTestStore(t, "")
	_, err := s.Load()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_Defaults(t *testing.T) {
	s := newTestStore(t, "token: secret\n")

	cfg, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, DefaultAPI, cfg.API)
	assert.Equal(t, DefaultRemote, cfg.Remote)
	assert.Equal(t, DefaultWeb, cfg.Web)
	assert.Equal(t, 2*time.Second, cfg.Intervals.Head)
	assert.Equal(t, time.Second, cfg.Intervals.Poll)
	assert.Equal(t, 30*time.Second, cfg.Intervals.Discovery)
	assert.Equal(t, 200*time.Millisecond, cfg.Intervals.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.NotifyPullRequests)
	assert.NotEmpty(t, cfg.LogFile)
	assert.True(t, filepath.IsAbs(cfg.RepoPath))
}

func TestLoad_Values(t *testing.T) {
	s := newTestStore(t, `
token: abc
api: https://api.example.com/
remote: https://git.example.com/r/
web: https://example.com
ignored_repos:
  - acme/legacy
notify_pull_requests: true
intervals:
  poll: 5s
  debounce: 1s
log:
  level: debug
`)

	cfg, err := s.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API, "trailing slash trimmed")
	assert.Equal(t, "https://git.example.com/r/", cfg.Remote)
	assert.Equal(t, 5*time.Second, cfg.Intervals.Poll)
	assert.Equal(t, time.Second, cfg.Intervals.Debounce)
	assert.Equal(t, 2*time.Second, cfg.Intervals.Head)
	assert.True(t, cfg.NotifyPullRequests)
	assert.True(t, cfg.IsIgnored("acme/legacy"))
	assert.False(t, cfg.IsIgnored("acme/app"))
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesToken(t *testing.T) {
	t.Setenv("CONFLICTWATCH_TOKEN", "from-env")
	s := newTestStore(t, "token: from-file\n")

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Token)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "relative api", content: "api: /v3\n", errMsg: "api: URL"},
		{name: "zero poll", content: "intervals:\n  poll: 0s\n", errMsg: "intervals.poll must be positive"},
		{name: "bad level", content: "log:\n  level: loud\n", errMsg: "log.level"},
		{name: "bad duration", content: "intervals:\n  head: soon\n", errMsg: "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, tt.content)
			_, err := s.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSet_PreservesOtherKeys(t *testing.T) {
	s := newTestStore(t, `# managed by conflictwatch
token: old # replaced on renew
api: https://api.example.com
log:
  level: warn
`)

	require.NoError(t, s.Set("token", "new"))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "# managed by conflictwatch")
	assert.Contains(t, string(data), "api: https://api.example.com")

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", cfg.Token)
	assert.Equal(t, "warn", cfg.Log.Level)

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSet_NestedAndList(t *testing.T) {
	s := newTestStore(t, "")

	require.NoError(t, s.Set("log.level", "debug"))
	require.NoError(t, s.Set("ignored_repos", []string{"acme/a", "acme/b"}))
	require.NoError(t, s.Set("intervals.poll", "3s"))
	require.NoError(t, s.Set("log.level", "error"))

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, []string{"acme/a", "acme/b"}, cfg.IgnoredRepos)
	assert.Equal(t, 3*time.Second, cfg.Intervals.Poll)
	assert.Empty(t, cfg.Token)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultAPI, cfg.API)
	assert.Equal(t, 500*time.Millisecond, cfg.TUI.RefreshInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestWatch_CallsOnSet(t *testing.T) {
	s := newTestStore(t, "token: start\n")

	var calls atomic.Int32
	require.NoError(t, s.Watch(func() { calls.Add(1) }))

	require.NoError(t, s.Set("token", "a"))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	seen := calls.Load()
	require.NoError(t, s.Set("token", "b"))
	require.Eventually(t, func() bool { return calls.Load() > seen }, 5*time.Second, 10*time.Millisecond)

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", cfg.Token)
}

func TestWatch_CreatesMissingFile(t *testing.T) {
	s := newTestStore(t, "")
	require.NoError(t, s.Watch(func() {}))

	_, err := os.Stat(s.Path())
	require.NoError(t, err)
}

func TestWatch_BrokenFileIsStillWatched(t *testing.T) {
	s := newTestStore(t, "token: [unterminated\n")
	_, err := s.Load()
	require.Error(t, err)

	var calls atomic.Int32
	require.NoError(t, s.Watch(func() { calls.Add(1) }))

	require.NoError(t, os.WriteFile(s.Path(), []byte("token: fixed\n"), 0o600))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	cfg, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "fixed", cfg.Token)
}
