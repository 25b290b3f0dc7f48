// Package work runs the agent: it authenticates, discovers the tracked
// repositories, pushes local state upstream when it changes and polls the
// service for conflicts. Every configuration change starts a new generation
// and retires the previous one.
package work

import (
	"context"
	"errors"
	"log/slog"

	"github.com/marcin-skalski/conflictwatch/internal/api"
	"github.com/marcin-skalski/conflictwatch/internal/config"
	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
	"github.com/marcin-skalski/conflictwatch/internal/gitrepo"
	"github.com/marcin-skalski/conflictwatch/internal/watch"
)

var (
	ErrConfigMissing  = errors.New("configuration missing")
	ErrNoToken        = errors.New("no token configured")
	ErrAuthentication = errors.New("authentication failed")
	ErrNotConfigured  = errors.New("repository not configured for conflict detection")

	errSuperseded = errors.New("superseded by a newer generation")
)

type RemoteService interface {
	GetUser(ctx context.Context) (*api.User, error)
	RenewToken(ctx context.Context) (*api.RenewToken, error)
	LookupRepos(ctx context.Context, remotes []api.Remote) ([]conflicts.Repository, error)
	GetConflicts(ctx context.Context, owner, name string) ([]conflicts.Conflict, error)
	PushWorkdir(ctx context.Context, owner, name string, snap api.WorkdirSnapshot) error
}

type Repository interface {
	Root() string
	Head(ctx context.Context) (string, error)
	CurrentBranch(ctx context.Context) (string, error)
	Diff(ctx context.Context) (string, error)
	Remotes(ctx context.Context) ([]gitrepo.Remote, error)
	ForcePush(ctx context.Context, remoteURL, localBranch, remoteBranch string) error
}

// Host is where the user sees what happens.
type Host interface {
	AppendLog(line string)
	// ShowMessage returns the chosen action, or "" when dismissed.
	ShowMessage(ctx context.Context, message string, actions ...string) (string, error)
	OpenURL(url string) error
	SetStatus(m conflicts.StatusBarMessage)
}

type ConfigStore interface {
	Load() (*config.Config, error)
	Set(key string, value any) error
}

type Saves interface {
	Events() <-chan string
	Close() error
}

// Deps are the collaborators of every generation. The factories run once
// per generation with that generation's configuration.
type Deps struct {
	Config  ConfigStore
	Host    Host
	Logger  *slog.Logger
	Version string

	NewService func(cfg *config.Config) RemoteService
	OpenRepo   func(cfg *config.Config) (Repository, error)
	// WatchSaves is optional. Without it only HEAD changes trigger pushes.
	WatchSaves func(root string) (Saves, error)
}

// NewDeps wires the production collaborators.
func NewDeps(store ConfigStore, host Host, logger *slog.Logger, version string) Deps {
	return Deps{
		Config:  store,
		Host:    host,
		Logger:  logger,
		Version: version,
		NewService: func(cfg *config.Config) RemoteService {
			return api.NewClient(cfg.API, cfg.Token, version, logger)
		},
		OpenRepo: func(cfg *config.Config) (Repository, error) {
			c, err := gitrepo.Open(cfg.RepoPath, logger)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		WatchSaves: func(root string) (Saves, error) {
			w, err := watch.New(root, logger)
			if err != nil {
				return nil, err
			}
			return w, nil
		},
	}
}
