package work

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcin-skalski/conflictwatch/internal/api"
	"github.com/marcin-skalski/conflictwatch/internal/bus"
	"github.com/marcin-skalski/conflictwatch/internal/config"
	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
	"github.com/marcin-skalski/conflictwatch/internal/gitrepo"
)

// session is one generation. Everything it creates is released when run
// returns.
type session struct {
	deps   Deps
	sup    *Supervisor
	gen    int64
	logger *slog.Logger
	host   Host

	cfg     *config.Config
	svc     RemoteService
	repo    Repository
	user    *api.User
	repos   []conflicts.Repository
	changes *bus.Bus

	mu    sync.Mutex
	known []conflicts.ForRepo

	tasks sync.WaitGroup
}

func newSession(deps Deps, sup *Supervisor, gen int64) *session {
	return &session{
		deps:    deps,
		sup:     sup,
		gen:     gen,
		logger:  deps.Logger.With("generation", gen),
		host:    deps.Host,
		changes: bus.New(16),
	}
}

// alive reports whether this session may still act.
func (s *session) alive(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return s.sup == nil || s.sup.Generation() == s.gen
}

func (s *session) run(ctx context.Context) {
	s.logger.Debug("session started")
	err := s.start(ctx)
	switch {
	case err == nil, errors.Is(err, errSuperseded), errors.Is(err, context.Canceled):
		s.logger.Debug("session stopped")
	case errors.Is(err, ErrNoToken), errors.Is(err, ErrAuthentication), errors.Is(err, ErrConfigMissing):
		s.logger.Warn("session stopped", "err", err)
	default:
		s.logger.Error("session failed", "err", err)
	}
	s.tasks.Wait()
}

func (s *session) start(ctx context.Context) error {
	if err := s.authenticate(ctx); err != nil {
		if errors.Is(err, ErrNoToken) || errors.Is(err, ErrAuthentication) {
			s.promptLogin(ctx)
		}
		return err
	}
	if !s.alive(ctx) {
		return errSuperseded
	}
	if s.sup != nil {
		s.sup.loginPrompted.Store(false)
	}
	s.host.AppendLog("Welcome, " + s.user.Name + "!")

	s.renewToken(ctx)
	if !s.alive(ctx) {
		return errSuperseded
	}

	if err := s.openRepo(); err != nil {
		return err
	}

	repos, err := s.discover(ctx)
	if err != nil {
		return err
	}
	s.repos = repos
	for _, r := range s.enabled() {
		s.host.AppendLog("Starting conflict detection for " + r.FullName)
	}

	var saves Saves
	if s.deps.WatchSaves != nil {
		saves, err = s.deps.WatchSaves(s.repo.Root())
		if err != nil {
			s.logger.Warn("save watcher unavailable, pushing on commits only", "err", err)
			saves = nil
		} else {
			defer saves.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.watchHead(gctx) })
	g.Go(func() error { return s.pollLoop(gctx) })
	g.Go(func() error {
		d := &bus.Debouncer{
			Window: s.cfg.Intervals.Debounce,
			Action: s.push,
			Logger: s.logger,
		}
		return d.Run(gctx, s.changes.Events())
	})
	if saves != nil {
		g.Go(func() error { return s.forwardSaves(gctx, saves) })
	}
	return g.Wait()
}

func (s *session) authenticate(ctx context.Context) error {
	cfg, err := s.deps.Config.Load()
	switch {
	case errors.Is(err, config.ErrNotFound):
		s.cfg = config.Default()
		return ErrNoToken
	case err != nil:
		return fmt.Errorf("%w: %w", ErrConfigMissing, err)
	}
	s.cfg = cfg
	if cfg.Token == "" {
		return ErrNoToken
	}

	s.svc = s.deps.NewService(cfg)
	user, err := s.svc.GetUser(ctx)
	if err != nil {
		if !s.alive(ctx) {
			return errSuperseded
		}
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	s.user = user
	s.logger = s.logger.With("user", user.ID)
	return nil
}

// renewToken stores a refreshed token. The write restarts the supervisor
// through the config watcher.
func (s *session) renewToken(ctx context.Context) {
	rt, err := s.svc.RenewToken(ctx)
	if err != nil {
		if s.alive(ctx) {
			s.logger.Warn("renew token failed", "err", err)
		}
		return
	}
	if rt.Token == "" || rt.Token == s.cfg.Token || !s.alive(ctx) {
		return
	}
	if err := s.deps.Config.Set("token", rt.Token); err != nil {
		s.logger.Error("store renewed token failed", "err", err)
		return
	}
	s.logger.Info("token renewed")
}

func (s *session) openRepo() error {
	repo, err := s.deps.OpenRepo(s.cfg)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	s.repo = repo
	return nil
}

func (s *session) promptLogin(ctx context.Context) {
	if s.sup == nil || !s.sup.loginPrompted.CompareAndSwap(false, true) {
		return
	}
	web := s.cfg.Web
	s.spawn(ctx, "login prompt", func(ctx context.Context) error {
		choice, err := s.host.ShowMessage(ctx,
			"To complete the setup, go to "+web+" and connect your account.", "Setup")
		if err != nil || choice != "Setup" {
			return err
		}
		return s.host.OpenURL(web + "/")
	})
}

// lookup asks the service which of the local remotes it tracks.
func (s *session) lookup(ctx context.Context) ([]conflicts.Repository, []gitrepo.Remote, error) {
	remotes, err := s.repo.Remotes(ctx)
	if err != nil {
		return nil, nil, err
	}
	req := make([]api.Remote, len(remotes))
	for i, r := range remotes {
		req[i] = api.Remote{Name: r.Name, URL: r.URL}
	}
	repos, err := s.svc.LookupRepos(ctx, req)
	if err != nil {
		return nil, remotes, err
	}
	return repos, remotes, nil
}

// discover retries the lookup until the service tracks at least one
// repository.
func (s *session) discover(ctx context.Context) ([]conflicts.Repository, error) {
	ticker := time.NewTicker(s.cfg.Intervals.Discovery)
	defer ticker.Stop()

	announced := false
	for {
		repos, remotes, err := s.lookup(ctx)
		if !s.alive(ctx) {
			return nil, errSuperseded
		}
		switch {
		case err != nil:
			s.logger.Warn("repository lookup failed", "err", err, "retry_in", s.cfg.Intervals.Discovery)
		case len(repos) > 0:
			return repos, nil
		case !announced:
			announced = true
			s.host.AppendLog("This repository is not configured for conflict detection yet.")
			s.promptSetup(ctx, remotes)
		default:
			s.logger.Debug("repository still not configured")
		}

		select {
		case <-ctx.Done():
			return nil, errSuperseded
		case <-ticker.C:
		}
	}
}

// promptSetup offers to configure the first remote that is not ignored.
// "Never" ignores every candidate.
func (s *session) promptSetup(ctx context.Context, remotes []gitrepo.Remote) {
	var candidates []string
	seen := make(map[string]bool)
	for _, r := range remotes {
		name, ok := gitrepo.FullName(r.URL)
		if !ok || seen[name] || s.cfg.IsIgnored(name) {
			continue
		}
		seen[name] = true
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return
	}

	web := s.cfg.Web
	ignored := append([]string(nil), s.cfg.IgnoredRepos...)
	s.spawn(ctx, "setup prompt", func(ctx context.Context) error {
		repo := candidates[0]
		choice, err := s.host.ShowMessage(ctx, "Set up conflict detection for "+repo+"?", "Yes", "Not now", "Never")
		if err != nil {
			return err
		}
		switch choice {
		case "Yes":
			return s.host.OpenURL(web + "/setup?name=" + url.QueryEscape(repo))
		case "Never":
			return s.deps.Config.Set("ignored_repos", append(ignored, candidates...))
		}
		return nil
	})
}

func (s *session) enabled() []conflicts.Repository {
	var out []conflicts.Repository
	for _, r := range s.repos {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// spawn runs a background task that lives until the session ends.
func (s *session) spawn(ctx context.Context, name string, fn func(ctx context.Context) error) {
	s.tasks.Go(func() {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(name+" failed", "err", err)
		}
	})
}

func (s *session) repoURL(owner, name string) string {
	return s.cfg.Web + "/repo/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// pushURL builds the authenticated remote for one tracked repository.
func pushURL(remote, token, repoID string) (string, error) {
	u, err := url.Parse(remote)
	if err != nil {
		return "", fmt.Errorf("parse remote %q: %w", remote, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("remote %q: missing scheme or host", remote)
	}
	u.User = url.UserPassword("git", token)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + repoID + ".git"
	return u.String(), nil
}
