package work

import (
	"context"
	"fmt"

	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
)

// Report is the result of a single conflict check.
type Report struct {
	User      string
	Repos     []conflicts.Repository
	Conflicts []conflicts.ForRepo
	Alert     conflicts.AlertMessage
	Status    conflicts.StatusBarMessage
}

// Check authenticates, discovers the tracked repositories and fetches their
// conflicts once. Nothing is pushed and no message is shown.
func Check(ctx context.Context, deps Deps) (*Report, error) {
	s := newSession(deps, nil, 0)
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	if err := s.openRepo(); err != nil {
		return nil, err
	}

	repos, _, err := s.lookup(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup repositories: %w", err)
	}
	if len(repos) == 0 {
		return nil, ErrNotConfigured
	}
	s.repos = repos

	fresh := s.fetch(ctx)
	return &Report{
		User:      s.user.Name,
		Repos:     repos,
		Conflicts: fresh,
		Alert:     conflicts.Alert(fresh, conflicts.AlertOptions{IncludePullRequests: s.cfg.NotifyPullRequests}),
		Status:    conflicts.StatusBar(fresh),
	}, nil
}
