package work

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcin-skalski/conflictwatch/internal/api"
	"github.com/marcin-skalski/conflictwatch/internal/bus"
	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
	"github.com/marcin-skalski/conflictwatch/internal/gitrepo"
)

// every runs fn now and then on every tick until ctx is done or fn fails.
func (s *session) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !s.alive(ctx) {
			return errSuperseded
		}
		if err := fn(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watchHead publishes a change whenever HEAD moves. The first read always
// counts as a change.
func (s *session) watchHead(ctx context.Context) error {
	var (
		last  string
		first = true
	)
	return s.every(ctx, s.cfg.Intervals.Head, func(ctx context.Context) error {
		head, err := s.repo.Head(ctx)
		if err != nil {
			if s.alive(ctx) {
				s.logger.Warn("read HEAD failed", "err", err)
			}
			return nil
		}
		if !first && head == last {
			return nil
		}
		first = false
		last = head
		if s.alive(ctx) {
			s.logger.Debug("HEAD changed", "head", head)
			s.changes.Publish(bus.Change{Origin: bus.OriginGit})
		}
		return nil
	})
}

func (s *session) forwardSaves(ctx context.Context, saves Saves) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-saves.Events():
			if !ok {
				return nil
			}
			if !s.alive(ctx) {
				return errSuperseded
			}
			s.logger.Debug("file saved", "path", path)
			s.changes.Publish(bus.Change{Origin: bus.OriginSave})
		}
	}
}

// push force-pushes the current branch to every enabled repository and
// uploads the working tree snapshot. Failures are logged per repository.
func (s *session) push(ctx context.Context, c bus.Change) error {
	if !s.alive(ctx) {
		return nil
	}
	enabled := s.enabled()

	branch, err := s.repo.CurrentBranch(ctx)
	switch {
	case errors.Is(err, gitrepo.ErrDetachedHead):
		s.logger.Debug("HEAD is detached, skipping branch push")
	case err != nil:
		s.logger.Error("read branch failed, skipping branch push", "err", err)
	default:
		s.pushBranch(ctx, enabled, branch, c.Origin)
	}

	if !s.alive(ctx) {
		return nil
	}
	diff, err := s.repo.Diff(ctx)
	if err != nil {
		return err
	}
	head, err := s.repo.Head(ctx)
	if err != nil {
		return err
	}
	snap := api.WorkdirSnapshot{WorkingTreeDiff: diff, Head: head}
	for _, r := range enabled {
		if !s.alive(ctx) {
			return nil
		}
		if err := s.svc.PushWorkdir(ctx, r.Owner, r.Name, snap); err != nil && s.alive(ctx) {
			s.logger.Error("upload working tree failed", "repo", r.FullName, "err", err)
		}
	}
	return nil
}

func (s *session) pushBranch(ctx context.Context, enabled []conflicts.Repository, branch string, origin bus.Origin) {
	for _, r := range enabled {
		if !s.alive(ctx) {
			return
		}
		remote, err := pushURL(s.cfg.Remote, s.cfg.Token, r.ID)
		if err != nil {
			s.logger.Error("push failed", "repo", r.FullName, "err", err)
			continue
		}
		if err := s.repo.ForcePush(ctx, remote, branch, s.user.ID); err != nil {
			if s.alive(ctx) {
				s.logger.Error("push failed", "repo", r.FullName, "branch", branch, "err", err)
			}
			continue
		}
		s.logger.Debug("pushed", "repo", r.FullName, "branch", branch, "origin", origin)
	}
}

// fetch asks for the conflicts of every enabled repository concurrently.
// Failed repositories are left out; the rest keep their tracked order.
func (s *session) fetch(ctx context.Context) []conflicts.ForRepo {
	enabled := s.enabled()
	slots := make([]*conflicts.ForRepo, len(enabled))

	var g errgroup.Group
	for i, r := range enabled {
		g.Go(func() error {
			cs, err := s.svc.GetConflicts(ctx, r.Owner, r.Name)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("fetch conflicts failed", "repo", r.FullName, "err", err)
				}
				return nil
			}
			slots[i] = &conflicts.ForRepo{RepoOwner: r.Owner, RepoName: r.Name, Conflicts: cs}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]conflicts.ForRepo, 0, len(slots))
	for _, fr := range slots {
		if fr != nil {
			out = append(out, *fr)
		}
	}
	return out
}

func (s *session) pollLoop(ctx context.Context) error {
	return s.every(ctx, s.cfg.Intervals.Poll, func(ctx context.Context) error {
		s.poll(ctx)
		return nil
	})
}

// poll runs one conflict cycle. A cycle that finishes after the session was
// superseded changes nothing.
func (s *session) poll(ctx context.Context) {
	fresh := s.fetch(ctx)
	if !s.alive(ctx) {
		return
	}

	s.host.SetStatus(conflicts.StatusBar(fresh))

	s.mu.Lock()
	known := s.known
	s.known = fresh
	s.mu.Unlock()

	if !conflicts.HasNew(known, fresh) {
		return
	}
	alert := conflicts.Alert(fresh, conflicts.AlertOptions{IncludePullRequests: s.cfg.NotifyPullRequests})
	if !alert.AnyConflicts {
		return
	}

	for _, fr := range fresh {
		link := s.repoURL(fr.RepoOwner, fr.RepoName)
		for _, c := range fr.Conflicts {
			if !c.Conflicting || (c.IsPullRequest() && !s.cfg.NotifyPullRequests) {
				continue
			}
			s.host.AppendLog(conflicts.Describe(c) + " - See more at " + link)
		}
	}

	link := s.repoURL(alert.RepoOwner, alert.RepoName)
	message := strings.TrimSpace(alert.Message)
	s.spawn(ctx, "conflict alert", func(ctx context.Context) error {
		choice, err := s.host.ShowMessage(ctx, message, "View")
		if err != nil || choice != "View" {
			return err
		}
		return s.host.OpenURL(link)
	})
}
