package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrDetachedHead is returned by CurrentBranch when HEAD is not a branch.
var ErrDetachedHead = errors.New("HEAD is detached")

type Remote struct {
	Name string
	URL  string
}

// Client reads refs and remotes through go-git and shells out to git for
// the working tree diff and pushes.
type Client struct {
	root   string
	repo   *git.Repository
	logger *slog.Logger

	// serializes git processes on the working copy
	mu sync.Mutex
}

func Open(dir string, logger *slog.Logger) (*Client, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree %s: %w", dir, err)
	}
	return &Client{
		root:   wt.Filesystem.Root(),
		repo:   repo,
		logger: logger,
	}, nil
}

// Root is the top-level directory of the working tree.
func (c *Client) Root() string {
	return c.root
}

// Head returns the revision HEAD points to, or "" for a repository without commits.
func (c *Client) Head(ctx context.Context) (string, error) {
	ref, err := c.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	ref, err := c.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("read HEAD: %w", err)
	}
	if ref.Type() != plumbing.SymbolicReference || !ref.Target().IsBranch() {
		return "", ErrDetachedHead
	}
	return ref.Target().Short(), nil
}

func (c *Client) Remotes(ctx context.Context) ([]Remote, error) {
	remotes, err := c.repo.Remotes()
	if err != nil {
		return nil, fmt.Errorf("list remotes: %w", err)
	}
	out := make([]Remote, 0, len(remotes))
	for _, r := range remotes {
		cfg := r.Config()
		if len(cfg.URLs) == 0 {
			continue
		}
		out = append(out, Remote{Name: cfg.Name, URL: cfg.URLs[0]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Diff returns the uncommitted changes (staged and unstaged) as a patch.
func (c *Client) Diff(ctx context.Context) (string, error) {
	head, err := c.Head(ctx)
	if err != nil {
		return "", err
	}
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if head != "" {
		args = append(args, "HEAD")
	}
	out, err := c.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ForcePush pushes localBranch to remoteBranch on remoteURL, overwriting it.
func (c *Client) ForcePush(ctx context.Context, remoteURL, localBranch, remoteBranch string) error {
	_, err := c.run(ctx, "push", "--force", "--quiet", remoteURL, localBranch+":"+remoteBranch)
	return err
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	display := redactArgs(args)
	c.logger.Debug("exec", "cmd", "git "+display, "dir", c.root)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.root
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = redact(strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("git %s: %w\n%s", display, err, stderr)
	}
	return out, nil
}

func redactArgs(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = redact(a)
	}
	return strings.Join(out, " ")
}

// redact hides credentials embedded in URLs, like the push token.
func redact(s string) string {
	fields := strings.Fields(s)
	changed := false
	for i, f := range fields {
		u, err := url.Parse(f)
		if err != nil || u.User == nil || u.Host == "" {
			continue
		}
		fields[i] = u.Redacted()
		changed = true
	}
	if !changed {
		return s
	}
	return strings.Join(fields, " ")
}
