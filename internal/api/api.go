package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
)

const (
	ClientName     = "conflictwatch"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

type Client struct {
	baseURL string
	token   string
	version string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL, token, version string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		version: version,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RenewToken struct {
	Token  string `json:"token"`
	HasNew bool   `json:"has_new"`
}

type Remote struct {
	Name string `json:"remote_name"`
	URL  string `json:"remote_url"`
}

type WorkdirSnapshot struct {
	WorkingTreeDiff string `json:"working_tree_diff"`
	Head            string `json:"head"`
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/v3/user", nil, &u); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (c *Client) RenewToken(ctx context.Context) (*RenewToken, error) {
	var rt RenewToken
	if err := c.do(ctx, http.MethodPost, "/v3/auth/renew-token", struct{}{}, &rt); err != nil {
		return nil, fmt.Errorf("renew token: %w", err)
	}
	return &rt, nil
}

func (c *Client) LookupRepos(ctx context.Context, remotes []Remote) ([]conflicts.Repository, error) {
	req := struct {
		Repos []Remote `json:"repos"`
	}{Repos: remotes}
	if req.Repos == nil {
		req.Repos = []Remote{}
	}

	var resp struct {
		Repos []conflicts.Repository `json:"repos"`
	}
	if err := c.do(ctx, http.MethodPost, "/v3/conflicts/lookup", req, &resp); err != nil {
		return nil, fmt.Errorf("lookup repos: %w", err)
	}
	return resp.Repos, nil
}

func (c *Client) GetConflicts(ctx context.Context, owner, name string) ([]conflicts.Conflict, error) {
	path := "/v3/conflicts/get/" + url.PathEscape(owner) + "/" + url.PathEscape(name) + "?include_prs=1"
	var resp struct {
		Conflicts []conflicts.Conflict `json:"conflicts"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get conflicts %s/%s: %w", owner, name, err)
	}
	return resp.Conflicts, nil
}

// PushWorkdir uploads the working tree snapshot. The response body is ignored.
func (c *Client) PushWorkdir(ctx context.Context, owner, name string, snap WorkdirSnapshot) error {
	path := "/v3/conflicts/workdir/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
	if err := c.do(ctx, http.MethodPost, path, snap, nil); err != nil {
		return fmt.Errorf("push workdir %s/%s: %w", owner, name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", "auth="+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-name", ClientName)
	req.Header.Set("x-client-version", c.version)

	c.logger.Debug("api request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
