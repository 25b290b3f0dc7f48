package work

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/marcin-skalski/conflictwatch/internal/api"
	"github.com/marcin-skalski/conflictwatch/internal/config"
	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
	"github.com/marcin-skalski/conflictwatch/internal/gitrepo"
)

func testConfig() *config.Config {
	return &config.Config{
		Token:  "tok",
		API:    "https://api.example.com",
		Remote: "https://git.example.com/",
		Web:    "https://web.example.com",
		Intervals: config.Intervals{
			Head:      2 * time.Second,
			Poll:      time.Second,
			Discovery: 30 * time.Second,
			Debounce:  200 * time.Millisecond,
		},
	}
}

var (
	repoApp  = conflicts.Repository{ID: "r1", FullName: "acme/app", Owner: "acme", Name: "app", Enabled: true}
	repoDocs = conflicts.Repository{ID: "r2", FullName: "acme/docs", Owner: "acme", Name: "docs", Enabled: false}
	repoLib  = conflicts.Repository{ID: "r3", FullName: "acme/lib", Owner: "acme", Name: "lib", Enabled: true}
)

func workdirConflict(id string, files ...string) conflicts.Conflict {
	return conflicts.Conflict{
		ID:                           id,
		OntoName:                     "master",
		OntoType:                     conflicts.OntoBranch,
		Conflicting:                  true,
		IsConflictInWorkingDirectory: true,
		ConflictingFiles:             files,
	}
}

// harness builds fresh collaborators for every generation and remembers
// them so tests can inspect each generation separately.
type harness struct {
	mu sync.Mutex

	cfg       *config.Config
	configErr error
	sets      map[string]any

	user        *api.User
	userErr     error
	userGate    chan struct{} // blocks GetUser of the first generation
	renewed     string
	lookupFn    func(n int) []conflicts.Repository
	conflictsFn func(gen int, owner, name string) ([]conflicts.Conflict, error)
	workdirErr  error
	remotes     []gitrepo.Remote
	head        string
	branchErr   error
	pushErr     error

	services []*fakeService
	repos    []*fakeRepo
	saves    chan string

	host *fakeHost
}

func newHarness() *harness {
	return &harness{
		cfg:      testConfig(),
		sets:     make(map[string]any),
		user:     &api.User{ID: "u-1", Name: "Ada"},
		lookupFn: func(int) []conflicts.Repository { return []conflicts.Repository{repoApp, repoDocs} },
		conflictsFn: func(int, string, string) ([]conflicts.Conflict, error) {
			return nil, nil
		},
		remotes: []gitrepo.Remote{{Name: "origin", URL: "git@github.com:acme/app.git"}},
		head:    "abc",
		host:    &fakeHost{},
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Config:  h,
		Host:    h.host,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version: "test",
		NewService: func(*config.Config) RemoteService {
			h.mu.Lock()
			defer h.mu.Unlock()
			s := &fakeService{h: h, gen: len(h.services)}
			h.services = append(h.services, s)
			return s
		},
		OpenRepo: func(*config.Config) (Repository, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			r := &fakeRepo{h: h}
			h.repos = append(h.repos, r)
			return r, nil
		},
	}
}

// withSaves routes save events through a channel the test controls.
func (h *harness) withSaves(d Deps) Deps {
	h.saves = make(chan string)
	d.WatchSaves = func(string) (Saves, error) { return &fakeSaves{ch: h.saves}, nil }
	return d
}

func (h *harness) Load() (*config.Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.configErr != nil {
		return nil, h.configErr
	}
	cfg := *h.cfg
	return &cfg, nil
}

func (h *harness) Set(key string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sets[key] = value
	return nil
}

func (h *harness) setting(key string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.sets[key]
	return v, ok
}

func (h *harness) setHead(head string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head = head
}

func (h *harness) service(i int) *fakeService {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.services) {
		return nil
	}
	return h.services[i]
}

func (h *harness) serviceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.services)
}

func (h *harness) repo(i int) *fakeRepo {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.repos) {
		return nil
	}
	return h.repos[i]
}

type fakeService struct {
	h   *harness
	gen int

	mu       sync.Mutex
	lookups  int
	fetches  int
	workdirs []api.WorkdirSnapshot
}

func (s *fakeService) GetUser(context.Context) (*api.User, error) {
	if s.gen == 0 && s.h.userGate != nil {
		<-s.h.userGate
	}
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return s.h.user, s.h.userErr
}

func (s *fakeService) RenewToken(context.Context) (*api.RenewToken, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return &api.RenewToken{Token: s.h.renewed, HasNew: s.h.renewed != ""}, nil
}

func (s *fakeService) LookupRepos(context.Context, []api.Remote) ([]conflicts.Repository, error) {
	s.mu.Lock()
	s.lookups++
	n := s.lookups
	s.mu.Unlock()
	return s.h.lookupFn(n), nil
}

func (s *fakeService) GetConflicts(_ context.Context, owner, name string) ([]conflicts.Conflict, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	return s.h.conflictsFn(s.gen, owner, name)
}

func (s *fakeService) PushWorkdir(_ context.Context, _, _ string, snap api.WorkdirSnapshot) error {
	s.mu.Lock()
	s.workdirs = append(s.workdirs, snap)
	s.mu.Unlock()

	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	return s.h.workdirErr
}

func (s *fakeService) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func (s *fakeService) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *fakeService) uploads() []api.WorkdirSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.WorkdirSnapshot(nil), s.workdirs...)
}

type pushCall struct {
	URL, Local, Remote string
}

type fakeRepo struct {
	h *harness

	mu     sync.Mutex
	pushes []pushCall
}

func (r *fakeRepo) Root() string { return "/work/app" }

func (r *fakeRepo) Head(context.Context) (string, error) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.h.head, nil
}

func (r *fakeRepo) CurrentBranch(context.Context) (string, error) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	if r.h.branchErr != nil {
		return "", r.h.branchErr
	}
	return "main", nil
}

func (r *fakeRepo) Diff(context.Context) (string, error) { return "diff --git a/a.txt b/a.txt", nil }

func (r *fakeRepo) Remotes(context.Context) ([]gitrepo.Remote, error) {
	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.h.remotes, nil
}

func (r *fakeRepo) ForcePush(_ context.Context, remoteURL, local, remote string) error {
	r.mu.Lock()
	r.pushes = append(r.pushes, pushCall{URL: remoteURL, Local: local, Remote: remote})
	r.mu.Unlock()

	r.h.mu.Lock()
	defer r.h.mu.Unlock()
	return r.h.pushErr
}

func (r *fakeRepo) pushCalls() []pushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pushCall(nil), r.pushes...)
}

type fakeSaves struct {
	ch chan string
}

func (f *fakeSaves) Events() <-chan string { return f.ch }
func (f *fakeSaves) Close() error          { return nil }

type fakeHost struct {
	mu       sync.Mutex
	lines    []string
	statuses []conflicts.StatusBarMessage
	messages []string
	opened   []string
	choose   func(message string) string
}

func (f *fakeHost) AppendLog(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeHost) ShowMessage(_ context.Context, message string, actions ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	if f.choose == nil {
		return "", nil
	}
	return f.choose(message), nil
}

func (f *fakeHost) OpenURL(url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

func (f *fakeHost) SetStatus(m conflicts.StatusBarMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, m)
}

func (f *fakeHost) shown() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func (f *fakeHost) logLines(substr string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, l := range f.lines {
		if strings.Contains(l, substr) {
			out = append(out, l)
		}
	}
	return out
}

func (f *fakeHost) statusTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.statuses))
	for i, s := range f.statuses {
		out[i] = s.Text
	}
	return out
}

func (f *fakeHost) lastStatus() conflicts.StatusBarMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return conflicts.StatusBarMessage{}
	}
	return f.statuses[len(f.statuses)-1]
}

func (f *fakeHost) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}
