// Package host holds the user-facing state of the agent: the log view, the
// status bar and messages waiting for an answer. The TUI renders it; in
// headless mode everything is mirrored to the logger.
package host

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/marcin-skalski/conflictwatch/internal/conflicts"
)

const defaultMaxLines = 500

type Options struct {
	// Interactive messages wait for Answer. Otherwise ShowMessage logs and
	// returns no choice.
	Interactive bool
	MaxLines    int
	Logger      *slog.Logger
	// Opener replaces the system browser, mostly for tests.
	Opener      func(url string) error
}

type Prompt struct {
	ID      int64
	Message string
	Actions []string
	Created time.Time
}

type Snapshot struct {
	Timestamp time.Time
	Status    conflicts.StatusBarMessage
	Lines     []string
	Prompts   []Prompt
}

type pending struct {
	Prompt
	reply chan string
}

// Recorder is safe for concurrent use.
type Recorder struct {
	interactive bool
	maxLines    int
	logger      *slog.Logger
	opener      func(string) error

	mu      sync.Mutex
	lines   []string
	status  conflicts.StatusBarMessage
	prompts []*pending
	nextID  int64
}

func NewRecorder(opts Options) *Recorder {
	if opts.MaxLines <= 0 {
		opts.MaxLines = defaultMaxLines
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Opener == nil {
		opts.Opener = browser.OpenURL
		if opts.Interactive {
			// the TUI owns the terminal
			browser.Stdout, browser.Stderr = io.Discard, io.Discard
		}
	}
	return &Recorder{
		interactive: opts.Interactive,
		maxLines:    opts.MaxLines,
		logger:      opts.Logger,
		opener:      opts.Opener,
	}
}

func (r *Recorder) AppendLog(line string) {
	r.logger.Info(line)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if over := len(r.lines) - r.maxLines; over > 0 {
		r.lines = slices.Delete(r.lines, 0, over)
	}
}

func (r *Recorder) SetStatus(m conflicts.StatusBarMessage) {
	r.mu.Lock()
	changed := r.status != m
	r.status = m
	r.mu.Unlock()

	if changed {
		r.logger.Debug("status bar", "text", m.Text, "background", m.Background)
	}
}

// ShowMessage blocks until the user picks one of actions, dismisses the
// message ("") or ctx is done.
func (r *Recorder) ShowMessage(ctx context.Context, message string, actions ...string) (string, error) {
	if !r.interactive {
		if len(actions) > 0 {
			r.logger.Info(message, "actions", strings.Join(actions, ", "))
		} else {
			r.logger.Info(message)
		}
		return "", nil
	}

	r.mu.Lock()
	r.nextID++
	p := &pending{
		Prompt: Prompt{
			ID:      r.nextID,
			Message: message,
			Actions: slices.Clone(actions),
			Created: time.Now(),
		},
		reply: make(chan string, 1),
	}
	r.prompts = append(r.prompts, p)
	r.mu.Unlock()

	select {
	case choice := <-p.reply:
		return choice, nil
	case <-ctx.Done():
		r.remove(p.ID)
		return "", ctx.Err()
	}
}

// Answer resolves the prompt with the given id. An empty choice dismisses
// it. Returns false if the prompt is gone.
func (r *Recorder) Answer(id int64, choice string) bool {
	p := r.remove(id)
	if p == nil {
		return false
	}
	if choice != "" && !slices.Contains(p.Actions, choice) {
		choice = ""
	}
	p.reply <- choice
	return true
}

func (r *Recorder) OpenURL(url string) error {
	r.logger.Info("opening url", "url", url)
	return r.opener(url)
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	prompts := make([]Prompt, len(r.prompts))
	for i, p := range r.prompts {
		prompts[i] = p.Prompt
	}
	return Snapshot{
		Timestamp: time.Now(),
		Status:    r.status,
		Lines:     slices.Clone(r.lines),
		Prompts:   prompts,
	}
}

func (r *Recorder) remove(id int64) *pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.prompts {
		if p.ID == id {
			r.prompts = slices.Delete(r.prompts, i, i+1)
			return p
		}
	}
	return nil
}
