package conflicts

import (
	"fmt"
	"strings"
)

// Glyph tokens understood by the status bar renderer.
const (
	GlyphCheck   = "$(check)"
	GlyphWarning = "$(warning)"
	GlyphError   = "$(error)"
)

type Background string

const (
	BackgroundNone  Background = ""
	BackgroundError Background = "error"
)

type AlertMessage struct {
	AnyConflicts bool
	Message      string
	// RepoOwner and RepoName come from the first input element, so the link
	// is only accurate when a single repository has conflicts.
	RepoOwner string
	RepoName  string
}

type AlertOptions struct {
	IncludePullRequests bool
}

// Alert composes the popup text for all conflicting entries, grouped by
// uncommitted (working directory) and committed changes.
func Alert(in []ForRepo, opts AlertOptions) AlertMessage {
	var res AlertMessage
	if len(in) == 0 {
		return res
	}
	res.RepoOwner = in[0].RepoOwner
	res.RepoName = in[0].RepoName

	var uncommitted, committed []string
	for _, r := range in {
		for _, c := range r.Conflicts {
			if !c.Conflicting {
				continue
			}
			if c.IsPullRequest() && !opts.IncludePullRequests {
				continue
			}
			if c.IsConflictInWorkingDirectory {
				uncommitted = append(uncommitted, c.TargetName())
			} else {
				committed = append(committed, c.TargetName())
			}
		}
	}

	var b strings.Builder
	if len(uncommitted) > 0 {
		fmt.Fprintf(&b, "Your uncommitted changes are conflicting with %s. ", strings.Join(uncommitted, ", "))
	}
	if len(committed) > 0 {
		fmt.Fprintf(&b, "Your committed changes are conflicting with %s. ", strings.Join(committed, ", "))
	}

	res.AnyConflicts = len(uncommitted)+len(committed) > 0
	res.Message = b.String()
	return res
}

type StatusBarMessage struct {
	Text       string
	Background Background
	RepoOwner  string
	RepoName   string
}

// StatusBar composes the compact status text. A conflict with any branch
// wins the leading slot; pull request conflicts are counted.
func StatusBar(in []ForRepo) StatusBarMessage {
	if len(in) == 0 {
		return StatusBarMessage{}
	}

	var branch string
	var hasBranch bool
	prs := 0
	for _, r := range in {
		for _, c := range r.Conflicts {
			if !c.Conflicting {
				continue
			}
			if c.IsPullRequest() {
				prs++
				continue
			}
			branch = c.OntoName
			hasBranch = true
		}
	}

	msg := StatusBarMessage{
		RepoOwner: in[0].RepoOwner,
		RepoName:  in[0].RepoName,
	}

	switch {
	case hasBranch && prs > 0:
		msg.Text = GlyphError + " " + branch + " and " + GlyphWarning + " " + prCount(prs)
	case hasBranch:
		msg.Text = GlyphError + " " + branch
	case prs > 0:
		msg.Text = GlyphWarning + " " + prCount(prs)
	default:
		msg.Text = GlyphCheck + " No conflicts"
	}
	if hasBranch || prs > 0 {
		msg.Background = BackgroundError
	}
	return msg
}

func prCount(n int) string {
	if n == 1 {
		return "1 PR"
	}
	return fmt.Sprintf("%d PRs", n)
}

// Describe renders one conflict as a log line.
func Describe(c Conflict) string {
	what := "committed changes"
	if c.IsConflictInWorkingDirectory {
		what = "uncommitted changes"
	}
	if len(c.ConflictingFiles) > 0 {
		what += " to " + strings.Join(c.ConflictingFiles, ", ")
	}
	return fmt.Sprintf("%s conflict with %s", what, c.TargetName())
}
