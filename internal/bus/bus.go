// Package bus carries local change notifications from the HEAD watcher and
// the save hook to the single debounced consumer that pushes state upstream.
package bus

import (
	"context"
	"log/slog"
	"time"
)

type Origin string

const (
	OriginGit  Origin = "git"
	OriginSave Origin = "save"
)

type Change struct {
	Origin Origin
}

type Bus struct {
	ch chan Change
}

func New(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{ch: make(chan Change, buffer)}
}

// Publish never blocks. With a full buffer a burst is already queued and the
// consumer coalesces it anyway, so the event is dropped.
func (b *Bus) Publish(c Change) bool {
	select {
	case b.ch <- c:
		return true
	default:
		return false
	}
}

func (b *Bus) Events() <-chan Change {
	return b.ch
}

// Debouncer runs Action on the leading edge of a burst and once more when
// the window closes. Events arriving while the window is open are coalesced.
type Debouncer struct {
	Window time.Duration
	Action func(ctx context.Context, c Change) error
	Logger *slog.Logger
}

// Run consumes events until ctx is done or the channel is closed.
func (d *Debouncer) Run(ctx context.Context, events <-chan Change) error {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
		last    Change
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c, ok := <-events:
			if !ok {
				return nil
			}
			last = c
			if pending {
				continue
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(d.Window)
			} else {
				timer.Reset(d.Window)
			}
			timerC = timer.C
			d.run(ctx, c, "leading")

		case <-timerC:
			timerC = nil
			d.run(ctx, last, "trailing")
			pending = false
		}
	}
}

func (d *Debouncer) run(ctx context.Context, c Change, edge string) {
	if ctx.Err() != nil {
		return
	}
	if err := d.Action(ctx, c); err != nil && ctx.Err() == nil && d.Logger != nil {
		d.Logger.Error("change action failed", "origin", c.Origin, "edge", edge, "err", err)
	}
}
