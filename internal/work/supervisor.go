package work

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// settleDelay coalesces the burst of notifications a single config write
// produces.
const settleDelay = 100 * time.Millisecond

// Supervisor owns the generation counter. Only the session started by the
// latest Restart performs side effects.
type Supervisor struct {
	deps   Deps
	reload chan struct{}

	// the login prompt is shown once until a session authenticates
	loginPrompted atomic.Bool

	mu         sync.Mutex
	generation int64
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewSupervisor(deps Deps) *Supervisor {
	return &Supervisor{
		deps:   deps,
		reload: make(chan struct{}, 1),
	}
}

func (s *Supervisor) Generation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Restart retires the running session and starts a new one. The generation
// is bumped and the old context cancelled before the new session starts.
func (s *Supervisor) Restart(ctx context.Context) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	if s.cancel != nil {
		s.cancel()
	}

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	sess := newSession(s.deps, s, s.generation)

	s.wg.Go(func() { sess.run(sctx) })
	return s.generation
}

// Reload asks Run for a restart. It never blocks.
func (s *Supervisor) Reload() {
	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Stop cancels the running session and waits for every session to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Run starts the first generation and restarts on every Reload until ctx is
// done.
func (s *Supervisor) Run(ctx context.Context) error {
	logger := s.deps.Logger
	logger.Info("supervisor started", "version", s.deps.Version)
	s.Restart(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down, waiting for session")
			s.Stop()
			logger.Info("supervisor stopped")
			return nil

		case <-s.reload:
			select {
			case <-ctx.Done():
				continue
			case <-time.After(settleDelay):
			}
			// drop requests that arrived while settling
			select {
			case <-s.reload:
			default:
			}
			gen := s.Restart(ctx)
			logger.Info("configuration changed, restarted", "generation", gen)
		}
	}
}
