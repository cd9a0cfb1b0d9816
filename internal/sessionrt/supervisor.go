package sessionrt

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// SupervisorConfig tunes restart behavior. MaxRestarts of 0 means
// unlimited restarts.
type SupervisorConfig struct {
	RestartOnPanic bool
	MaxRestarts    int
	RestartDelay   time.Duration
}

func (c SupervisorConfig) withDefaults() SupervisorConfig {
	if c.RestartDelay <= 0 {
		c.RestartDelay = 500 * time.Millisecond
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 3
	}
	return c
}

// Supervisor owns an Actor's lifecycle: it runs the actor's mailbox loop on
// a dedicated goroutine, recovers from panics, and restarts the actor up to
// MaxRestarts times with RestartDelay between attempts. This completes the
// restart loop original_source's spawn_supervised_with_config left as a
// TODO — that stub only tracked actor initialization and never actually
// caught a panic or restarted anything.
type Supervisor struct {
	cfg   SupervisorConfig
	actor *Actor
	log   *slog.Logger

	restarts int
	stopped  chan struct{}
}

// NewSupervisor wraps actor with restart supervision.
func NewSupervisor(cfg SupervisorConfig, actor *Actor, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		cfg:     cfg.withDefaults(),
		actor:   actor,
		log:     log.With("component", "sessionrt.supervisor", "session_id", actor.sessionID),
		stopped: make(chan struct{}),
	}
}

// Run drives the actor until ctx is canceled, restarting it on panic per
// RestartOnPanic/MaxRestarts. Run blocks until the actor's context is
// canceled or restarts are exhausted; callers typically invoke it in its
// own goroutine.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.stopped)

	for {
		panicked := s.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if !panicked {
			return
		}
		if !s.cfg.RestartOnPanic {
			s.log.Error("actor panicked, supervision disabled, giving up")
			return
		}
		if s.cfg.MaxRestarts > 0 && s.restarts >= s.cfg.MaxRestarts {
			s.log.Error("actor exceeded max restarts, giving up", "restarts", s.restarts)
			return
		}

		s.restarts++
		s.actor.restarts = s.restarts
		s.log.Warn("restarting actor after panic", "attempt", s.restarts, "delay", s.cfg.RestartDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RestartDelay):
		}
	}
}

// runOnce executes the actor's mailbox loop, converting a panic into a
// reported bool instead of crashing the process. Any in-flight request's
// reply channel is still satisfied with an Internal error so a caller
// blocked on Send never hangs forever across a restart.
func (s *Supervisor) runOnce(ctx context.Context) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("actor panicked", "panic", r)
			if req := s.actor.inFlight; req != nil {
				select {
				case req.reply <- turnReply{err: coreerrors.Internal("actor panicked while handling this request")}:
				default:
				}
				s.actor.inFlight = nil
			}
			panicked = true
		}
	}()
	s.actor.run(ctx)
	return false
}

// Send delivers a turnRequest to the actor's mailbox and waits for its
// reply, or returns Timeout if ctx is canceled first.
func (s *Supervisor) send(ctx context.Context, req turnRequest) (turnReply, error) {
	req.ctx = ctx
	select {
	case s.actor.mailbox <- req:
	case <-ctx.Done():
		return turnReply{}, coreerrors.Timeout("mailbox send canceled")
	}

	select {
	case reply := <-req.reply:
		return reply, reply.err
	case <-ctx.Done():
		return turnReply{}, coreerrors.Timeout("waiting for actor reply")
	}
}

// Stopped returns a channel closed once Run has returned.
func (s *Supervisor) Stopped() <-chan struct{} {
	return s.stopped
}
