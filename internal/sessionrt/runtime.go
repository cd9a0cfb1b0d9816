package sessionrt

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// Runtime manages one Actor+Supervisor pair per session and implements
// bridge.SessionRuntime. It is the top-level entry point the bridge
// service dispatches RPC methods through.
type Runtime struct {
	cfg          SupervisorConfig
	defaultModel string
	provider     Provider
	actorCfg     ActorConfig
	log          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Supervisor
	cancels  map[string]context.CancelFunc
}

// NewRuntime creates a Runtime. actorCfg's collaborators (Pipeline,
// Skills, Memory, TurnGate, ...) are shared across every session spawned
// from this Runtime.
func NewRuntime(cfg SupervisorConfig, defaultModel string, provider Provider, actorCfg ActorConfig, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{
		cfg:          cfg,
		defaultModel: defaultModel,
		provider:     provider,
		actorCfg:     actorCfg,
		log:          log.With("component", "sessionrt.runtime"),
		sessions:     make(map[string]*Supervisor),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// NewSession spawns a fresh supervised actor and returns its session id.
func (r *Runtime) NewSession(ctx context.Context, connectionID string) (string, error) {
	sessionID := uuid.NewString()
	actor := NewActor(sessionID, r.defaultModel, r.provider, r.actorCfg)
	sup := NewSupervisor(r.cfg, actor, r.log)

	runCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.sessions[sessionID] = sup
	r.cancels[sessionID] = cancel
	r.mu.Unlock()

	go sup.Run(runCtx)

	r.log.Info("session started", "session_id", sessionID, "connection_id", connectionID)
	return sessionID, nil
}

func (r *Runtime) get(sessionID string) (*Supervisor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sup, ok := r.sessions[sessionID]
	if !ok {
		return nil, coreerrors.NotFound(sessionID)
	}
	return sup, nil
}

func (r *Runtime) Chat(ctx context.Context, sessionID, message string) (string, error) {
	sup, err := r.get(sessionID)
	if err != nil {
		return "", err
	}
	reply, err := sup.send(ctx, turnRequest{chat: &chatRequest{message: message}, reply: make(chan turnReply, 1)})
	if err != nil {
		return "", err
	}
	return reply.text, nil
}

// ChatStream behaves like Chat but calls emit with each piece of assistant
// text as the turn produces it (tool dispatches are driven internally and
// not surfaced over this narrow interface), in addition to returning the
// full reply once the turn completes.
func (r *Runtime) ChatStream(ctx context.Context, sessionID, message string, emit func(content string)) (string, error) {
	sup, err := r.get(sessionID)
	if err != nil {
		return "", err
	}

	chunks := make(chan StreamChunk, 8)
	req := turnRequest{
		ctx:        ctx,
		chatStream: &chatStreamRequest{message: message, chunks: chunks},
		reply:      make(chan turnReply, 1),
	}
	select {
	case sup.actor.mailbox <- req:
	case <-ctx.Done():
		return "", coreerrors.Timeout("mailbox send canceled")
	}

	var reply strings.Builder
	var turnErr error
	for c := range chunks {
		if c.Content != "" {
			reply.WriteString(c.Content)
			if emit != nil {
				emit(c.Content)
			}
		}
		if c.Err != nil {
			turnErr = c.Err
		}
	}
	if turnErr != nil {
		return "", turnErr
	}
	return reply.String(), nil
}

func (r *Runtime) ClearSession(ctx context.Context, sessionID string) error {
	sup, err := r.get(sessionID)
	if err != nil {
		return err
	}
	_, err = sup.send(ctx, turnRequest{clear: &struct{}{}, reply: make(chan turnReply, 1)})
	return err
}

func (r *Runtime) CompactSession(ctx context.Context, sessionID string) error {
	sup, err := r.get(sessionID)
	if err != nil {
		return err
	}
	_, err = sup.send(ctx, turnRequest{compact: &struct{}{}, reply: make(chan turnReply, 1)})
	return err
}

func (r *Runtime) SessionStatus(ctx context.Context, sessionID string) (any, error) {
	sup, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	reply, err := sup.send(ctx, turnRequest{status: &struct{}{}, reply: make(chan turnReply, 1)})
	if err != nil {
		return nil, err
	}
	return reply.status, nil
}

func (r *Runtime) SetModel(ctx context.Context, sessionID, model string) error {
	sup, err := r.get(sessionID)
	if err != nil {
		return err
	}
	_, err = sup.send(ctx, turnRequest{setModel: &model, reply: make(chan turnReply, 1)})
	return err
}

func (r *Runtime) MemorySearch(ctx context.Context, sessionID, query string, limit int) (any, error) {
	sup, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	reply, err := sup.send(ctx, turnRequest{
		memorySearch: &memorySearchRequest{query: query, limit: limit},
		reply:        make(chan turnReply, 1),
	})
	if err != nil {
		return nil, err
	}
	return reply.chunks, nil
}

func (r *Runtime) MemoryStats(ctx context.Context, sessionID string) (any, error) {
	sup, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	reply, err := sup.send(ctx, turnRequest{memoryStats: &struct{}{}, reply: make(chan turnReply, 1)})
	if err != nil {
		return nil, err
	}
	return reply.stats, nil
}

// CloseSession stops and forgets a single session's actor. Unlike
// ClearSession (which only empties history), this terminates the
// supervisor goroutine — used once a one-shot session (e.g. a scheduled
// job run) has produced its reply and has no further use.
func (r *Runtime) CloseSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.cancels[sessionID]; ok {
		cancel()
		delete(r.cancels, sessionID)
	}
	delete(r.sessions, sessionID)
}

// RunOnce implements jobscheduler.AgentRunner: it opens a fresh session
// scoped to jobID, sends prompt as a single chat turn, and closes the
// session before returning, so a scheduled job never accumulates state
// across runs.
func (r *Runtime) RunOnce(ctx context.Context, jobID, prompt string) (string, error) {
	sessionID, err := r.NewSession(ctx, "cron-"+jobID)
	if err != nil {
		return "", err
	}
	defer r.CloseSession(sessionID)

	return r.Chat(ctx, sessionID, prompt)
}

// Shutdown cancels every running session actor. Used on daemon shutdown.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.cancels {
		cancel()
		delete(r.cancels, id)
		delete(r.sessions, id)
	}
}
