package sessionrt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	ctxwindow "github.com/haasonsaas/nexus/internal/context"
	"github.com/haasonsaas/nexus/internal/coreerrors"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/skills"
	"github.com/haasonsaas/nexus/internal/toolpipeline"
	"github.com/haasonsaas/nexus/pkg/models"
)

// defaultMailboxSize bounds how many pending turn requests an actor will
// queue before Send blocks, matching original_source's actor mailbox
// capacity default.
const defaultMailboxSize = 100

// defaultMaxRounds bounds how many provider<->tool round-trips one
// Chat/ChatStream call will drive before giving up.
const defaultMaxRounds = 10

// defaultContextWindow and defaultReserveTokens set the compaction
// trigger when an Actor isn't configured with model-specific values:
// compact once the estimated history size exceeds window-reserve tokens.
const (
	defaultContextWindow = 128000
	defaultReserveTokens = 8000
)

// defaultSystemPrompt seeds a session's history when no operator-provided
// system prompt is configured, so the "begins with exactly one System
// message" invariant always holds once history is non-empty.
const defaultSystemPrompt = "You are Nexus, a local assistant with access to tools. Use them when they help answer the request; otherwise answer directly."

// ActorConfig bundles the optional collaborators a session actor's turn
// loop calls out to. Every field is optional; a nil collaborator just
// narrows what that session can do (no pipeline means tool calls fail
// closed, no memory means memory_search/memory_stats report not-found)
// rather than causing an actor to fail to start.
type ActorConfig struct {
	// SystemPrompt is prepended to every round's system prompt and seeds
	// the session's first history message. Empty uses defaultSystemPrompt.
	SystemPrompt string
	// Pipeline resolves ToolCalls the provider returns.
	Pipeline *toolpipeline.Pipeline
	// Skills supplies the skill catalog consulted for prompt-time routing.
	Skills *skills.Manager
	// Memory is the external memory-search capability memory_search and
	// memory_stats delegate to.
	Memory MemorySearcher
	// TurnGate serializes provider calls across every session in the
	// daemon, if set.
	TurnGate *TurnGate
	// MaxRounds bounds the agent turn loop. 0 uses defaultMaxRounds.
	MaxRounds int
	// ContextWindow and ReserveTokens bound when compaction triggers. 0
	// uses the package defaults.
	ContextWindow int
	ReserveTokens int
}

// Actor owns one session's state and processes turnRequests serially from
// its mailbox, so two concurrent chat calls against the same session never
// race on history or model selection.
type Actor struct {
	sessionID string
	model     string
	history   []models.Message
	provider  Provider

	systemPrompt  string
	pipeline      *toolpipeline.Pipeline
	skillsMgr     *skills.Manager
	memory        MemorySearcher
	turnGate      *TurnGate
	maxRounds     int
	contextWindow int
	reserveTokens int
	compactions   int

	createdAt  time.Time
	lastActive time.Time
	restarts   int

	mailbox  chan turnRequest
	inFlight *turnRequest
}

// NewActor creates an actor for sessionID. cfg's collaborators are all
// optional; see ActorConfig.
func NewActor(sessionID, model string, provider Provider, cfg ActorConfig) *Actor {
	now := time.Now()
	return &Actor{
		sessionID:     sessionID,
		model:         model,
		provider:      provider,
		systemPrompt:  cfg.SystemPrompt,
		pipeline:      cfg.Pipeline,
		skillsMgr:     cfg.Skills,
		memory:        cfg.Memory,
		turnGate:      cfg.TurnGate,
		maxRounds:     cfg.MaxRounds,
		contextWindow: cfg.ContextWindow,
		reserveTokens: cfg.ReserveTokens,
		createdAt:     now,
		lastActive:    now,
		mailbox:       make(chan turnRequest, defaultMailboxSize),
	}
}

// run drains the mailbox until ctx is canceled. Each request's reply
// channel always receives exactly one turnReply. run returning normally
// (ctx canceled) is distinct from run panicking, which is what the
// Supervisor restarts. inFlight tracks the request currently being
// handled so a panic mid-handle can still be answered.
func (a *Actor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.mailbox:
			a.inFlight = &req
			req.reply <- a.handle(req)
			a.inFlight = nil
		}
	}
}

func (a *Actor) handle(req turnRequest) turnReply {
	a.lastActive = time.Now()
	ctx := req.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case req.chat != nil:
		text, err := a.runTurn(ctx, req.chat.message, nil)
		if err != nil {
			return turnReply{err: err}
		}
		return turnReply{text: text}

	case req.chatStream != nil:
		chunks := req.chatStream.chunks
		_, err := a.runTurn(ctx, req.chatStream.message, func(c StreamChunk) { chunks <- c })
		if err != nil {
			chunks <- StreamChunk{Err: err, Done: true}
		} else {
			chunks <- StreamChunk{Done: true}
		}
		close(chunks)
		return turnReply{err: err}

	case req.clear != nil:
		a.history = nil
		return turnReply{}

	case req.compact != nil:
		a.history = compactHistory(a.history)
		return turnReply{}

	case req.status != nil:
		return turnReply{status: Status{
			SessionID:    a.sessionID,
			Model:        a.model,
			MessageCount: len(a.history),
			CreatedAt:    a.createdAt,
			LastActive:   a.lastActive,
			Restarts:     a.restarts,
			Compactions:  a.compactions,
		}}

	case req.setModel != nil:
		a.model = *req.setModel
		return turnReply{}

	case req.memorySearch != nil:
		chunks, err := a.searchMemory(ctx, req.memorySearch.query, req.memorySearch.limit)
		if err != nil {
			return turnReply{err: err}
		}
		return turnReply{chunks: chunks}

	case req.memoryStats != nil:
		stats, err := a.memoryStats(ctx)
		if err != nil {
			return turnReply{err: err}
		}
		return turnReply{stats: stats}

	default:
		return turnReply{err: coreerrors.Internal("empty turn request")}
	}
}

// runTurn drives the agent turn loop for one Chat or ChatStream request:
// append the user message, send a round to the provider, and either
// return its final text or resolve every tool call it requested through
// the tool pipeline and loop, up to maxRounds. emit, if non-nil, receives
// Content/ToolStart/ToolEnd chunks as the turn progresses; Chat passes nil
// and only consumes runTurn's return value.
func (a *Actor) runTurn(ctx context.Context, message string, emit func(StreamChunk)) (string, error) {
	a.seedSystemMessage()
	a.history = append(a.history, models.Message{
		SessionID: a.sessionID,
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	})

	maxRounds := a.maxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	var onContent func(string)
	if emit != nil {
		onContent = func(s string) { emit(StreamChunk{Content: s}) }
	}

	for round := 0; round < maxRounds; round++ {
		result, err := a.completeRound(ctx, onContent)
		if err != nil {
			return "", err
		}

		if len(result.ToolCalls) == 0 {
			a.history = append(a.history, models.Message{
				SessionID: a.sessionID,
				Role:      models.RoleAssistant,
				Content:   result.Text,
				CreatedAt: time.Now(),
			})
			a.compactIfNeeded(ctx)
			return result.Text, nil
		}

		a.history = append(a.history, models.Message{
			SessionID: a.sessionID,
			Role:      models.RoleAssistant,
			Content:   result.PrefaceText,
			ToolCalls: result.ToolCalls,
			CreatedAt: time.Now(),
		})

		for _, call := range result.ToolCalls {
			if emit != nil {
				emit(StreamChunk{ToolStart: &ToolStartEvent{Name: call.Name, ID: call.ID}})
			}
			content, isError := a.dispatchTool(ctx, call)
			a.history = append(a.history, models.Message{
				SessionID:   a.sessionID,
				Role:        models.RoleTool,
				ToolResults: []models.ToolResult{{ToolCallID: call.ID, Content: content, IsError: isError}},
				CreatedAt:   time.Now(),
			})
			if emit != nil {
				emit(StreamChunk{ToolEnd: &ToolEndEvent{Name: call.Name, ID: call.ID, Output: content}})
			}
		}
	}

	return "", coreerrors.Internal("agent turn loop exceeded max rounds without a final answer")
}

// completeRound sends the current history and tool catalog to the
// provider for one round and drains its streamed response into a
// ProviderResult. onContent, if non-nil, is called with each Text chunk
// as it arrives (ChatStream's path to the caller).
func (a *Actor) completeRound(ctx context.Context, onContent func(string)) (ProviderResult, error) {
	if a.provider == nil {
		return ProviderResult{}, coreerrors.Internal("no provider configured for session")
	}

	if a.turnGate != nil {
		if err := a.turnGate.Acquire(ctx); err != nil {
			return ProviderResult{}, coreerrors.Wrap(coreerrors.KindInternal, "waiting for turn gate", err)
		}
		defer a.turnGate.Release()
	}

	var tools []agent.Tool
	if a.pipeline != nil {
		tools = a.pipeline.Tools()
	}

	stream, err := a.provider.Stream(ctx, a.model, a.buildSystemPrompt(), a.history, tools)
	if err != nil {
		return ProviderResult{}, coreerrors.Wrap(coreerrors.KindInternal, "provider completion failed", err)
	}

	var result ProviderResult
	var text strings.Builder
	for chunk := range stream {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return ProviderResult{}, coreerrors.Wrap(coreerrors.KindInternal, "provider completion failed", chunk.Error)
		}
		if chunk.ToolCall != nil {
			result.ToolCalls = append(result.ToolCalls, *chunk.ToolCall)
		}
		if chunk.Text != "" {
			text.WriteString(chunk.Text)
			if onContent != nil {
				onContent(chunk.Text)
			}
		}
		if chunk.Done {
			break
		}
	}

	if len(result.ToolCalls) > 0 {
		result.PrefaceText = strings.TrimSpace(text.String())
	} else {
		result.Text = strings.TrimSpace(text.String())
	}
	return result, nil
}

// dispatchTool resolves one tool call through the configured pipeline,
// which applies schema validation, the filter pipeline, and path scoping
// before the call ever reaches a tool's Execute. Errors are reported back
// to the provider as a Tool message, never returned to the caller: a
// denied or failing tool call is not fatal to the turn.
func (a *Actor) dispatchTool(ctx context.Context, call models.ToolCall) (content string, isError bool) {
	if a.pipeline == nil {
		return fmt.Sprintf("tool %q unavailable: no tool pipeline configured for this session", call.Name), true
	}
	result, err := a.pipeline.Execute(ctx, call.Name, call.Input)
	if err != nil {
		return err.Error(), true
	}
	return result.Content, result.IsError
}

// buildSystemPrompt assembles this round's system prompt: the session's
// base prompt, an enumeration of available tools, and the content of
// every skill that's both eligible (binary/env/config gating) and
// admitted by routing for the latest user message.
func (a *Actor) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(a.baseSystemPrompt())

	var tools []agent.Tool
	if a.pipeline != nil {
		tools = a.pipeline.Tools()
	}
	if len(tools) > 0 {
		b.WriteString("\n\nAvailable tools:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
		}
	}

	if a.skillsMgr != nil {
		toolNames := make(map[string]bool, len(tools))
		for _, t := range tools {
			toolNames[t.Name()] = true
		}
		rctx := skills.RoutingContext{Message: lastUserMessage(a.history), Tools: toolNames}
		for _, entry := range a.skillsMgr.MatchingSkills(rctx) {
			fmt.Fprintf(&b, "\n\n## Skill: %s\n%s\n", entry.Name, entry.Content)
		}
	}

	return b.String()
}

func (a *Actor) baseSystemPrompt() string {
	if a.systemPrompt != "" {
		return a.systemPrompt
	}
	return defaultSystemPrompt
}

// seedSystemMessage ensures history begins with exactly one System
// message once it becomes non-empty.
func (a *Actor) seedSystemMessage() {
	if len(a.history) != 0 {
		return
	}
	a.history = append(a.history, models.Message{
		SessionID: a.sessionID,
		Role:      models.RoleSystem,
		Content:   a.baseSystemPrompt(),
		CreatedAt: time.Now(),
	})
}

// compactIfNeeded runs a provider-driven compaction pass once history's
// estimated token size exceeds contextWindow-reserveTokens: it summarizes
// everything but a short tail and replaces it with one System "summary"
// message.
func (a *Actor) compactIfNeeded(ctx context.Context) {
	const keepTail = 6
	if a.provider == nil || len(a.history) <= keepTail {
		return
	}

	window := a.contextWindow
	if window <= 0 {
		window = defaultContextWindow
	}
	reserve := a.reserveTokens
	if reserve <= 0 {
		reserve = defaultReserveTokens
	}

	contents := make([]string, len(a.history))
	for i, m := range a.history {
		contents[i] = m.Content
	}
	if ctxwindow.EstimateTokensForMessages(contents) <= window-reserve {
		return
	}

	prefix := a.history[:len(a.history)-keepTail]
	tail := a.history[len(a.history)-keepTail:]

	stream, err := a.provider.Stream(ctx, a.model,
		"Summarize the conversation so far in a few dense paragraphs, preserving facts, decisions, and open threads. Respond with only the summary.",
		prefix, nil)
	if err != nil {
		return
	}
	var summary strings.Builder
	for chunk := range stream {
		if chunk == nil || chunk.Error != nil {
			return
		}
		summary.WriteString(chunk.Text)
		if chunk.Done {
			break
		}
	}

	seed := models.Message{
		SessionID: a.sessionID,
		Role:      models.RoleSystem,
		Content:   "summary: " + strings.TrimSpace(summary.String()),
		CreatedAt: time.Now(),
	}
	a.history = append([]models.Message{seed}, tail...)
	a.compactions++
}

// searchMemory delegates memory_search to the configured MemorySearcher,
// scoped to this session; the core does not implement retrieval semantics
// itself.
func (a *Actor) searchMemory(ctx context.Context, query string, limit int) ([]MemoryChunk, error) {
	if a.memory == nil {
		return nil, coreerrors.NotFound("no memory-search capability configured for this session")
	}
	if limit <= 0 {
		limit = 20
	}
	resp, err := a.memory.Search(ctx, &models.SearchRequest{
		Query:   query,
		Scope:   models.ScopeSession,
		ScopeID: a.sessionID,
		Limit:   limit,
	})
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInternal, "memory search failed", err)
	}

	chunks := make([]MemoryChunk, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r == nil || r.Entry == nil {
			continue
		}
		chunks = append(chunks, MemoryChunk{
			File:      "memory:" + r.Entry.ID,
			Content:   r.Entry.Content,
			Score:     float64(r.Score),
			CreatedAt: r.Entry.CreatedAt,
		})
	}
	return chunks, nil
}

func (a *Actor) memoryStats(ctx context.Context) (*memory.Stats, error) {
	if a.memory == nil {
		return nil, coreerrors.NotFound("no memory-search capability configured for this session")
	}
	stats, err := a.memory.Stats(ctx)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.KindInternal, "memory stats failed", err)
	}
	return stats, nil
}

func lastUserMessage(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// compactHistory collapses history to a bounded tail for the explicit
// compact_session RPC. Unlike compactIfNeeded's provider-driven summary,
// this is a cheap synchronous fallback that never calls out to the
// provider, so an operator-triggered compact always completes instantly.
func compactHistory(history []models.Message) []models.Message {
	const keep = 20
	if len(history) <= keep {
		return history
	}
	return append([]models.Message{}, history[len(history)-keep:]...)
}
