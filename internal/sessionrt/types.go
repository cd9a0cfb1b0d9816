// Package sessionrt runs one supervised actor per conversation session: a
// mailbox-driven goroutine serializing chat turns, tool calls, and control
// operations (clear/compact/set-model) against a single models.Session,
// with panic-triggered restart and bounded retry. Grounded on
// original_source's concurrency::actor module and adapted onto this
// module's pkg/models.Session/Message shapes.
package sessionrt

import (
	"context"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/pkg/models"
)

// MemoryChunk is a scored fragment of session history or workspace content
// returned by memory_search. Unlike original_source's MemoryChunk, this one
// carries CreatedAt so Score can apply temporal decay: a chunk's relevance
// fades as it ages even if its textual match quality never changes.
type MemoryChunk struct {
	File      string    `json:"file"`
	LineStart int       `json:"line_start"`
	LineEnd   int       `json:"line_end"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Location returns a "file:line" or "file:start-end" position string.
func (c MemoryChunk) Location() string {
	if c.LineStart == c.LineEnd {
		return c.File + ":" + itoa(c.LineStart)
	}
	return c.File + ":" + itoa(c.LineStart) + "-" + itoa(c.LineEnd)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Status summarizes a session for the session_status RPC.
type Status struct {
	SessionID    string    `json:"session_id"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	Restarts     int       `json:"restarts"`
	Compactions  int       `json:"compactions"`
}

// turnRequest is one unit of mailbox work: exactly one of its fields is
// set, selecting which operation the actor performs. ctx is the
// requesting RPC's context, threaded through to the actor so a canceled
// caller also cancels any in-flight provider/tool call it triggered.
type turnRequest struct {
	chat         *chatRequest
	chatStream   *chatStreamRequest
	clear        *struct{}
	compact      *struct{}
	status       *struct{}
	setModel     *string
	memorySearch *memorySearchRequest
	memoryStats  *struct{}

	ctx   context.Context
	reply chan turnReply
}

type chatRequest struct {
	message string
}

// chatStreamRequest is a Chat request whose response is delivered
// incrementally over chunks rather than returned in one piece by
// turnReply.text. The actor closes chunks once the turn (or an error)
// completes.
type chatStreamRequest struct {
	message string
	chunks  chan<- StreamChunk
}

type memorySearchRequest struct {
	query string
	limit int
}

type turnReply struct {
	text    string
	status  Status
	chunks  []MemoryChunk
	stats   any
	err     error
}

// ProviderResult is what one round of the agent turn loop produces: either
// final Text, or one or more ToolCalls the actor must resolve through the
// tool pipeline before the turn can continue. PrefaceText carries any
// prose the model produced alongside the tool calls, since some backends
// interleave text with a function call rather than emitting one or the
// other.
type ProviderResult struct {
	Text        string
	PrefaceText string
	ToolCalls   []models.ToolCall
}

// Provider answers one round of a chat turn: given the model, this
// round's system prompt, the full message history, and the tool schemas
// currently available, it streams back the backend's response chunks
// verbatim (agent.CompletionChunk already models Text/ToolCall/Done/Error,
// so sessionrt reuses it instead of inventing a parallel shape). The
// actor drains this into a ProviderResult and, for ChatStream, forwards
// Text chunks to the caller as they arrive.
type Provider interface {
	Stream(ctx context.Context, model, system string, history []models.Message, tools []agent.Tool) (<-chan *agent.CompletionChunk, error)
}

// MemorySearcher is the external memory-search capability a session actor
// consumes for memory_search/memory_stats. The core does not define
// chunking or retrieval semantics for long-term memory itself; it only
// consumes this capability, implemented by the embedding-backed
// internal/memory.Manager.
type MemorySearcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
	Stats(ctx context.Context) (*memory.Stats, error)
}

// StreamChunk is one increment of a ChatStream turn: Content is a piece of
// assistant text, ToolStart/ToolEnd bracket a tool dispatch the turn loop
// performed on the caller's behalf, and Done marks the final chunk
// (possibly carrying Err).
type StreamChunk struct {
	Content   string
	ToolStart *ToolStartEvent
	ToolEnd   *ToolEndEvent
	Done      bool
	Err       error
}

// ToolStartEvent announces that the turn loop is about to dispatch a
// tool call through the pipeline.
type ToolStartEvent struct {
	Name string
	ID   string
}

// ToolEndEvent announces a tool call's result once dispatch completes.
type ToolEndEvent struct {
	Name   string
	ID     string
	Output string
}
