package sessionrt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/toolpipeline"
	"github.com/haasonsaas/nexus/pkg/models"
)

// echoProvider answers every round with "echo: <last user message>" and no
// tool calls, exercising the turn loop's ordinary one-round path.
type echoProvider struct{}

func (echoProvider) Stream(ctx context.Context, model, system string, history []models.Message, tools []agent.Tool) (<-chan *agent.CompletionChunk, error) {
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			last = history[i].Content
			break
		}
	}
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: "echo: " + last, Done: true}
	close(ch)
	return ch, nil
}

// toolCallOnceProvider returns one ToolCall on its first round and a plain
// text reply on every subsequent round, exercising the turn loop's tool
// dispatch path.
type toolCallOnceProvider struct {
	called bool
}

func (p *toolCallOnceProvider) Stream(ctx context.Context, model, system string, history []models.Message, tools []agent.Tool) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 2)
	if !p.called {
		p.called = true
		ch <- &agent.CompletionChunk{ToolCall: &models.ToolCall{ID: "call-1", Name: "echo_tool", Input: json.RawMessage(`{"text":"hi"}`)}}
		ch <- &agent.CompletionChunk{Done: true}
	} else {
		ch <- &agent.CompletionChunk{Text: "done", Done: true}
	}
	close(ch)
	return ch, nil
}

type fakeTool struct{}

func (fakeTool) Name() string                  { return "echo_tool" }
func (fakeTool) Description() string           { return "echoes its text argument" }
func (fakeTool) Schema() json.RawMessage       { return json.RawMessage(`{"type":"object"}`) }
func (fakeTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var p struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(params, &p)
	return &agent.ToolResult{Content: "tool saw: " + p.Text}, nil
}

func newTestPipeline() *toolpipeline.Pipeline {
	registry := agent.NewToolRegistry()
	registry.Register(fakeTool{})
	return toolpipeline.NewPipeline(registry)
}

func TestActorChatAppendsHistory(t *testing.T) {
	a := NewActor("sess-1", "gpt-4", echoProvider{}, ActorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.run(ctx)

	reply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{chat: &chatRequest{message: "hi"}, reply: reply}
	got := <-reply
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.text != "echo: hi" {
		t.Errorf("text = %q", got.text)
	}

	statusReply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{status: &struct{}{}, reply: statusReply}
	status := (<-statusReply).status
	if status.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3 (system + user + assistant)", status.MessageCount)
	}
}

func TestActorSeedsExactlyOneSystemMessage(t *testing.T) {
	a := NewActor("sess-1", "gpt-4", echoProvider{}, ActorConfig{SystemPrompt: "be terse"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.run(ctx)

	reply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{chat: &chatRequest{message: "hi"}, reply: reply}
	<-reply

	if len(a.history) == 0 || a.history[0].Role != models.RoleSystem {
		t.Fatalf("history does not begin with a system message: %+v", a.history)
	}
	systemCount := 0
	for _, m := range a.history {
		if m.Role == models.RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Errorf("system message count = %d, want 1", systemCount)
	}
}

func TestActorClearResetsHistory(t *testing.T) {
	a := NewActor("sess-1", "gpt-4", echoProvider{}, ActorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.run(ctx)

	reply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{chat: &chatRequest{message: "hi"}, reply: reply}
	<-reply

	clearReply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{clear: &struct{}{}, reply: clearReply}
	<-clearReply

	statusReply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{status: &struct{}{}, reply: statusReply}
	status := (<-statusReply).status
	if status.MessageCount != 0 {
		t.Errorf("MessageCount after clear = %d, want 0", status.MessageCount)
	}
}

func TestActorResolvesToolCallsThroughPipeline(t *testing.T) {
	a := NewActor("sess-1", "gpt-4", &toolCallOnceProvider{}, ActorConfig{Pipeline: newTestPipeline()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.run(ctx)

	reply := make(chan turnReply, 1)
	a.mailbox <- turnRequest{chat: &chatRequest{message: "run the tool"}, reply: reply}
	got := <-reply
	if got.err != nil {
		t.Fatalf("unexpected error: %v", got.err)
	}
	if got.text != "done" {
		t.Errorf("text = %q, want %q", got.text, "done")
	}

	var sawToolResult bool
	for _, m := range a.history {
		for _, tr := range m.ToolResults {
			if tr.Content == "tool saw: hi" {
				sawToolResult = true
			}
		}
	}
	if !sawToolResult {
		t.Errorf("history does not contain the tool's result: %+v", a.history)
	}
}

func TestActorDispatchToolWithoutPipelineFailsClosed(t *testing.T) {
	a := NewActor("sess-1", "gpt-4", &toolCallOnceProvider{}, ActorConfig{})
	content, isError := a.dispatchTool(context.Background(), models.ToolCall{ID: "x", Name: "echo_tool", Input: json.RawMessage(`{}`)})
	if !isError {
		t.Fatalf("expected dispatch without a pipeline to fail closed, got content %q", content)
	}
}

// fakeMemorySearcher is a minimal MemorySearcher stub for actor tests.
type fakeMemorySearcher struct {
	resp  *models.SearchResponse
	stats *memory.Stats
}

func (f *fakeMemorySearcher) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	return f.resp, nil
}

func (f *fakeMemorySearcher) Stats(ctx context.Context) (*memory.Stats, error) {
	return f.stats, nil
}

func TestActorMemorySearchDelegatesToConfiguredSearcher(t *testing.T) {
	now := time.Now()
	searcher := &fakeMemorySearcher{
		resp: &models.SearchResponse{
			Results: []*models.SearchResult{
				{Entry: &models.MemoryEntry{ID: "e1", Content: "remembered fact", CreatedAt: now}, Score: 0.9},
			},
		},
	}
	a := NewActor("sess-1", "gpt-4", echoProvider{}, ActorConfig{Memory: searcher})

	chunks, err := a.searchMemory(context.Background(), "fact", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "remembered fact" {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestActorMemorySearchWithoutSearcherReportsNotFound(t *testing.T) {
	a := NewActor("sess-1", "gpt-4", echoProvider{}, ActorConfig{})
	if _, err := a.searchMemory(context.Background(), "fact", 5); err == nil {
		t.Fatal("expected an error when no memory searcher is configured")
	}
}
