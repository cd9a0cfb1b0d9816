package sessionrt

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

type fakeLLMProvider struct {
	chunks []*agent.CompletionChunk
	gotReq *agent.CompletionRequest
}

func (f *fakeLLMProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	f.gotReq = req
	ch := make(chan *agent.CompletionChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (f *fakeLLMProvider) Name() string          { return "fake" }
func (f *fakeLLMProvider) Models() []agent.Model { return nil }
func (f *fakeLLMProvider) SupportsTools() bool   { return false }

func drainChunks(t *testing.T, ch <-chan *agent.CompletionChunk) (text string, err error) {
	t.Helper()
	for c := range ch {
		if c.Error != nil {
			return text, c.Error
		}
		text += c.Text
		if c.Done {
			break
		}
	}
	return text, nil
}

func TestLLMAdapterPassesStreamThrough(t *testing.T) {
	provider := &fakeLLMProvider{chunks: []*agent.CompletionChunk{
		{Text: "hello "},
		{Text: "world"},
		{Done: true},
	}}
	adapter := NewLLMAdapter(provider)

	stream, err := adapter.Stream(context.Background(), "model-x", "be terse",
		[]models.Message{{Role: models.RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	reply, err := drainChunks(t, stream)
	if err != nil {
		t.Fatalf("unexpected chunk error: %v", err)
	}
	if reply != "hello world" {
		t.Errorf("reply = %q, want %q", reply, "hello world")
	}
	if provider.gotReq.System != "be terse" {
		t.Errorf("system = %q", provider.gotReq.System)
	}
	if len(provider.gotReq.Messages) != 1 {
		t.Fatalf("expected one history message, got %d", len(provider.gotReq.Messages))
	}
}

func TestLLMAdapterPropagatesChunkError(t *testing.T) {
	boom := &agent.CompletionChunk{Error: errBoom{}}
	provider := &fakeLLMProvider{chunks: []*agent.CompletionChunk{boom}}
	adapter := NewLLMAdapter(provider)

	stream, err := adapter.Stream(context.Background(), "model-x", "", nil, nil)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if _, err := drainChunks(t, stream); err == nil {
		t.Fatal("expected error to propagate from chunk")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
