package sessionrt

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

type panicOnceProvider struct {
	panicked bool
}

func (p *panicOnceProvider) Stream(ctx context.Context, model, system string, history []models.Message, tools []agent.Tool) (<-chan *agent.CompletionChunk, error) {
	if !p.panicked {
		p.panicked = true
		panic("simulated provider failure")
	}
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			last = history[i].Content
			break
		}
	}
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: "recovered: " + last, Done: true}
	close(ch)
	return ch, nil
}

func TestSupervisorRestartsAfterPanic(t *testing.T) {
	provider := &panicOnceProvider{}
	actor := NewActor("sess-1", "gpt-4", provider, ActorConfig{})
	sup := NewSupervisor(SupervisorConfig{
		RestartOnPanic: true,
		MaxRestarts:    3,
		RestartDelay:   10 * time.Millisecond,
	}, actor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	// First request panics; the panic is still answered (comment #8's fix)
	// via the actor's inFlight request, so this reply does arrive, with an
	// Internal error, even though the mailbox goroutine died mid-handle.
	errReply := make(chan turnReply, 1)
	select {
	case actor.mailbox <- turnRequest{chat: &chatRequest{message: "boom"}, reply: errReply}:
	case <-time.After(time.Second):
		t.Fatal("timed out sending first request")
	}
	select {
	case got := <-errReply:
		if got.err == nil {
			t.Error("expected the panicked request's reply to carry an error")
		}
	case <-time.After(time.Second):
		t.Fatal("panicked request's reply channel was never answered")
	}

	time.Sleep(100 * time.Millisecond) // allow restart delay to elapse

	reply, err := sup.send(context.Background(), turnRequest{
		chat:  &chatRequest{message: "hello"},
		reply: make(chan turnReply, 1),
	})
	if err != nil {
		t.Fatalf("expected actor to recover after restart, got error: %v", err)
	}
	if reply.text != "recovered: hello" {
		t.Errorf("text = %q", reply.text)
	}
	if sup.restarts < 1 {
		t.Errorf("expected at least one restart, got %d", sup.restarts)
	}
}

func TestSupervisorGivesUpAfterMaxRestarts(t *testing.T) {
	actor := NewActor("sess-1", "gpt-4", alwaysPanicProvider{}, ActorConfig{})
	sup := NewSupervisor(SupervisorConfig{
		RestartOnPanic: true,
		MaxRestarts:    2,
		RestartDelay:   5 * time.Millisecond,
	}, actor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case actor.mailbox <- turnRequest{chat: &chatRequest{message: "x"}, reply: make(chan turnReply, 1)}:
		case <-time.After(time.Second):
		}
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after exhausting max restarts")
	}
	if sup.restarts != 2 {
		t.Errorf("restarts = %d, want 2", sup.restarts)
	}
}

type alwaysPanicProvider struct{}

func (alwaysPanicProvider) Stream(ctx context.Context, model, system string, history []models.Message, tools []agent.Tool) (<-chan *agent.CompletionChunk, error) {
	panic("always fails")
}
