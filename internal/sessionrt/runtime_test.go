package sessionrt

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

func TestRuntimeSessionLifecycle(t *testing.T) {
	rt := NewRuntime(SupervisorConfig{RestartDelay: time.Millisecond}, "gpt-4", echoProvider{}, ActorConfig{}, nil)
	defer rt.Shutdown()

	ctx := context.Background()
	sessionID, err := rt.NewSession(ctx, "conn-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	reply, err := rt.Chat(ctx, sessionID, "hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "echo: hello" {
		t.Errorf("reply = %q", reply)
	}

	status, err := rt.SessionStatus(ctx, sessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	st, ok := status.(Status)
	if !ok {
		t.Fatalf("status has unexpected type %T", status)
	}
	if st.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3 (system + user + assistant)", st.MessageCount)
	}

	if err := rt.SetModel(ctx, sessionID, "gpt-5"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	status, _ = rt.SessionStatus(ctx, sessionID)
	if status.(Status).Model != "gpt-5" {
		t.Errorf("model not updated: %+v", status)
	}

	if err := rt.ClearSession(ctx, sessionID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	status, _ = rt.SessionStatus(ctx, sessionID)
	if status.(Status).MessageCount != 0 {
		t.Errorf("expected cleared history, got %+v", status)
	}
}

func TestRuntimeChatStreamDeliversIncrementalContent(t *testing.T) {
	rt := NewRuntime(SupervisorConfig{RestartDelay: time.Millisecond}, "gpt-4", echoProvider{}, ActorConfig{}, nil)
	defer rt.Shutdown()

	ctx := context.Background()
	sessionID, err := rt.NewSession(ctx, "conn-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	var deltas []string
	reply, err := rt.ChatStream(ctx, sessionID, "hello", func(content string) {
		deltas = append(deltas, content)
	})
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}
	if reply != "echo: hello" {
		t.Errorf("reply = %q", reply)
	}
	if len(deltas) == 0 {
		t.Error("expected at least one delta to be emitted")
	}
}

func TestRuntimeUnknownSessionNotFound(t *testing.T) {
	rt := NewRuntime(SupervisorConfig{}, "gpt-4", echoProvider{}, ActorConfig{}, nil)
	if _, err := rt.Chat(context.Background(), "does-not-exist", "hi"); err == nil {
		t.Fatal("expected error for unknown session")
	} else if e, ok := coreerrors.As(err); !ok || e.Kind != coreerrors.KindNotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}
