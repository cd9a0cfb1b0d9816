package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

type fakeRuntime struct {
	chatErr error
}

func (f *fakeRuntime) NewSession(ctx context.Context, connectionID string) (string, error) {
	return "sess-1", nil
}
func (f *fakeRuntime) Chat(ctx context.Context, sessionID, message string) (string, error) {
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return "echo: " + message, nil
}
func (f *fakeRuntime) ChatStream(ctx context.Context, sessionID, message string, emit func(content string)) (string, error) {
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if emit != nil {
		emit("echo: ")
		emit(message)
	}
	return "echo: " + message, nil
}
func (f *fakeRuntime) ClearSession(ctx context.Context, sessionID string) error    { return nil }
func (f *fakeRuntime) CompactSession(ctx context.Context, sessionID string) error  { return nil }
func (f *fakeRuntime) SessionStatus(ctx context.Context, sessionID string) (any, error) {
	return map[string]string{"session_id": sessionID}, nil
}
func (f *fakeRuntime) SetModel(ctx context.Context, sessionID, model string) error { return nil }
func (f *fakeRuntime) MemorySearch(ctx context.Context, sessionID, query string, limit int) (any, error) {
	return []string{}, nil
}
func (f *fakeRuntime) MemoryStats(ctx context.Context, sessionID string) (any, error) {
	return map[string]int{"chunks": 0}, nil
}

func newTestService(t *testing.T, rt SessionRuntime) (*Service, string) {
	t.Helper()
	vault := NewVault(t.TempDir())
	manager := NewManager(ManagerConfig{}, nil)
	uid := uint32(1000)
	connID := manager.Register(PeerIdentity{UID: &uid})
	return NewService(vault, manager, rt, nil), connID
}

func TestServiceGetVersion(t *testing.T) {
	svc, connID := newTestService(t, &fakeRuntime{})
	result, rpcErr := svc.Dispatch(context.Background(), connID, &Request{Method: "get_version"})
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	var out map[string]string
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out["version"] != ProtocolVersion {
		t.Errorf("version = %q, want %q", out["version"], ProtocolVersion)
	}
}

func TestServiceUnknownMethod(t *testing.T) {
	svc, connID := newTestService(t, &fakeRuntime{})
	_, rpcErr := svc.Dispatch(context.Background(), connID, &Request{Method: "does_not_exist"})
	if rpcErr == nil {
		t.Fatal("expected error for unknown method")
	}
	if rpcErr.Kind != string(coreerrors.KindNotSupported) {
		t.Errorf("kind = %q, want not_supported", rpcErr.Kind)
	}
}

func TestServiceGetCredentialsNotRegistered(t *testing.T) {
	svc, connID := newTestService(t, &fakeRuntime{})
	params, _ := json.Marshal(map[string]string{"bridge_id": "telegram"})
	_, rpcErr := svc.Dispatch(context.Background(), connID, &Request{Method: "get_credentials", Params: params})
	if rpcErr == nil || rpcErr.Kind != string(coreerrors.KindNotRegistered) {
		t.Fatalf("expected not_registered, got %+v", rpcErr)
	}
}

func TestServiceChatRoundTrip(t *testing.T) {
	svc, connID := newTestService(t, &fakeRuntime{})
	params, _ := json.Marshal(map[string]string{"session_id": "sess-1", "message": "hello"})
	result, rpcErr := svc.Dispatch(context.Background(), connID, &Request{Method: "chat", Params: params})
	if rpcErr != nil {
		t.Fatalf("unexpected error: %+v", rpcErr)
	}
	var out map[string]string
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["reply"] != "echo: hello" {
		t.Errorf("reply = %q", out["reply"])
	}
}

func TestServiceChatStreamRoundTrip(t *testing.T) {
	svc, connID := newTestService(t, &fakeRuntime{})
	params, _ := json.Marshal(map[string]string{"session_id": "sess-1", "message": "hello"})

	var partials []json.RawMessage
	var final json.RawMessage
	var finalErr *RPCError
	err := svc.DispatchStream(context.Background(), connID, &Request{Method: "chat_stream", Params: params},
		func(result json.RawMessage, partial bool, rpcErr *RPCError) error {
			if partial {
				partials = append(partials, result)
			} else {
				final = result
				finalErr = rpcErr
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if finalErr != nil {
		t.Fatalf("unexpected rpc error: %+v", finalErr)
	}
	if len(partials) == 0 {
		t.Fatal("expected at least one partial frame")
	}
	var deltaOut map[string]string
	if err := json.Unmarshal(partials[0], &deltaOut); err != nil {
		t.Fatalf("decode partial: %v", err)
	}
	if deltaOut["delta"] == "" {
		t.Error("expected a non-empty delta")
	}
	var out map[string]string
	if err := json.Unmarshal(final, &out); err != nil {
		t.Fatalf("decode final: %v", err)
	}
	if out["reply"] != "echo: hello" {
		t.Errorf("reply = %q", out["reply"])
	}
}

func TestServiceMissingParams(t *testing.T) {
	svc, connID := newTestService(t, &fakeRuntime{})
	_, rpcErr := svc.Dispatch(context.Background(), connID, &Request{Method: "chat"})
	if rpcErr == nil || rpcErr.Kind != string(coreerrors.KindAuthFailed) {
		t.Fatalf("expected auth_failed for missing params, got %+v", rpcErr)
	}
}

type panicRuntime struct{ fakeRuntime }

func (p *panicRuntime) Chat(ctx context.Context, sessionID, message string) (string, error) {
	panic("boom")
}

func TestServiceRecoversFromPanic(t *testing.T) {
	svc, connID := newTestService(t, &panicRuntime{})
	params, _ := json.Marshal(map[string]string{"session_id": "sess-1", "message": "hi"})
	_, rpcErr := svc.Dispatch(context.Background(), connID, &Request{Method: "chat", Params: params})
	if rpcErr == nil || rpcErr.Kind != string(coreerrors.KindInternal) {
		t.Fatalf("expected internal error after panic, got %+v", rpcErr)
	}
}
