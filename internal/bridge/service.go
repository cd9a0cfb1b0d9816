package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// SessionRuntime is the narrow surface the bridge RPC dispatcher needs from
// the session actor runtime. Defined here, implemented there, so this
// package never imports sessionrt: the dependency points inward from the
// runtime to the transport, not the other way around.
type SessionRuntime interface {
	NewSession(ctx context.Context, connectionID string) (sessionID string, err error)
	Chat(ctx context.Context, sessionID, message string) (reply string, err error)
	// ChatStream behaves like Chat but calls emit with each piece of
	// assistant text as the turn produces it, in addition to returning the
	// full reply once the turn completes.
	ChatStream(ctx context.Context, sessionID, message string, emit func(content string)) (reply string, err error)
	ClearSession(ctx context.Context, sessionID string) error
	CompactSession(ctx context.Context, sessionID string) error
	SessionStatus(ctx context.Context, sessionID string) (any, error)
	SetModel(ctx context.Context, sessionID, model string) error
	MemorySearch(ctx context.Context, sessionID, query string, limit int) (any, error)
	MemoryStats(ctx context.Context, sessionID string) (any, error)
}

// Service dispatches bridge RPC methods against a Vault, a Manager, and a
// SessionRuntime. One Service is shared by every accepted connection.
type Service struct {
	vault   *Vault
	manager *Manager
	runtime SessionRuntime
	log     *slog.Logger
}

func NewService(vault *Vault, manager *Manager, runtime SessionRuntime, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{vault: vault, manager: manager, runtime: runtime, log: log.With("component", "bridge.service")}
}

// Dispatch routes one Request to its handler, recovering from panics into
// an Internal error so a single bad handler never takes the connection
// down. connectionID identifies the caller for health tracking.
func (s *Service) Dispatch(ctx context.Context, connectionID string, req *Request) (result json.RawMessage, rpcErr *RPCError) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic handling rpc method", "method", req.Method, "panic", r)
			rpcErr = &RPCError{Kind: string(coreerrors.KindInternal), Reason: fmt.Sprintf("internal error handling %s", req.Method)}
		}
	}()

	result, err := s.dispatch(ctx, connectionID, req)
	if err != nil {
		if ce, ok := coreerrors.As(err); ok {
			return nil, &RPCError{Kind: string(ce.Kind), Reason: ce.Reason}
		}
		return nil, &RPCError{Kind: string(coreerrors.KindInternal), Reason: err.Error()}
	}

	s.manager.Touch(connectionID)
	return result, nil
}

// DispatchStream handles the chat_stream method, the one RPC whose reply
// is a series of frames rather than a single result: send is called once
// per delta (partial=true) and once more with the final reply
// (partial=false) once the turn completes or fails.
func (s *Service) DispatchStream(ctx context.Context, connectionID string, req *Request, send func(result json.RawMessage, partial bool, rpcErr *RPCError) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic handling chat_stream", "panic", r)
			_ = send(nil, false, &RPCError{Kind: string(coreerrors.KindInternal), Reason: "internal error handling chat_stream"})
		}
	}()

	var p struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := decodeParams(req.Params, &p); err != nil {
		ce, _ := coreerrors.As(err)
		return send(nil, false, &RPCError{Kind: string(ce.Kind), Reason: ce.Reason})
	}

	reply, err := s.runtime.ChatStream(ctx, p.SessionID, p.Message, func(content string) {
		if content == "" {
			return
		}
		encoded, encErr := encode(map[string]string{"delta": content})
		if encErr != nil {
			return
		}
		_ = send(encoded, true, nil)
	})
	if err != nil {
		ce, ok := coreerrors.As(err)
		if !ok {
			ce = coreerrors.InternalFrom(err)
		}
		return send(nil, false, &RPCError{Kind: string(ce.Kind), Reason: ce.Reason})
	}

	s.manager.Touch(connectionID)
	result, err := encode(map[string]string{"reply": reply})
	if err != nil {
		return send(nil, false, &RPCError{Kind: string(coreerrors.KindInternal), Reason: err.Error()})
	}
	return send(result, false, nil)
}

func (s *Service) dispatch(ctx context.Context, connectionID string, req *Request) (json.RawMessage, error) {
	switch req.Method {
	case "get_version":
		return encode(map[string]string{"version": ProtocolVersion})

	case "ping":
		return encode(map[string]string{"status": "ok"})

	case "get_credentials":
		var p struct {
			BridgeID string `json:"bridge_id"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		secret, err := s.vault.GetCredentials(p.BridgeID)
		if err != nil {
			return nil, err
		}
		s.manager.BindName(connectionID, p.BridgeID)
		return encode(map[string]string{"secret": string(secret)})

	case "new_session":
		id, err := s.runtime.NewSession(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		return encode(map[string]string{"session_id": id})

	case "chat":
		var p struct {
			SessionID string `json:"session_id"`
			Message   string `json:"message"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		reply, err := s.runtime.Chat(ctx, p.SessionID, p.Message)
		if err != nil {
			return nil, err
		}
		return encode(map[string]string{"reply": reply})

	case "clear_session":
		var p struct {
			SessionID string `json:"session_id"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := s.runtime.ClearSession(ctx, p.SessionID); err != nil {
			return nil, err
		}
		return encode(map[string]string{"status": "cleared"})

	case "compact_session":
		var p struct {
			SessionID string `json:"session_id"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := s.runtime.CompactSession(ctx, p.SessionID); err != nil {
			return nil, err
		}
		return encode(map[string]string{"status": "compacted"})

	case "session_status":
		var p struct {
			SessionID string `json:"session_id"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		status, err := s.runtime.SessionStatus(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return encode(status)

	case "set_model":
		var p struct {
			SessionID string `json:"session_id"`
			Model     string `json:"model"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if err := s.runtime.SetModel(ctx, p.SessionID, p.Model); err != nil {
			return nil, err
		}
		return encode(map[string]string{"status": "ok"})

	case "memory_search":
		var p struct {
			SessionID string `json:"session_id"`
			Query     string `json:"query"`
			Limit     int    `json:"limit"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Limit <= 0 {
			p.Limit = 20
		}
		results, err := s.runtime.MemorySearch(ctx, p.SessionID, p.Query, p.Limit)
		if err != nil {
			return nil, err
		}
		return encode(results)

	case "memory_stats":
		var p struct {
			SessionID string `json:"session_id"`
		}
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		stats, err := s.runtime.MemoryStats(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		return encode(stats)

	default:
		return nil, coreerrors.NotSupported(req.Method)
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return coreerrors.New(coreerrors.KindAuthFailed, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return coreerrors.Wrap(coreerrors.KindAuthFailed, "malformed params", err)
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, coreerrors.InternalFrom(err)
	}
	return b, nil
}
