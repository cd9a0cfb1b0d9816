package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// Server accepts connections on a local listener (a unix socket on
// Linux/macOS, a named pipe on Windows), enforces same-user peer identity,
// and dispatches frames to a Service.
type Server struct {
	listener net.Listener
	service  *Service
	manager  *Manager
	log      *slog.Logger

	wg sync.WaitGroup
}

func NewServer(listener net.Listener, service *Service, manager *Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		listener: listener,
		service:  service,
		manager:  manager,
		log:      log.With("component", "bridge.server"),
	}
}

// Serve accepts connections until ctx is canceled or the listener errors.
// Each connection is handled on its own goroutine; Serve returns once the
// listener closes and all handlers have returned.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle enforces peer identity, registers the connection, and serves RPC
// frames until the peer disconnects or sends a malformed frame.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer, err := getPeerIdentity(conn)
	if err != nil {
		s.log.Warn("rejecting connection: peer identity unavailable", "error", err)
		return
	}
	if peer.UID != nil && *peer.UID != currentUID() {
		s.log.Warn("rejecting connection: peer uid mismatch", "peer_uid", *peer.UID, "expected_uid", currentUID())
		return
	}

	connID := s.manager.Register(peer)
	defer s.manager.Unregister(connID)

	reader := NewFrameReader(conn)
	writer := NewFrameWriter(conn)

	var req Request
	if err := reader.ReadFrame(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			s.log.Debug("connection closed before handshake", "connection_id", connID, "error", err)
		}
		return
	}
	if !s.negotiate(ctx, connID, writer, &req) {
		return
	}

	for {
		var req Request
		if err := reader.ReadFrame(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("connection closed", "connection_id", connID, "error", err)
			}
			return
		}

		if !s.dispatchFrame(ctx, connID, writer, &req) {
			return
		}
	}
}

// negotiate enforces that the first RPC on a connection is get_version and
// that the client's reported version is one this server's major version
// supports, per the data model's "first RPC a client must issue" rule.
// A connection that opens with anything else, or an unsupported version, is
// closed without any other method ever being served.
func (s *Server) negotiate(ctx context.Context, connID string, writer *FrameWriter, req *Request) bool {
	if req.Method != "get_version" {
		s.log.Warn("rejecting connection: first rpc was not get_version", "connection_id", connID, "method", req.Method)
		return false
	}

	var p struct {
		ClientVersion string `json:"client_version"`
	}
	_ = decodeParams(req.Params, &p)
	if p.ClientVersion != "" {
		if err := NegotiateVersion(p.ClientVersion); err != nil {
			s.log.Warn("rejecting connection: unsupported client version", "connection_id", connID, "client_version", p.ClientVersion)
			if !req.IsNotification() {
				ce, _ := coreerrors.As(err)
				resp := &Response{JSONRPC: "2.0", Error: &RPCError{Kind: string(ce.Kind), Reason: ce.Reason}}
				if req.ID != nil {
					resp.ID = *req.ID
				}
				_ = writer.WriteFrame(resp)
			}
			return false
		}
	}

	return s.dispatchFrame(ctx, connID, writer, req)
}

// dispatchFrame runs one request through the Service and writes its
// response, unless req is a notification. It returns false when the write
// fails, signaling the caller to close the connection. chat_stream is
// routed to dispatchStreamFrame instead, since it answers with a series
// of frames rather than one.
func (s *Server) dispatchFrame(ctx context.Context, connID string, writer *FrameWriter, req *Request) bool {
	if req.Method == "chat_stream" {
		return s.dispatchStreamFrame(ctx, connID, writer, req)
	}

	result, rpcErr := s.service.Dispatch(ctx, connID, req)

	if req.IsNotification() {
		return true
	}

	resp := &Response{JSONRPC: "2.0", Result: result, Error: rpcErr}
	if req.ID != nil {
		resp.ID = *req.ID
	}
	if err := writer.WriteFrame(resp); err != nil {
		s.log.Warn("write response failed", "connection_id", connID, "error", err)
		return false
	}
	return true
}

// dispatchStreamFrame drives a chat_stream call, writing one Partial
// Response per delta the turn produces and one final, non-partial
// Response once it completes. Notifications never stream (there is no ID
// to answer), so a notified chat_stream just runs for effect.
func (s *Server) dispatchStreamFrame(ctx context.Context, connID string, writer *FrameWriter, req *Request) bool {
	if req.IsNotification() {
		_ = s.service.DispatchStream(ctx, connID, req, func(json.RawMessage, bool, *RPCError) error { return nil })
		return true
	}

	writeFailed := false
	err := s.service.DispatchStream(ctx, connID, req, func(result json.RawMessage, partial bool, rpcErr *RPCError) error {
		resp := &Response{JSONRPC: "2.0", ID: *req.ID, Result: result, Error: rpcErr, Partial: partial}
		if werr := writer.WriteFrame(resp); werr != nil {
			writeFailed = true
			return werr
		}
		return nil
	})
	if err != nil || writeFailed {
		s.log.Warn("chat_stream frame write failed", "connection_id", connID, "error", err)
		return false
	}
	return true
}

// NegotiateVersion checks a client-reported protocol version against the
// set this server supports. Only exact "1.x" matches on the major version
// are accepted; anything else is UnsupportedVersion per the data model.
func NegotiateVersion(clientVersion string) error {
	if len(clientVersion) == 0 {
		return coreerrors.UnsupportedVersion("")
	}
	if clientVersion[0] != '1' {
		return coreerrors.UnsupportedVersion(clientVersion)
	}
	return nil
}
