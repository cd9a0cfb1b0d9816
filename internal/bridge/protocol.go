// Package bridge implements the local IPC transport between the daemon and
// its front-ends (the interactive CLI, bot adapters, the HTTP façade, test
// harnesses): a length-prefixed JSON-RPC codec, same-user peer enforcement,
// an encrypted per-bridge credential vault, and connection health tracking.
package bridge

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// ProtocolVersion is the bridge wire-protocol version string returned by
// get_version. Minor increments add methods; major increments reshape or
// remove existing ones. The extended surface (agent session RPCs) is the
// one this version advertises; get_version/ping/get_credentials alone is
// a strict subset any older "1.x" client can still use unchanged. 1.2
// adds chat_stream, which replies with zero or more Partial frames before
// its final, non-partial one.
const ProtocolVersion = "1.2"

// maxFrameSize bounds a single frame to guard against a peer claiming an
// absurd length prefix and exhausting memory.
const maxFrameSize = 64 << 20 // 64MiB

// Request is a JSON-RPC call. Notifications omit ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result or Error, matched to its Request by ID.
// Partial marks one of a series of incremental frames answering the same
// request (chat_stream); the series ends with one non-partial frame.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Partial bool            `json:"partial,omitempty"`
}

// RPCError is the wire shape of a coreerrors.Error crossing the boundary.
type RPCError struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// IsNotification reports whether a Request carries no ID (fire-and-forget).
func (r *Request) IsNotification() bool { return r.ID == nil }

// FrameWriter writes length-prefixed JSON frames to an underlying stream.
// Safe for concurrent use by a single writer goroutine only; callers that
// need concurrent writers must serialize through a mutex or a channel.
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes v as JSON and writes it as a 4-byte big-endian length
// prefix followed by the payload.
func (fw *FrameWriter) WriteFrame(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := fw.w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := fw.w.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// FrameReader reads length-prefixed JSON frames from an underlying stream.
type FrameReader struct {
	r *bufio.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadFrame reads one frame and unmarshals it into v. Returns io.EOF when
// the peer closed the connection cleanly between frames.
func (fr *FrameReader) ReadFrame(v any) error {
	var header [4]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
