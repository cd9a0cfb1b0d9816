// Package coreerrors defines the closed error taxonomy shared by the IPC
// bridge, session actor runtime, tool pipeline, and job scheduler. Every
// error that crosses a process boundary (an RPC response, a Tool result, a
// scheduler log line) is one of these kinds, carrying a human-readable
// reason. Nothing user-facing escapes uncategorized.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind identifies a category in the shared error taxonomy.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindNotRegistered      Kind = "not_registered"
	KindAuthFailed         Kind = "auth_failed"
	KindUnsupportedVersion Kind = "unsupported_version"
	KindNotSupported       Kind = "not_supported"
	KindDenied             Kind = "denied"
	KindTimeout            Kind = "timeout"
	KindInternal           Kind = "internal"
)

// Error is a tagged error carrying a category and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	// Err is the underlying cause, if any. Not serialized across the
	// process boundary; only Kind and Reason are.
	Err error
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with the given kind and reason.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap builds a tagged error that wraps an underlying cause.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func NotFound(reason string) *Error      { return New(KindNotFound, reason) }
func NotRegistered(reason string) *Error { return New(KindNotRegistered, reason) }
func AuthFailed(reason string) *Error    { return New(KindAuthFailed, reason) }
func UnsupportedVersion(got string) *Error {
	return New(KindUnsupportedVersion, got)
}
func NotSupported(what string) *Error { return New(KindNotSupported, what) }
func Denied(what string) *Error       { return New(KindDenied, what) }
func Timeout(reason string) *Error    { return New(KindTimeout, reason) }
func Internal(reason string) *Error   { return New(KindInternal, reason) }
func InternalFrom(err error) *Error {
	return Wrap(KindInternal, err.Error(), err)
}

// As reports whether err is (or wraps) a tagged *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
