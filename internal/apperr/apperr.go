// Package apperr defines the tagged error kinds surfaced by sessions, listings
// and transfers. Every failure that leaves the engine is an *Error so callers
// (the bridge, the CLI) can branch on Kind instead of parsing messages.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindTransport       Kind = "transport"        // host/port unreachable
	KindHandshake       Kind = "handshake"        // SSH negotiation or SFTP subsystem failure
	KindAuth            Kind = "auth"             // credentials rejected
	KindNotFound        Kind = "not_found"        // session or transfer id absent
	KindFilesystem      Kind = "filesystem"       // local create/open/write failure
	KindRemoteOp        Kind = "remote_op"        // remote open/stat/read/write/mkdir/rmdir/unlink failure
	KindCancelled       Kind = "cancelled"        // user-requested abort
	KindTaskFailure     Kind = "task_failure"     // the unit of work itself could not complete
	KindInvalidArgument Kind = "invalid_argument" // malformed request input
)

// Sentinel causes, usable with errors.Is through an *Error chain.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrTransferNotFound = errors.New("transfer not found")
	ErrCancelled        = errors.New("transfer cancelled")
)

// Error is a classified failure. Op names the operation ("list", "download"),
// Subject carries the path or id the operation was acting on.
type Error struct {
	Kind    Kind
	Op      string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Subject != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(e.Subject)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	} else if b.Len() == 0 {
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// SessionNotFound reports an unknown session id.
func SessionNotFound(op, sessionID string) *Error {
	return New(KindNotFound, op, sessionID, ErrSessionNotFound)
}

// TransferNotFound reports an unknown or already finished transfer id.
func TransferNotFound(transferID string) *Error {
	return New(KindNotFound, "cancel", transferID, ErrTransferNotFound)
}

// Cancelled reports a user-requested stop of a transfer.
func Cancelled(op, transferID string) *Error {
	return New(KindCancelled, op, transferID, ErrCancelled)
}

// Filesystem wraps a local storage failure.
func Filesystem(op, path string, err error) *Error {
	return New(KindFilesystem, op, path, err)
}

// Remote wraps a failure of a remote file operation.
func Remote(op, path string, err error) *Error {
	return New(KindRemoteOp, op, path, err)
}

// Invalid reports malformed input.
func Invalid(op, format string, args ...any) *Error {
	return New(KindInvalidArgument, op, "", fmt.Errorf(format, args...))
}

// KindOf classifies any error. Context cancellation maps to KindCancelled and
// anything unclassified maps to KindTaskFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindTaskFailure
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsCancelled reports whether err is a user-requested stop.
func IsCancelled(err error) bool {
	return Is(err, KindCancelled)
}
