package beanstalk

import (
	"strings"

	"github.com/pkg/errors"
)

// Errors returned by the client itself, independent of what the server replies.
var (
	// ErrConnectionLost is delivered to every outstanding command when the
	// connection drops before its reply arrived.
	ErrConnectionLost = errors.New("beanstalk closed connection")
	// ErrNotConnected is returned when a command is issued while no connection is open.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned once the client has been closed.
	ErrClosed = errors.New("client closed")
	// ErrUnknownCommand is returned by Do for verbs missing from the command table.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedFrame is delivered when a reply cannot be parsed. When the
	// body length is unusable the stream cannot be resynchronised and the
	// connection is dropped.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrFrameTooLarge is delivered when a reply declares a body above the
	// configured maximum. The connection is dropped.
	ErrFrameTooLarge = errors.New("frame too large")
	// ErrUnexpectedFrame is logged when the server replies with nothing outstanding.
	ErrUnexpectedFrame = errors.New("frame without outstanding request")
)

// ProtocolError carries a reply tag that did not match the one the command expected.
// Domain outcomes such as a timed out reservation arrive this way.
type ProtocolError struct {
	Verb string
	Tag  string
	Args []string
}

func (e *ProtocolError) Error() string {
	if e.Verb == "" {
		return e.Tag
	}
	if len(e.Args) == 0 {
		return e.Verb + ": " + e.Tag
	}
	return e.Verb + ": " + e.Tag + " " + strings.Join(e.Args, " ")
}

// Is reports whether target is a ProtocolError with the same tag, so the
// sentinels below can be matched with errors.Is.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Tag == e.Tag
}

// Tags the server uses to report failures.
var (
	ErrBadFormat     = &ProtocolError{Tag: "BAD_FORMAT"}
	ErrUnknownVerb   = &ProtocolError{Tag: "UNKNOWN_COMMAND"}
	ErrOutOfMemory   = &ProtocolError{Tag: "OUT_OF_MEMORY"}
	ErrInternalError = &ProtocolError{Tag: "INTERNAL_ERROR"}
	ErrDraining      = &ProtocolError{Tag: "DRAINING"}
	ErrExpectedCRLF  = &ProtocolError{Tag: "EXPECTED_CRLF"}
	ErrJobTooBig     = &ProtocolError{Tag: "JOB_TOO_BIG"}
	ErrNotFound      = &ProtocolError{Tag: "NOT_FOUND"}
	ErrNotIgnored    = &ProtocolError{Tag: "NOT_IGNORED"}
	ErrTimedOut      = &ProtocolError{Tag: "TIMED_OUT"}
	ErrDeadlineSoon  = &ProtocolError{Tag: "DEADLINE_SOON"}
	ErrBuried        = &ProtocolError{Tag: "BURIED"}
)

// Tag returns the server tag carried by err, or "" when err is not a protocol failure.
func Tag(err error) string {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Tag
	}
	return ""
}
