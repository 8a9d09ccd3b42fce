// Package errs defines the typed error kinds used across discoveryd and the
// propagation policy each kind implies. The shape — a small closed set of
// kinds carried on a wrapped error value — is adapted from the teacher's
// error-state-manager package; the content is specific to this daemon's
// real failure modes rather than simulation state.
package errs

import "fmt"

// Kind classifies an error for the purposes of the propagation policy
// described in the specification's error handling design.
type Kind int

const (
	// ConfigInvalid marks a bad flag combination, unknown interface name, or
	// malformed country code discovered before the child is forked.
	ConfigInvalid Kind = iota
	// PermissionDenied marks a failed raw socket open or setuid/setgid call.
	PermissionDenied
	// FrameOverflow marks a codec write that would run past the end of the
	// destination buffer.
	FrameOverflow
	// FrameUnderflow marks a codec read that would run past the end of the
	// source buffer.
	FrameUnderflow
	// Malformed marks a protocol decode failure: a length-inconsistent TLV
	// or a header that does not parse.
	Malformed
	// IoTransient marks EAGAIN or a short write on a raw socket or IPC pipe.
	IoTransient
	// IoFatal marks a socketpair, fork, or bind failure.
	IoFatal
	// PrivsepProtocol marks an unexpected IPC tag or length on either pipe.
	PrivsepProtocol
	// Shutdown is the sentinel returned by the event loop once a clean
	// shutdown has been requested.
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case PermissionDenied:
		return "PermissionDenied"
	case FrameOverflow:
		return "FrameOverflow"
	case FrameUnderflow:
		return "FrameUnderflow"
	case Malformed:
		return "Malformed"
	case IoTransient:
		return "IoTransient"
	case IoFatal:
		return "IoFatal"
	case PrivsepProtocol:
		return "PrivsepProtocol"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Error is a Kind-tagged error value wrapping an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New constructs a Kind-tagged error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap constructs a Kind-tagged error wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's kind classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind of err if it (or something it wraps) is a *Error,
// and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	type kinder interface{ Kind() Kind }
	for err != nil {
		if k, ok := err.(kinder); ok {
			return k.Kind(), true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return 0, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Fatal reports whether an error of this kind must terminate both
// processes per the propagation policy (PrivsepProtocol, IoFatal).
func (k Kind) Fatal() bool {
	return k == PrivsepProtocol || k == IoFatal
}
