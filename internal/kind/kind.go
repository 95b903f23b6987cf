// Package kind classifies failures raised anywhere in the acquisition
// pipeline into a small, stable taxonomy so callers (the scheduler, the
// CLI exit code, log lines) can branch on failure category without
// string-matching error messages.
package kind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one category of pipeline failure.
type Kind int

const (
	// Unknown is the zero value; never constructed deliberately.
	Unknown Kind = iota
	// TransientNetwork covers connection resets, timeouts, and 5xx
	// responses that a retry policy already exhausted.
	TransientNetwork
	// PermanentHTTP covers non-retryable HTTP statuses (4xx other than
	// 408/429).
	PermanentHTTP
	// NoStream means candidate enumeration or selection produced zero
	// usable streams.
	NoStream
	// ScriptEval means the packer-unpacking sandbox failed or timed out.
	ScriptEval
	// MalformedPlaylist means the media playlist was missing a required
	// directive or had no segments.
	MalformedPlaylist
	// BadKey means the AES key fetch failed or returned a key whose
	// length wasn't 16 bytes.
	BadKey
	// SegmentFailed means one segment exhausted its retry budget.
	SegmentFailed
	// PartialFailure means some segments downloaded and some did not;
	// the episode cannot be muxed.
	PartialFailure
	// MuxFailed means the external muxer process exited non-zero.
	MuxFailed
	// Cancelled means the operation stopped because of caller
	// cancellation, not failure.
	Cancelled
	// ConfigError means the caller-supplied configuration was invalid.
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case TransientNetwork:
		return "transient_network"
	case PermanentHTTP:
		return "permanent_http"
	case NoStream:
		return "no_stream"
	case ScriptEval:
		return "script_eval"
	case MalformedPlaylist:
		return "malformed_playlist"
	case BadKey:
		return "bad_key"
	case SegmentFailed:
		return "segment_failed"
	case PartialFailure:
		return "partial_failure"
	case MuxFailed:
		return "mux_failed"
	case Cancelled:
		return "cancelled"
	case ConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with show/episode/phase context and a wrapped
// cause, built with github.com/pkg/errors so the wrapped cause carries a
// stack trace; callers reach the original error through Unwrap
// (errors.Is / errors.As / errors.Unwrap).
type Error struct {
	Kind    Kind
	Show    string
	Episode int
	Phase   string
	cause   error
}

func (e *Error) Error() string {
	if e.Episode > 0 {
		return fmt.Sprintf("%s: %s ep %d [%s]: %v", e.Kind, e.Show, e.Episode, e.Phase, e.cause)
	}
	return fmt.Sprintf("%s: %s [%s]: %v", e.Kind, e.Show, e.Phase, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a kind.Error wrapping cause with a stack trace captured at
// the call site via pkg/errors.
func New(k Kind, show string, episode int, phase string, cause error) *Error {
	return &Error{Kind: k, Show: show, Episode: episode, Phase: phase, cause: errors.WithStack(cause)}
}

// Wrap attaches a message to cause before classifying it, preserving
// the original error in the chain.
func Wrap(k Kind, show string, episode int, phase string, cause error, message string) *Error {
	return &Error{Kind: k, Show: show, Episode: episode, Phase: phase, cause: errors.WithMessage(cause, message)}
}

// Of extracts the Kind from err if it is (or wraps) a *kind.Error,
// returning Unknown otherwise.
func Of(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return Unknown
}

// IsCancelled reports whether err is, or wraps, a Cancelled kind.Error.
func IsCancelled(err error) bool {
	return Of(err) == Cancelled
}
