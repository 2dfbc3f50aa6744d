package transcoder

import (
	"strings"
	"unicode/utf8"
)

// Kind identifies a class of conversion failure.
type Kind int

const (
	// KindUnexpected covers faults outside the transcoder's own diagnostics:
	// failure to launch, I/O errors, cancellation.
	KindUnexpected Kind = iota
	// KindProbeUnavailable is absorbed by the prober and never returned to callers.
	KindProbeUnavailable
	KindInvalidInput
	KindUnrecognizedFormat
	KindConversionFailed
	KindStreamSetup
)

func (k Kind) String() string {
	switch k {
	case KindProbeUnavailable:
		return "probe_unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnrecognizedFormat:
		return "unrecognized_format"
	case KindConversionFailed:
		return "conversion_failed"
	case KindStreamSetup:
		return "stream_setup"
	default:
		return "unexpected"
	}
}

// User-facing messages, one per kind.
const (
	msgInvalidInput       = "The downloaded file appears to be corrupted or is not a valid video/GIF format. Try another emote URL."
	msgUnrecognizedFormat = "Unable to recognize the file format. Make sure it is a valid GIF or video."
	msgConversionFailed   = "Unable to convert the emote"
	msgStreamSetup        = "Unable to start the conversion stream."
	msgUnexpected         = "Unexpected error during conversion."
)

// maxDetailRunes bounds the diagnostic excerpt carried by KindConversionFailed.
const maxDetailRunes = 200

// Error is the single error type returned by the transcoder.
type Error struct {
	Kind Kind
	// Message is safe to show to end users.
	Message string
	// Detail is a bounded excerpt of the transcoder diagnostics, if any.
	Detail string
	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrUnrecognizedFormat = &Error{Kind: KindUnrecognizedFormat}
	ErrConversionFailed   = &Error{Kind: KindConversionFailed}
	ErrStreamSetup        = &Error{Kind: KindStreamSetup}
	ErrUnexpected         = &Error{Kind: KindUnexpected}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Classify maps transcoder diagnostic output to a classified error.
// Patterns are checked in priority order; unmatched output becomes
// KindConversionFailed with a bounded excerpt.
func Classify(stderr string) *Error {
	switch {
	case strings.Contains(stderr, "Invalid data found when processing input"),
		strings.Contains(stderr, "image data not found"):
		return &Error{Kind: KindInvalidInput, Message: msgInvalidInput}
	case strings.Contains(stderr, "Could not find codec parameters"):
		return &Error{Kind: KindUnrecognizedFormat, Message: msgUnrecognizedFormat}
	}

	detail := excerpt(stderr, maxDetailRunes)
	return &Error{
		Kind:    KindConversionFailed,
		Message: msgConversionFailed + ": " + detail,
		Detail:  detail,
	}
}

func unexpected(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: msgUnexpected, Err: err}
}

func streamSetup(err error) *Error {
	return &Error{Kind: KindStreamSetup, Message: msgStreamSetup, Err: err}
}

// excerpt returns at most n runes of s. Invalid UTF-8 bytes count as one rune each.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
