// Package sceneerr provides the typed error used across the scene and
// tile pipeline so callers can distinguish the error kinds described in
// the engine's error handling design (document parse errors, fetch
// errors, archive errors, scene build errors, and invariant violations)
// without parsing error strings.
package sceneerr

import "fmt"

// Code classifies an Error.
type Code string

const (
	// CodeParse marks a document that failed to parse as a map.
	CodeParse Code = "PARSE_ERROR"
	// CodeFetch marks a URL transport failure.
	CodeFetch Code = "FETCH_ERROR"
	// CodeArchive marks a zip open/entry/decompress failure.
	CodeArchive Code = "ARCHIVE_ERROR"
	// CodeSceneBuild marks an invalid style/shader/source configuration.
	CodeSceneBuild Code = "SCENE_BUILD_ERROR"
	// CodeCanceled marks a cancellation outcome; not treated as fatal.
	CodeCanceled Code = "CANCELED"
	// CodeInvariant marks a logged, non-fatal invariant violation.
	CodeInvariant Code = "INVARIANT_VIOLATION"
	// CodeInvalidInput marks caller-supplied arguments that fail validation.
	CodeInvalidInput Code = "INVALID_INPUT"
	// CodeInternal marks an unexpected internal failure.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is the structured error type returned by this module's packages.
type Error struct {
	Code    Code
	Message string
	URL     string // optional: the URL the error concerns
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.URL != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Code, e.Message, e.URL, e.Cause)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.URL)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that records an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithURL attaches the URL an error concerns and returns the receiver.
func (e *Error) WithURL(url string) *Error {
	e.URL = url
	return e
}

// IsCanceled reports whether err represents a cancellation outcome.
func IsCanceled(err error) bool {
	var se *Error
	if ok := asError(err, &se); ok {
		return se.Code == CodeCanceled
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
