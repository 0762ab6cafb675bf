package artifact

import "fmt"

// Code identifies the semantic error kind raised by the artifact codec.
type Code string

const (
	CodeInvalidArtifact  Code = "INVALID_ARTIFACT"
	CodeSignatureRequired Code = "SIGNATURE_REQUIRED"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeInvalidKey       Code = "INVALID_KEY"
)

// Error carries a taxonomy code alongside a human-readable description of
// the first failing invariant, so callers can branch on Code without string
// matching Msg.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("artifact: %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
