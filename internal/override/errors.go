package override

import "fmt"

// Code identifies the semantic error kind raised while loading an override
// source.
type Code string

const (
	CodeInvalidOverride Code = "INVALID_OVERRIDE"
)

// Error carries a taxonomy code alongside a description of the first
// failing invariant.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("override: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("override: %s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func wrapErr(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
