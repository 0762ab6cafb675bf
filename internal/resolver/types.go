// Package resolver implements the typed evaluation facade:
// LoadArtifact/ReloadArtifact/ClearCache/StartPolling/StopPolling plus the
// four typed Resolve* operations and their shared eight-step pipeline.
package resolver

// Reason classifies why a ResolutionDetails carries the value it does.
type Reason string

const (
	ReasonDefault         Reason = "DEFAULT"
	ReasonTargetingMatch   Reason = "TARGETING_MATCH"
	ReasonError            Reason = "ERROR"
)

// ErrorCode enumerates the resolver/evaluation error taxonomy.
type ErrorCode string

const (
	ErrorCodeFlagNotFound     ErrorCode = "FLAG_NOT_FOUND"
	ErrorCodeTypeMismatch     ErrorCode = "TYPE_MISMATCH"
	ErrorCodeParseError       ErrorCode = "PARSE_ERROR"
	ErrorCodeProviderNotReady ErrorCode = "PROVIDER_NOT_READY"
	ErrorCodeGeneral          ErrorCode = "GENERAL"
)

// ResolutionDetails is the typed return envelope every resolve* call
// produces.
type ResolutionDetails[T any] struct {
	Value        T
	Reason       Reason
	ErrorCode    ErrorCode
	ErrorMessage string
	Variant      string
}

func defaultDetails[T any](def T, reason Reason) ResolutionDetails[T] {
	return ResolutionDetails[T]{Value: def, Reason: reason}
}

func defaultWithError[T any](def T, reason Reason, code ErrorCode, msg string) ResolutionDetails[T] {
	return ResolutionDetails[T]{Value: def, Reason: reason, ErrorCode: code, ErrorMessage: msg}
}
