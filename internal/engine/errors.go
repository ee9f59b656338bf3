package engine

import (
	"errors"
	"fmt"
)

// ErrNoQuery is returned by Run when the route declares no computable query.
// The controller answers 204 No Content.
var ErrNoQuery = errors.New("route has no query")

// ErrorCode categorizes request-time errors.
type ErrorCode string

const (
	// ErrCodeChainResolution indicates a malformed query template. The
	// request fails before any statement executes.
	ErrCodeChainResolution ErrorCode = "CHAIN_RESOLUTION"

	// ErrCodeParamLookup indicates a bind value is missing or has a type
	// that cannot be bound.
	ErrCodeParamLookup ErrorCode = "PARAM_LOOKUP_FAILED"

	// ErrCodeQuery indicates the driver reported an execution failure.
	ErrCodeQuery ErrorCode = "QUERY_ERROR"

	// ErrCodeHook indicates a before or after hook failed.
	ErrCodeHook ErrorCode = "HOOK_ERROR"

	// ErrCodeInvalidBody indicates the request body could not be decoded.
	ErrCodeInvalidBody ErrorCode = "INVALID_BODY"
)

// Error is a request-time failure with enough context to log it.
//
// Statement is the declared index of the failing statement, or -1 when the
// error is not tied to a statement. Query and Params are for logs only and
// are never written to HTTP responses.
type Error struct {
	Code      ErrorCode
	Message   string
	RequestID string
	Statement int
	Query     string
	Params    []any
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Statement >= 0 {
		return fmt.Sprintf("%s: statement %d: %s", e.Code, e.Statement, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, statement int, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Statement: statement, Err: err}
}

// NewHookError wraps a hook failure.
func NewHookError(hook string, err error) *Error {
	return newError(ErrCodeHook, -1, hook+" hook failed", err)
}

// NewInvalidBodyError wraps a request body decoding failure.
func NewInvalidBodyError(err error) *Error {
	return newError(ErrCodeInvalidBody, -1, "invalid request body", err)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsChainResolutionError reports whether err is a malformed template error.
func IsChainResolutionError(err error) bool {
	return CodeOf(err) == ErrCodeChainResolution
}

// IsParamLookupError reports whether err is a parameter lookup failure.
func IsParamLookupError(err error) bool {
	return CodeOf(err) == ErrCodeParamLookup
}

// IsQueryError reports whether err is a driver execution failure.
func IsQueryError(err error) bool {
	return CodeOf(err) == ErrCodeQuery
}

// IsHookError reports whether err is a hook failure.
func IsHookError(err error) bool {
	return CodeOf(err) == ErrCodeHook
}

// IsInvalidBodyError reports whether err is a body decoding failure.
func IsInvalidBodyError(err error) bool {
	return CodeOf(err) == ErrCodeInvalidBody
}
