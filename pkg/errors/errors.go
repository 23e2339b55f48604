// Package errors provides typed error handling with rich context for the
// agent framework. Every failure that crosses a package boundary carries an
// ErrorCode so callers can branch on taxonomy instead of string matching.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies framework errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeValidation indicates a structurally invalid input or state transition.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodeArgumentValidation indicates tool arguments violated the declared schema.
	CodeArgumentValidation ErrorCode = "ARGUMENT_VALIDATION"

	// CodeDuplicateTool indicates a tool name was registered twice.
	CodeDuplicateTool ErrorCode = "DUPLICATE_TOOL"

	// CodeUnknownTool indicates a tool name is not present in the registry.
	CodeUnknownTool ErrorCode = "UNKNOWN_TOOL"

	// CodeToolExecution indicates a registered tool failed while running.
	CodeToolExecution ErrorCode = "TOOL_EXECUTION"

	// CodeProvider indicates an LLM provider transport or API failure.
	CodeProvider ErrorCode = "PROVIDER_ERROR"

	// CodeRateLimit indicates the provider throttled the request.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeMalformedResponse indicates the model returned output that could not
	// be parsed after the configured retries.
	CodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// CodeMaxIterations indicates an agent hit its iteration cap without
	// producing a terminal answer.
	CodeMaxIterations ErrorCode = "MAX_ITERATIONS"

	// CodeInvalidPlan indicates a plan is cyclic, empty, or otherwise malformed.
	CodeInvalidPlan ErrorCode = "INVALID_PLAN"

	// CodePlanExecution indicates one or more subtasks of a plan failed.
	CodePlanExecution ErrorCode = "PLAN_EXECUTION"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeMemoryError indicates a memory backend error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// FrameworkError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type FrameworkError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *FrameworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *FrameworkError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	type Alias FrameworkError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         cause,
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new FrameworkError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *FrameworkError {
	return &FrameworkError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a new FrameworkError with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *FrameworkError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *FrameworkError) WithContext(key string, value interface{}) *FrameworkError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *FrameworkError) WithAttribute(key, value string) *FrameworkError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *FrameworkError) WithRecoverable(recoverable bool) *FrameworkError {
	e.Recoverable = recoverable
	return e
}

// AsFrameworkError attempts to convert an error to a FrameworkError.
// Returns the error as FrameworkError if one is in the chain, or wraps it
// as CodeInternal otherwise.
func AsFrameworkError(err error) *FrameworkError {
	if err == nil {
		return nil
	}
	var fe *FrameworkError
	if stderrors.As(err, &fe) {
		return fe
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the code of the first FrameworkError in the chain,
// or CodeInternal for foreign errors. Returns "" for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsFrameworkError(err).Code
}

// HasCode reports whether the error chain contains a FrameworkError
// with the given code.
func HasCode(err error, code ErrorCode) bool {
	var fe *FrameworkError
	return stderrors.As(err, &fe) && fe.Code == code
}

// IsRecoverable reports whether the error is a FrameworkError marked
// recoverable. Foreign errors are not recoverable.
func IsRecoverable(err error) bool {
	var fe *FrameworkError
	return stderrors.As(err, &fe) && fe.Recoverable
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *FrameworkError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to gRPC/HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeUnknownTool:
		return 404 // NOT_FOUND
	case CodeValidation, CodeArgumentValidation, CodeInvalidPlan, CodeMalformedResponse:
		return 400 // INVALID_ARGUMENT
	case CodeDuplicateTool:
		return 409 // ALREADY_EXISTS
	case CodeTimeout:
		return 408 // DEADLINE_EXCEEDED
	case CodeRateLimit:
		return 429 // RESOURCE_EXHAUSTED
	default:
		return 500 // INTERNAL
	}
}
