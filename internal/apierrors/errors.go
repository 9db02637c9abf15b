// Package apierrors is the single place HTTP status codes get decided.
// Every error kind named in the system's error-handling contract has a
// constructor here; nothing outside this package should hand-write a
// status code.
package apierrors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Code is a closed enum of error kinds.
type Code string

const (
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeIllegalState    Code = "ILLEGAL_STATE"
	CodeConfigError     Code = "CONFIG_ERROR"
	CodeExecError       Code = "EXEC_ERROR"
	CodeInternalError   Code = "INTERNAL_ERROR"
)

// Error is a structured API error with enough detail to serialize directly
// as an HTTP response body.
type Error struct {
	Code      Code        `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Response wraps Error for JSON responses.
type Response struct {
	Error Error `json:"error"`
}

// New creates an Error, stamping the current time.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}

func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// StatusCode maps a Code to its HTTP status, per the process' error
// propagation policy: validation/not-found/conflict map to client errors,
// exec/internal errors map to 500, illegal state is context-dependent and
// defaults to 409 (callers needing 500 build their own Error with
// CodeInternalError instead).
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeIllegalState:
		return http.StatusConflict
	case CodeConfigError:
		return http.StatusInternalServerError
	case CodeExecError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Write serializes err as the HTTP response body and sets its status code.
func Write(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(Response{Error: *err})
}

// BadRequest reports a malformed or invalid request (missing/mistyped
// parameter, malformed cache key pattern, etc).
func BadRequest(message string) *Error {
	return New(CodeValidationError, message)
}

// NotFound reports a missing resource: unknown route, empty SINGLE result,
// unknown descriptor name.
func NotFound(resource string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// IllegalState reports an operation that conflicts with current state, e.g.
// attempting to mutate a filesystem-sourced descriptor via the management
// API (409 Conflict).
func IllegalState(message string) *Error {
	return New(CodeIllegalState, message)
}

// ConfigError reports a descriptor load/parse failure. Kind is one of
// "database", "query", "endpoint"; Path is the origin (file path or store
// key) that failed.
type ConfigErrorDetail struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

func ConfigError(kind, path string, cause error) *Error {
	msg := fmt.Sprintf("failed to load %s descriptor %s", kind, path)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(CodeConfigError, msg).WithDetails(ConfigErrorDetail{Kind: kind, Path: path})
}

// ExecError reports a query execution failure against a backing database.
type ExecErrorDetail struct {
	QueryName string `json:"query_name"`
}

func ExecError(queryName string, cause error) *Error {
	msg := fmt.Sprintf("query %q failed", queryName)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return New(CodeExecError, msg).WithDetails(ExecErrorDetail{QueryName: queryName})
}

// Internal reports an unexpected server-side failure.
func Internal(message string) *Error {
	return New(CodeInternalError, message)
}
