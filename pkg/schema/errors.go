package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeParse               = "PARSE_ERROR"
	ErrCodeOrphanNode          = "ORPHAN_NODE"
	ErrCodeDanglingEdge        = "DANGLING_EDGE"
	ErrCodeAmbiguousRoute      = "AMBIGUOUS_ROUTE"
	ErrCodeEncoding            = "ENCODING_ERROR"
	ErrCodeDecode              = "DECODE_ERROR"
	ErrCodeStaleToken          = "STALE_TOKEN"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeFallbackUnavailable = "FALLBACK_UNAVAILABLE"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeStore               = "STORE_ERROR"
)

// FaultError is the structured error type for all faultline operations.
type FaultError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Line    int            `json:"line,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FaultError) Error() string {
	switch {
	case e.NodeID != "" && e.Line > 0:
		return fmt.Sprintf("[%s] node %s (line %d): %s", e.Code, e.NodeID, e.Line, e.Message)
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FaultError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FaultError.
func NewError(code, message string) *FaultError {
	return &FaultError{Code: code, Message: message}
}

// NewErrorf creates a new FaultError with a formatted message.
func NewErrorf(code, format string, args ...any) *FaultError {
	return &FaultError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FaultError) WithNode(nodeID string) *FaultError {
	e.NodeID = nodeID
	return e
}

// WithLine attaches a source line number to the error.
func (e *FaultError) WithLine(line int) *FaultError {
	e.Line = line
	return e
}

// WithCause attaches an underlying cause.
func (e *FaultError) WithCause(err error) *FaultError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FaultError) WithDetails(details map[string]any) *FaultError {
	e.Details = details
	return e
}

// IsRecoverable reports whether the navigator can recover from the error by
// resetting the session or re-rendering the current node. Compilation and
// encoding-budget errors are never recoverable: they block publishing.
func (e *FaultError) IsRecoverable() bool {
	switch e.Code {
	case ErrCodeDecode, ErrCodeStaleToken, ErrCodeInvalidTransition:
		return true
	}
	return false
}
