package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUnknownNodeKind   = "UNKNOWN_NODE_KIND"
	ErrCodeMultipleEdges     = "MULTIPLE_EDGES_ON_SINGLE_INPUT"
	ErrCodeFanOutNotAllowed  = "FAN_OUT_NOT_ALLOWED"
	ErrCodeMissingInput      = "MISSING_REQUIRED_INPUT"
	ErrCodeCycleDetected     = "CYCLE_DETECTED"
	ErrCodeNodeExecution     = "NODE_EXECUTION_ERROR"
	ErrCodeDuplicateNode     = "DUPLICATE_NODE"
	ErrCodeUnknownNode       = "UNKNOWN_NODE"
	ErrCodeUnknownPort       = "UNKNOWN_PORT"
	ErrCodePortDirection     = "PORT_DIRECTION"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeTemplate          = "TEMPLATE_ERROR"
	ErrCodeIsolatedNode      = "ISOLATED_NODE"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeStore             = "STORE_ERROR"
)

// BlueprintError is the structured error type for all compiler operations.
type BlueprintError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Port    string         `json:"port,omitempty"`
	Cause   error          `json:"-"`
}

func (e *BlueprintError) Error() string {
	switch {
	case e.NodeID != "" && e.Port != "":
		return fmt.Sprintf("[%s] node %s.%s: %s", e.Code, e.NodeID, e.Port, e.Message)
	case e.NodeID != "":
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *BlueprintError) Unwrap() error {
	return e.Cause
}

// NewError creates a new BlueprintError.
func NewError(code, message string) *BlueprintError {
	return &BlueprintError{Code: code, Message: message}
}

// NewErrorf creates a new BlueprintError with a formatted message.
func NewErrorf(code, format string, args ...any) *BlueprintError {
	return &BlueprintError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *BlueprintError) WithNode(nodeID string) *BlueprintError {
	e.NodeID = nodeID
	return e
}

// WithPort attaches a port name to the error.
func (e *BlueprintError) WithPort(port string) *BlueprintError {
	e.Port = port
	return e
}

// WithCause attaches an underlying cause.
func (e *BlueprintError) WithCause(err error) *BlueprintError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *BlueprintError) WithDetails(details map[string]any) *BlueprintError {
	e.Details = details
	return e
}

// Diagnostic converts the error into an error-severity Diagnostic.
func (e *BlueprintError) Diagnostic() Diagnostic {
	return Diagnostic{
		Code:     e.Code,
		Severity: SeverityError,
		NodeID:   e.NodeID,
		Port:     e.Port,
		Message:  e.Message,
	}
}
