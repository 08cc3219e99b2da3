package registry

import (
	"errors"
	"fmt"
)

// Error codes carried by CommandError.
const (
	CodeDuplicateCommand  = "DUPLICATE_COMMAND"
	CodeUnknownCommand    = "UNKNOWN_COMMAND"
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeTransportError    = "TRANSPORT_ERROR"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeRegistrySealed    = "REGISTRY_SEALED"
	CodeInvalidSchema     = "INVALID_SCHEMA"
)

// CommandError is a structured error from the registry or dispatcher.
// Remote failures reported by the cluster are not CommandErrors; they come back
// as a failed result.
type CommandError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Param names the offending argument for INVALID_ARGUMENT.
	Param string `json:"param,omitempty"`
	Cause error  `json:"-"`
}

func (e *CommandError) Error() string {
	msg := e.Code + ": " + e.Message
	if e.Param != "" {
		msg = fmt.Sprintf("%s: argument %q: %s", e.Code, e.Param, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Cause }

// Retryable reports whether the caller may reasonably try the same command again.
func (e *CommandError) Retryable() bool {
	return e.Code == CodeTransportError
}

// NewCommandError creates a new CommandError.
func NewCommandError(code, message string) *CommandError {
	return &CommandError{Code: code, Message: message}
}

// ErrDuplicateCommand is returned when a name is registered twice.
func ErrDuplicateCommand(name string) *CommandError {
	return &CommandError{Code: CodeDuplicateCommand, Message: fmt.Sprintf("command %s is already registered", name)}
}

// ErrUnknownCommand is returned when a name has no registered schema.
func ErrUnknownCommand(name string) *CommandError {
	return &CommandError{Code: CodeUnknownCommand, Message: fmt.Sprintf("unknown command: %s", name)}
}

// ErrInvalidArgument reports the first argument that failed validation.
func ErrInvalidArgument(param, reason string) *CommandError {
	return &CommandError{Code: CodeInvalidArgument, Message: reason, Param: param}
}

// ErrTransport wraps a failure to reach the administrative interface.
func ErrTransport(cause error) *CommandError {
	return &CommandError{Code: CodeTransportError, Message: "administrative interface call failed", Cause: cause}
}

// ErrMalformedResponse wraps a payload that could not be parsed as JSON.
func ErrMalformedResponse(cause error) *CommandError {
	return &CommandError{Code: CodeMalformedResponse, Message: "response payload is not valid JSON", Cause: cause}
}

// Code returns the CommandError code in err's chain, or "" when there is none.
func Code(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
