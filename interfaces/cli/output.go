package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	pkgerrors "companionlife/pkg/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the engine refused the operation
	ExitCommandError = 2 // bad flags, configuration or store
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorOutput is what a failed command prints to stderr.
type ErrorOutput struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// WriteError prints err as JSON, keeping the engine's error code and details.
func WriteError(w io.Writer, err error) {
	out := ErrorOutput{Error: err.Error()}
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		out.Error = appErr.Message
		out.Code = string(appErr.Type)
		out.Details = appErr.Details
	}
	_ = writeJSON(w, out)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
