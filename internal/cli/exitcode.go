package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by the signalbox binary.
const (
	ExitSuccess = 0
	// ExitError is any failure without a more specific code.
	ExitError = 1
	// ExitUsage means bad arguments, flags or configuration.
	ExitUsage = 2
	// ExitNotFound means a mailbox root, attachment or config file is missing.
	ExitNotFound = 3
	// ExitTimeout means watch --timeout elapsed without receiving anything.
	ExitTimeout = 4
)

// ExitCodeError wraps an error with a specific exit code.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// GetExitCode maps err to a process exit code. Wrapped ExitCodeErrors keep
// their code; any other error is ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitError
}

// WithExitCode wraps an error with a specific exit code.
func WithExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitCodeError{Code: code, Err: err}
}

func UsageError(format string, args ...any) error {
	return &ExitCodeError{Code: ExitUsage, Err: fmt.Errorf(format, args...)}
}

func NotFoundError(format string, args ...any) error {
	return &ExitCodeError{Code: ExitNotFound, Err: fmt.Errorf(format, args...)}
}

func TimeoutError(format string, args ...any) error {
	return &ExitCodeError{Code: ExitTimeout, Err: fmt.Errorf(format, args...)}
}
