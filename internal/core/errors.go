package core

import (
	"errors"
	"fmt"
)

// Exit codes for the tandem CLI.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitOffline  = 3
	ExitNotFound = 4
	ExitTimeout  = 5
)

var (
	// ErrIndexOutOfRange reports a queue index outside the queue.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrUnknownDevice reports a device id missing from the roster.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrNoTrack reports an operation that needs a current track.
	ErrNoTrack = errors.New("no current track")
	// ErrNotConnected reports a send while the channel is not open.
	ErrNotConnected = errors.New("channel not connected")
	// ErrTrackNotFound reports a catalog miss.
	ErrTrackNotFound = errors.New("track not found")
)

// CLIError carries a user-visible message and exit code.
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ErrorFor maps a domain error to a CLIError.
func ErrorFor(msg string, err error) *CLIError {
	switch {
	case errors.Is(err, ErrNotConnected):
		return WrapError(ExitOffline, msg, err)
	case errors.Is(err, ErrTrackNotFound), errors.Is(err, ErrUnknownDevice):
		return WrapError(ExitNotFound, msg, err)
	case errors.Is(err, ErrIndexOutOfRange), errors.Is(err, ErrNoTrack):
		return WrapError(ExitUsage, msg, err)
	default:
		return WrapError(ExitRuntime, msg, err)
	}
}

// ExitCode returns the CLI exit code from error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntime
}
