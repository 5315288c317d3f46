package core

import (
	"errors"
	"fmt"

	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitRuntime     = 1
	ExitUsage       = 2
	ExitUnsupported = 3
	ExitNotFound    = 4
	ExitAmbiguous   = 5
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

// ErrorForReplyCode maps protocol error codes to CLI exit codes.
func ErrorForReplyCode(code string, message string) *CLIError {
	switch code {
	case mp.CodeNotFound:
		return &CLIError{Code: ExitNotFound, Msg: message}
	case mp.CodeInvalid:
		return &CLIError{Code: ExitUsage, Msg: message}
	case mp.CodeUnknownCommand, mp.CodeNotSupported:
		return &CLIError{Code: ExitUnsupported, Msg: message}
	default:
		return &CLIError{Code: ExitRuntime, Msg: message}
	}
}

// FromError wraps picker failures with the exit code of their kind.
func FromError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	switch media.KindOf(err) {
	case media.KindValidation:
		return WrapError(ExitUsage, msg, err)
	case media.KindUnsupportedSearch:
		return WrapError(ExitUnsupported, msg, err)
	}
	if code := mp.ErrorCode(err); code != "" {
		mapped := ErrorForReplyCode(code, msg)
		mapped.Err = err
		return mapped
	}
	return WrapError(ExitRuntime, msg, err)
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
