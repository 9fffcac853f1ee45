package cli

import "errors"

// SilentError wraps an error whose message has already been printed by the
// command itself. main.go checks for it to avoid duplicate output.
type SilentError struct {
	err error
}

// NewSilentError wraps err so main.go skips printing it.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string { return e.err.Error() }

func (e *SilentError) Unwrap() error { return e.err }

// CodedError carries an explicit process exit code. Used by commands whose
// contract distinguishes failure modes, e.g. ambiguous name resolution.
type CodedError struct {
	err  error
	code int
}

// NewCodedError wraps err with an explicit exit code.
func NewCodedError(err error, code int) *CodedError {
	return &CodedError{err: err, code: code}
}

func (e *CodedError) Error() string { return e.err.Error() }

func (e *CodedError) Unwrap() error { return e.err }

// ExitCode returns the exit code for a command error: the embedded code for
// a CodedError, 1 otherwise.
func ExitCode(err error) int {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.code
	}
	return 1
}
