package errors

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrorCode represents a unique identifier for specific error conditions in Arbor.
type ErrorCode int

const (
	ErrCodeUnknown       ErrorCode = 1000
	ErrCodeConfigInvalid ErrorCode = 1001

	// Process tree
	ErrCodeProcessCreation    ErrorCode = 3001
	ErrCodeIdentityResolution ErrorCode = 3002
	ErrCodeSignalDelivery     ErrorCode = 3003

	// Supervisor surfaces
	ErrCodePidFile     ErrorCode = 4001
	ErrCodeStatusRelay ErrorCode = 4002
	ErrCodeStopTimeout ErrorCode = 4003
)

// ArborError is a custom error type that provides structured error information,
// including an error code, the operation being performed, and the underlying cause.
type ArborError struct {
	// Code is the specific error code.
	Code ErrorCode
	// Msg is a human-readable description of the error.
	Msg string
	// Operation describes the action being performed when the error occurred.
	Operation string
	// Err is the underlying error that caused this error, if any.
	Err error
}

// Error returns a formatted string representation of the error.
func (e *ArborError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %s (cause: %v)", e.Code, e.Operation, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Msg)
}

// Unwrap returns the underlying error.
func (e *ArborError) Unwrap() error {
	return e.Err
}

// New creates a new ArborError with the specified code, operation, message, and underlying error.
func New(code ErrorCode, op, msg string, err error) error {
	return &ArborError{
		Code:      code,
		Msg:       msg,
		Operation: op,
		Err:       err,
	}
}

// SignalDeliveryError reports a signal that could not be sent to a pid.
type SignalDeliveryError struct {
	Pid    int
	Signal syscall.Signal
	Errno  syscall.Errno
	Err    error
}

func (e *SignalDeliveryError) Error() string {
	return fmt.Sprintf("[%d] signal %s to pid %d: %v (errno %d)", ErrCodeSignalDelivery, e.Signal, e.Pid, e.Err, int(e.Errno))
}

func (e *SignalDeliveryError) Unwrap() error {
	return e.Err
}

// NewSignalDelivery wraps a kill(2) failure. The errno is extracted when the
// cause carries one.
func NewSignalDelivery(pid int, sig syscall.Signal, err error) error {
	e := &SignalDeliveryError{Pid: pid, Signal: sig, Err: err}
	errors.As(err, &e.Errno)
	return e
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var ae *ArborError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	var sd *SignalDeliveryError
	if errors.As(err, &sd) {
		return code == ErrCodeSignalDelivery
	}
	return false
}

// Personal.AI order the ending
