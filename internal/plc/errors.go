package plc

import (
	"errors"
	"fmt"
)

// Error represents a failure talking to the field controller.
//
// Errors are tagged with a code so callers can distinguish transport
// failures (reconnect next cycle) from protocol-level rejections
// (controller answered, but with an exception).
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the client operation that failed ("read words", "write bit", ...).
	Op string

	// Addr is the register address involved, when meaningful.
	Addr uint16

	// Exception is the controller's exception code for ErrCodeException.
	Exception byte

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes client errors.
type ErrorCode string

const (
	// ErrCodeConnection indicates the transport could not be established
	// or died mid-request. The connection is dropped; the next operation
	// redials.
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeException indicates the controller answered with a protocol
	// exception (illegal address, illegal value, device busy).
	ErrCodeException ErrorCode = "EXCEPTION"

	// ErrCodeDecode indicates a malformed or truncated response frame.
	ErrCodeDecode ErrorCode = "DECODE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code == ErrCodeException:
		return fmt.Sprintf("%s: %s addr=%d: controller exception 0x%02x", e.Code, e.Op, e.Addr, e.Exception)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s addr=%d: %v", e.Code, e.Op, e.Addr, e.Err)
	default:
		return fmt.Sprintf("%s: %s addr=%d", e.Code, e.Op, e.Addr)
	}
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is a transport-level failure.
// Uses errors.As to handle wrapped errors.
func IsConnectionError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeConnection
}

// IsProtocolError reports whether the controller rejected a request or
// returned a frame the client could not decode.
func IsProtocolError(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && (pe.Code == ErrCodeException || pe.Code == ErrCodeDecode)
}

func connError(op string, addr uint16, err error) *Error {
	return &Error{Code: ErrCodeConnection, Op: op, Addr: addr, Err: err}
}

func exceptionError(op string, addr uint16, code byte) *Error {
	return &Error{Code: ErrCodeException, Op: op, Addr: addr, Exception: code}
}

func decodeError(op string, addr uint16, err error) *Error {
	return &Error{Code: ErrCodeDecode, Op: op, Addr: addr, Err: err}
}
