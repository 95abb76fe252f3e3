package fileio

import (
	"errors"
	"fmt"
)

// Error represents a fileio error with an error code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fileio: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("fileio: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode classifies the failure so callers can branch without parsing
// messages.
type ErrorCode int

const (
	// CodeInvalid indicates a malformed argument: a negative offset or
	// length, or a range outside the addressable region.
	CodeInvalid ErrorCode = iota + 1

	// CodeIO indicates a failed OS operation, or an operation the current
	// state of the resource cannot honor: resizing while zero-copy buffers
	// are outstanding, writing past the mapped length, an unaligned mapping
	// offset, or a lock held by another writer.
	CodeIO

	// CodeClosed indicates an operation on an already-closed handle.
	CodeClosed

	// CodeNotImplemented indicates an operation the component type does not
	// support.
	CodeNotImplemented
)

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error wrapping an underlying error.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Code returns the error code carried by err, or 0 if err is nil or not a
// fileio error.
func Code(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsInvalid returns true if the error is an invalid-argument error.
func IsInvalid(err error) bool {
	return Code(err) == CodeInvalid
}

// IsIO returns true if the error is an I/O error.
func IsIO(err error) bool {
	return Code(err) == CodeIO
}

// IsClosed returns true if the error reports an operation on a closed handle.
func IsClosed(err error) bool {
	return Code(err) == CodeClosed
}

// IsNotImplemented returns true if the error reports an unsupported operation.
func IsNotImplemented(err error) bool {
	return Code(err) == CodeNotImplemented
}
