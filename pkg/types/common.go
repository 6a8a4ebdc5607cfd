package types

import (
	"errors"
	"fmt"
	"strings"
)

// ProcessRole identifies how a process participates in the channel
type ProcessRole string

const (
	RolePrimary   ProcessRole = "primary"
	RoleSecondary ProcessRole = "secondary"
	// RoleAuto is only valid in configuration; it is resolved before a channel is created.
	RoleAuto ProcessRole = "auto"
)

// ParseProcessRole converts a configuration string to a ProcessRole
func ParseProcessRole(s string) (ProcessRole, error) {
	switch ProcessRole(strings.ToLower(strings.TrimSpace(s))) {
	case RolePrimary:
		return RolePrimary, nil
	case RoleSecondary:
		return RoleSecondary, nil
	case RoleAuto, "":
		return RoleAuto, nil
	default:
		return "", NewError(ErrCodeInvalid, fmt.Sprintf("unknown process type: %q", s))
	}
}

// String returns the string representation of the role
func (r ProcessRole) String() string {
	return string(r)
}

// IsPrimary returns true for the primary role
func (r ProcessRole) IsPrimary() bool {
	return r == RolePrimary
}

// Error represents an error with additional context
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new error with code and message
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with code and message
func WrapError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsErrCode checks if an error, or any error in its wrap tree, has a specific error code
func IsErrCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && e.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if IsErrCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return IsErrCode(x.Unwrap(), code)
	}
	return false
}

// GetErrorCode returns the error code from an error
func GetErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Error codes
const (
	ErrCodeInvalid         = "INVALID"
	ErrCodeTooLarge        = "TOO_LARGE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeLocalIO         = "LOCAL_IO_FAILURE"
	ErrCodePeerUnreachable = "PEER_UNREACHABLE"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeProtocol        = "PROTOCOL_VIOLATION"
	ErrCodePartialFailure  = "PARTIAL_FAILURE"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeCanceled        = "CANCELED"
	ErrCodeInternal        = "INTERNAL"
)

