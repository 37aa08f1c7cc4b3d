package status

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error class. Clients branch on it
// ("try a different slot" vs "start over"), so values never change.
type Code string

const (
	CodeValidation     Code = "validation"
	CodeConflict       Code = "conflict"
	CodeExpired        Code = "expired"
	CodeInvalidState   Code = "invalid_state"
	CodeAlreadySettled Code = "already_settled"
	CodeNotFound       Code = "not_found"
	CodeInternal       Code = "internal"
)

// Conflict reasons.
const (
	ReasonBlocked  = "blocked"
	ReasonOccupied = "occupied"
)

type Error struct {
	Code   Code
	Reason string
	msg    string
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Reason, e.msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

// Is makes errors.Is(err, status.ErrConflict)-style checks work by
// comparing codes only.
func (e *Error) Is(target error) bool {
	var se *Error
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	return false
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, msg: msg}
}

func Conflict(reason, msg string) *Error {
	return &Error{Code: CodeConflict, Reason: reason, msg: msg}
}

func Expired(msg string) *Error {
	return &Error{Code: CodeExpired, msg: msg}
}

func InvalidState(msg string) *Error {
	return &Error{Code: CodeInvalidState, msg: msg}
}

func AlreadySettled(msg string) *Error {
	return &Error{Code: CodeAlreadySettled, msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, msg: msg}
}

func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, msg: msg}
}

// CodeOf extracts the stable code from err, or CodeInternal when err
// carries none.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation     = &Error{Code: CodeValidation}
	ErrConflict       = &Error{Code: CodeConflict}
	ErrExpired        = &Error{Code: CodeExpired}
	ErrInvalidState   = &Error{Code: CodeInvalidState}
	ErrAlreadySettled = &Error{Code: CodeAlreadySettled}
	ErrNotFound       = &Error{Code: CodeNotFound}
	ErrInternal       = &Error{Code: CodeInternal}
)
