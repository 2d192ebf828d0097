package dbc

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange        = errors.New("value out of range")
	ErrInvalidAction     = errors.New("invalid action")
	ErrBorrowConflict    = errors.New("borrow conflict")
	ErrNotFound          = errors.New("not found")
	ErrUpstreamSubscribe = errors.New("upstream subscribe failed")
	ErrDecode            = errors.New("decode error")
	ErrInvalidLayout     = errors.New("invalid signal layout")
	ErrDuplicateID       = errors.New("duplicated can id")
	ErrKindMismatch      = errors.New("value kind mismatch")
)

// ErrorKind classifies an [Error].
type ErrorKind uint8

const (
	ErrorKindValidation ErrorKind = iota
	ErrorKindLockConflict
	ErrorKindLookup
	ErrorKindUpstream
	ErrorKindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "validation"
	case ErrorKindLockConflict:
		return "lock-conflict"
	case ErrorKindLookup:
		return "lookup"
	case ErrorKindUpstream:
		return "upstream"
	case ErrorKindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by the codec and by the verbs built on top of it.
// UID is a short stable identifier (e.g. "fail-canid-search"), Info a human readable detail.
type Error struct {
	Kind ErrorKind
	Code int
	UID  string
	Info string

	err error
}

// NewError returns a new [Error] that matches the sentinel err with [errors.Is].
func NewError(err error, kind ErrorKind, uid, info string) *Error {
	return &Error{
		Kind: kind,
		UID:  uid,
		Info: info,
		err:  err,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.UID, e.Info)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newOutOfRangeError(uid, info string) *Error {
	return NewError(ErrOutOfRange, ErrorKindValidation, uid, info)
}

func newBorrowError(uid, info string) *Error {
	return NewError(ErrBorrowConflict, ErrorKindLockConflict, uid, info)
}

func newDecodeError(uid, info string, cause error) *Error {
	return NewError(errors.Join(ErrDecode, cause), ErrorKindDecode, uid, info)
}
