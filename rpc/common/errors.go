package common

import (
	"errors"
	"fmt"
)

// RetCode classifies every failure the relay can report for a request
type RetCode int

const (
	RetCConfigurationMissing RetCode = iota + 1
	RetCConnectTimeout
	RetCConnectRefused
	RetCConnectFailed
	RetCTruncatedHeader
	RetCTruncatedBody
	RetCOversizedFrame
	RetCLocalTimeout
	RetCStopped
	RetCQueueFull
	RetCIO
	RetCInternal
)

var retCodeNames = map[RetCode]string{
	RetCConfigurationMissing: "configuration missing",
	RetCConnectTimeout:       "connect timeout",
	RetCConnectRefused:       "connect refused",
	RetCConnectFailed:        "connect failed",
	RetCTruncatedHeader:      "truncated header",
	RetCTruncatedBody:        "truncated body",
	RetCOversizedFrame:       "oversized frame",
	RetCLocalTimeout:         "local timeout",
	RetCStopped:              "stopped",
	RetCQueueFull:            "queue full",
	RetCIO:                   "i/o error",
	RetCInternal:             "internal error",
}

func (c RetCode) String() string {
	if name, ok := retCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(c))
}

// Error is the error type of the relay. Two errors are equal for errors.Is if their codes match,
// so callers can test against the sentinels below regardless of message and cause.
type Error struct {
	Code RetCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new error with the given code and message
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// WrapError creates a new error with the given code wrapping err
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, 0 if there is none
func CodeOf(err error) RetCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

var (
	ErrConfigurationMissing = NewError(RetCConfigurationMissing, "")
	ErrConnectTimeout       = NewError(RetCConnectTimeout, "")
	ErrConnectRefused       = NewError(RetCConnectRefused, "")
	ErrConnectFailed        = NewError(RetCConnectFailed, "")
	ErrTruncatedHeader      = NewError(RetCTruncatedHeader, "")
	ErrTruncatedBody        = NewError(RetCTruncatedBody, "")
	ErrOversizedFrame       = NewError(RetCOversizedFrame, "")
	ErrLocalTimeout         = NewError(RetCLocalTimeout, "")
	ErrStopped              = NewError(RetCStopped, "")
	ErrQueueFull            = NewError(RetCQueueFull, "")
	ErrIO                   = NewError(RetCIO, "")
	ErrInternal             = NewError(RetCInternal, "")
)

// DiscardsConnection reports whether the error leaves the stream in an unknown state,
// in which case the connection it happened on must not be reused
func DiscardsConnection(err error) bool {
	switch CodeOf(err) {
	case RetCTruncatedHeader, RetCTruncatedBody, RetCOversizedFrame, RetCIO, RetCInternal:
		return true
	default:
		return false
	}
}
