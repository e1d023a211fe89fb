package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeValidation Code = iota + 1
	CodeUnauthorized
	CodeForbidden
	CodeNotFound
	CodeConflict
	CodeInternal
)

var code2http = map[Code]int{
	CodeValidation:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeConflict:     http.StatusConflict,
	CodeInternal:     http.StatusInternalServerError,
}

// Stable reason strings returned to clients. These are part of the API
// contract; the message text is not.
const (
	ReasonValidation         = "VALIDATION_ERROR"
	ReasonUnauthorized       = "UNAUTHORIZED"
	ReasonForbidden          = "FORBIDDEN"
	ReasonEmailTaken         = "EMAIL_TAKEN"
	ReasonSessionNotFound    = "SESSION_NOT_FOUND"
	ReasonSessionNotJoinable = "SESSION_NOT_JOINABLE"
	ReasonSessionFull        = "SESSION_FULL"
	ReasonStateConflict      = "STATE_CONFLICT"
	ReasonNoMoreQuestions    = "NO_MORE_QUESTIONS"
	ReasonNotCurrentQuestion = "NOT_CURRENT_QUESTION"
	ReasonNotAParticipant    = "NOT_A_PARTICIPANT"
	ReasonAlreadyAnswered    = "ALREADY_ANSWERED"
	ReasonInternal           = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"-"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	err     error
}

func New(code Code, reason string, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Reason:  reason,
		Message: reason,
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Reason, e.Message)
	if e.err != nil {
		s += fmt.Sprintf(": %v", e.err)
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}
	return http.StatusInternalServerError
}

// Convert wraps any error into an *Error, defaulting to an internal error.
func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}
	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, ReasonInternal, WithCause(err))
}

// Is reports whether err carries the given reason code.
func Is(err error, reason string) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == reason
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) { f(e) }

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
