// Package errors classifies failures by kind so HTTP handlers can pick a
// status code and a message that is safe to show callers.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

// Kind is the class of a failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalid
	KindUnauthorized
	KindUnavailable
)

var kindStatus = [...]int{
	KindInternal:     http.StatusInternalServerError,
	KindNotFound:     http.StatusNotFound,
	KindForbidden:    http.StatusForbidden,
	KindInvalid:      http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindUnavailable:  http.StatusServiceUnavailable,
}

var kindMessage = [...]string{
	KindInternal:     "internal error",
	KindNotFound:     "not found",
	KindForbidden:    "forbidden",
	KindInvalid:      "invalid input",
	KindUnauthorized: "unauthorized",
	KindUnavailable:  "service unavailable",
}

// Status is the HTTP status code for k.
func (k Kind) Status() int {
	if int(k) >= len(kindStatus) {
		return http.StatusInternalServerError
	}
	return kindStatus[k]
}

func (k Kind) String() string {
	if int(k) >= len(kindMessage) {
		return kindMessage[KindInternal]
	}
	return kindMessage[k]
}

// AppError carries a kind, a caller-facing message and an optional cause.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError of the same kind, so errors.Is(err,
// &AppError{Kind: KindNotFound}) works without comparing messages.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap attaches kind and message to cause.
func Wrap(cause error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: cause}
}

// NotFound reports that the prompt with the given id does not exist or is
// not visible to the caller.
func NotFound(id string) *AppError {
	return New(KindNotFound, fmt.Sprintf("prompt %s not found", id))
}

// Forbidden reports that the caller does not own the prompt.
func Forbidden(id string) *AppError {
	return New(KindForbidden, fmt.Sprintf("prompt %s belongs to another user", id))
}

func Invalid(message string) *AppError {
	return New(KindInvalid, message)
}

func Unauthorized(message string) *AppError {
	return New(KindUnauthorized, message)
}

// KindOf classifies err. Timeouts and open circuit breakers count as
// unavailable; anything unrecognised is internal.
func KindOf(err error) Kind {
	var appErr *AppError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &appErr):
		return appErr.Kind
	case errors.Is(err, resilience.ErrTimeout),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	default:
		return KindInternal
	}
}

func HTTPStatusCode(err error) int {
	return KindOf(err).Status()
}

// PublicMessage returns the message that may be shown to API callers: the
// AppError message when one is present, a generic text for its kind
// otherwise.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return KindOf(err).String()
}
