// Package errs holds the error taxonomy shared by the render pipeline.
package errs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorType int

const (
	ErrInvalidInput ErrorType = iota
	ErrFileNotFound
	ErrFileWrite
	ErrParse
	ErrNetwork
	ErrTimeout
	ErrEngine
	ErrConfig
	ErrPersistence
	ErrUnexpected
)

type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(errorType ErrorType, format string, args ...any) *Error {
	return New(errorType, fmt.Sprintf(format, args...))
}

func NewWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrInvalidInput:
		return "InvalidInput"
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileWrite:
		return "FileWrite"
	case ErrParse:
		return "Parse"
	case ErrNetwork:
		return "Network"
	case ErrTimeout:
		return "Timeout"
	case ErrEngine:
		return "Engine"
	case ErrConfig:
		return "Config"
	case ErrPersistence:
		return "Persistence"
	default:
		return "Unexpected"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// TypeOf reports the taxonomy bucket of err. Plain errors are ErrUnexpected.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrUnexpected
}

func Wrap(err error, errorType ErrorType, message string) *Error {
	return NewWithCause(errorType, message, err)
}

// SafeExecute runs fn and converts a panic into an ErrUnexpected error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = New(ErrUnexpected, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
