/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries a business code, a user-facing message, an HTTP status code (used by the
development backend) and an optional underlying cause.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"accompany/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the HTTP status code corresponding to this error.
	Status int

	// cause is the lower-level error that produced this one, if any.
	cause error
}

// Error implements the standard Go error interface.
func (e CustomError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("Error Code %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("Error Code %d: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e CustomError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a CustomError with the same code, so that
// errors.Is(err, errs.NewError(errs.ErrLoadFailed)) matches any load failure.
func (e CustomError) Is(target error) bool {
	switch t := target.(type) {
	case *CustomError:
		return t != nil && t.Code == e.Code
	case CustomError:
		return t.Code == e.Code
	}
	return false
}

// NewError constructs a new *CustomError from a predefined error code.
// The optional details are printf arguments for the message template. If an unknown
// code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			customErr.cause = originalErr
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Wrap builds the CustomError for code and records cause as its underlying error.
func Wrap(code int, cause error) *CustomError {
	customErr := NewError(code)
	customErr.cause = cause
	return customErr
}

// CodeOf returns the business code carried by err, ErrUnknown for foreign errors,
// and 0 for nil.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code
	}
	return ErrUnknown
}

// HasCode reports whether err (or anything it wraps) carries code.
func HasCode(err error, code int) bool {
	return err != nil && errors.Is(err, &CustomError{Code: code})
}

// IsTerminal reports whether err ends the room session: the user must be
// redirected out and nothing is retried automatically.
func IsTerminal(err error) bool {
	switch CodeOf(err) {
	case ErrInvalidRoom, ErrRoomNotFound, ErrNotParticipant:
		return true
	}
	return false
}

// IsBlocking reports whether err prevents the room from rendering at all.
// Every other failure is shown as a non-blocking notice.
func IsBlocking(err error) bool {
	return IsTerminal(err) || CodeOf(err) == ErrLoadFailed
}

// UserMessage returns the text to show the user for err.
func UserMessage(err error) string {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Message
	}
	return errorMap[ErrUnknown].Message
}
