package location

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies platform geolocation failures.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodePermissionDenied
	CodePositionUnavailable
	CodeTimeout
	CodeUnsupported
)

var errorMessages = map[ErrorCode]string{
	CodeUnknown:             "unknown error while getting location",
	CodePermissionDenied:    "location permission denied",
	CodePositionUnavailable: "location information is unavailable",
	CodeTimeout:             "location request timed out",
	CodeUnsupported:         "geolocation is not supported on this device",
}

// LocationError is the only error type returned by location reads.
type LocationError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LocationError) Unwrap() error { return e.Err }

// NewLocationError builds an error carrying the fixed message for code.
func NewLocationError(code ErrorCode, err error) *LocationError {
	return &LocationError{Code: code, Message: errorMessages[code], Err: err}
}

// ErrPermissionDenied is returned by providers that cannot access their device.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNoFix is returned when the source is reachable but has no position yet.
var ErrNoFix = errors.New("no position fix")

// classify maps a provider error onto a LocationError.
func classify(err error) *LocationError {
	var le *LocationError
	switch {
	case errors.As(err, &le):
		return le
	case errors.Is(err, context.DeadlineExceeded):
		return NewLocationError(CodeTimeout, err)
	case errors.Is(err, ErrPermissionDenied):
		return NewLocationError(CodePermissionDenied, err)
	case errors.Is(err, ErrNoFix):
		return NewLocationError(CodePositionUnavailable, err)
	default:
		return NewLocationError(CodeUnknown, err)
	}
}

// IsPermissionDenied reports whether err is a permission failure.
func IsPermissionDenied(err error) bool {
	var le *LocationError
	return errors.As(err, &le) && le.Code == CodePermissionDenied
}
