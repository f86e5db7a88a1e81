package core

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure of the request pipeline.
type ErrorClass int

const (
	// ClassServer is an unclassified failure. It is the zero value so that
	// errors without a class never leak as a user error.
	ClassServer ErrorClass = iota
	ClassStructural
	ClassAuthentication
	ClassAuthorization
	ClassThrottle
	ClassUpstream
)

func (c ErrorClass) String() string {
	switch c {
	case ClassStructural:
		return "structural"
	case ClassAuthentication:
		return "authentication"
	case ClassAuthorization:
		return "authorization"
	case ClassThrottle:
		return "throttle"
	case ClassUpstream:
		return "upstream"
	default:
		return "server"
	}
}

var (
	// ErrAlreadyExists is returned by provider adapters when a resource
	// creation raced with another caller.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrNotFound is returned by provider adapters when a resource does not exist.
	ErrNotFound = errors.New("resource not found")
)

// Error is the tagged error type produced by every pipeline stage.
type Error struct {
	Class ErrorClass

	// Code is the upstream status code for ClassUpstream, or the requested
	// status (401 or 403) for ClassAuthentication. Zero if unknown.
	Code int

	// Message is the user facing message.
	Message string

	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(class ErrorClass, code int, err error, format string, args ...any) *Error {
	return &Error{
		Class:   class,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

func StructuralError(format string, args ...any) *Error {
	return newError(ClassStructural, 0, nil, format, args...)
}

// MissingCredentialError is an authentication failure because no credential was presented.
func MissingCredentialError(format string, args ...any) *Error {
	return newError(ClassAuthentication, 401, nil, format, args...)
}

// InvalidCredentialError is an authentication failure because the credential is garbled.
func InvalidCredentialError(format string, args ...any) *Error {
	return newError(ClassAuthentication, 403, nil, format, args...)
}

func AuthorizationError(format string, args ...any) *Error {
	return newError(ClassAuthorization, 0, nil, format, args...)
}

func ThrottleError(format string, args ...any) *Error {
	return newError(ClassThrottle, 0, nil, format, args...)
}

// UpstreamError wraps a failure of an external collaborator. code is the
// status code reported by the upstream, or 0 if none was available.
func UpstreamError(code int, err error, format string, args ...any) *Error {
	return newError(ClassUpstream, code, err, format, args...)
}

func ServerError(err error, format string, args ...any) *Error {
	return newError(ClassServer, 0, err, format, args...)
}

// UpstreamCode returns the upstream status code attached to err, if any.
func UpstreamCode(err error) (int, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Class != ClassUpstream || e.Code == 0 {
		return 0, false
	}
	return e.Code, true
}

// IsNotFound reports whether err is a not found condition, either the
// sentinel or an upstream 404.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	code, ok := UpstreamCode(err)
	return ok && code == 404
}
