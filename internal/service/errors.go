package service

import (
	"errors"
	"net/http"

	"github.com/adobe/aio-tvm/internal/core"
)

// ServerErrorMessage is the only error text a caller ever sees for a 500.
const ServerErrorMessage = "server error"

// StatusCode maps a pipeline error to the response status. nil is 200.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *core.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Class {
	case core.ClassStructural:
		return http.StatusBadRequest
	case core.ClassAuthentication:
		if e.Code == http.StatusUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case core.ClassAuthorization:
		return http.StatusForbidden
	case core.ClassThrottle:
		return http.StatusTooManyRequests
	case core.ClassUpstream:
		switch e.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return http.StatusForbidden
		}
	}
	return http.StatusInternalServerError
}

// ErrorMessage returns the text sent to the caller for err.
func ErrorMessage(err error) string {
	if StatusCode(err) >= http.StatusInternalServerError {
		return ServerErrorMessage
	}
	return err.Error()
}
