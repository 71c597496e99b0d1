package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError represents an error response returned by the hosted backend.
// The auth API and the table API use slightly different shapes; all known
// fields are captured so a usable message can always be produced.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Message     string `json:"msg"`
	Description string `json:"error_description"`
	Details     string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %d %s", e.StatusCode, e.UserMessage())
}

// UserMessage returns the most specific message available, suitable for
// surfacing as a transient notification.
func (e *APIError) UserMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Description != "":
		return e.Description
	case e.Details != "":
		return e.Details
	case e.Code != "":
		return e.Code
	default:
		return http.StatusText(e.StatusCode)
	}
}

// IsNotFound reports whether err is a backend 404 / 406 (PostgREST returns
// 406 for a .single() select that matched no rows).
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound ||
			apiErr.StatusCode == http.StatusNotAcceptable
	}
	return false
}

// IsAuthFailure reports whether err indicates rejected credentials or an
// invalid/expired token rather than an outage.
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusBadRequest ||
			apiErr.StatusCode == http.StatusUnauthorized ||
			apiErr.StatusCode == http.StatusUnprocessableEntity ||
			apiErr.StatusCode == http.StatusForbidden
	}
	return false
}
