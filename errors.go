package oasql

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bjaus/oasql/pool"
	"github.com/bjaus/oasql/query"
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ProblemDetail is an RFC 9457 problem details response.
//
//nolint:errname // RFC 9457 standard name
type ProblemDetail struct {
	Type     string            `json:"type,omitempty"`
	Title    string            `json:"title,omitempty"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// Error returns the detail message (or title if detail is empty).
func (p *ProblemDetail) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// StatusCode returns the HTTP status code.
func (p *ProblemDetail) StatusCode() int { return p.Status }

// ValidationError describes a single invalid request field.
type ValidationError struct {
	Field  string `json:"field"`
	In     string `json:"in"`
	Reason string `json:"reason"`
}

func (e ValidationError) String() string {
	return e.In + " " + e.Field + ": " + e.Reason
}

// HTTPError is an error with an HTTP status code.
type HTTPError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error returns the error message.
func (e *HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when no operation matches the request path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string   { return "no operation matches " + e.Path }
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

// MethodNotAllowedError is returned when the path matches operations but
// none of them accepts the request method.
type MethodNotAllowedError struct {
	Method string
	Allow  []string
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("method %s not allowed, allowed: %s", e.Method, strings.Join(e.Allow, ", "))
}

func (e *MethodNotAllowedError) StatusCode() int { return http.StatusMethodNotAllowed }

// ErrorStatus extracts the HTTP status code from an error. Errors from the
// query and pool packages map to their statuses; anything else without a
// StatusCoder is http.StatusInternalServerError.
func ErrorStatus(err error) int {
	var sc StatusCoder
	switch {
	case errors.As(err, &sc):
		return sc.StatusCode()
	case errors.Is(err, query.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrTimeout), errors.Is(err, pool.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
