package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrNetwork      = errors.New("remote unreachable")
	ErrTimeout      = errors.New("remote timeout")
	ErrValidation   = errors.New("remote rejected record")
	ErrUnauthorized = errors.New("remote unauthorized")
	ErrNotFound     = errors.New("remote record not found")
	ErrServer       = errors.New("remote server error")
	ErrCircuitOpen  = errors.New("remote circuit open")
)

// StatusError is a non-2xx answer from the remote. It unwraps to the
// sentinel matching its status class.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote status %d", e.Code)
	}
	return fmt.Sprintf("remote status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusBadRequest || e.Code == http.StatusUnprocessableEntity || e.Code == http.StatusConflict:
		return ErrValidation
	case e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden:
		return ErrUnauthorized
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusRequestTimeout || e.Code == http.StatusGatewayTimeout:
		return ErrTimeout
	case e.Code >= 500:
		return ErrServer
	default:
		return nil
	}
}

// StatusFor is the inverse of StatusError: the HTTP status a server should
// answer with for err.
func StatusFor(err error) int {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Transport wraps a failure that happened before any HTTP status was
// received into ErrTimeout or ErrNetwork.
func Transport(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// Classify returns a short label for logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// IsClientError reports failures caused by the request itself. They do not
// say anything about the remote's health.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound)
}
