package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusError_Unwrap(t *testing.T) {
	tests := []struct {
		code  int
		want  error
		label string
	}{
		{http.StatusBadRequest, ErrValidation, "validation"},
		{http.StatusUnprocessableEntity, ErrValidation, "validation"},
		{http.StatusUnauthorized, ErrUnauthorized, "unauthorized"},
		{http.StatusForbidden, ErrUnauthorized, "unauthorized"},
		{http.StatusNotFound, ErrNotFound, "not_found"},
		{http.StatusGatewayTimeout, ErrTimeout, "timeout"},
		{http.StatusInternalServerError, ErrServer, "server"},
		{http.StatusBadGateway, ErrServer, "server"},
	}
	for _, tt := range tests {
		err := fmt.Errorf("create transaction: %w", &StatusError{Code: tt.code, Body: "nope"})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v", tt.code, tt.want)
		}
		if got := Classify(err); got != tt.label {
			t.Errorf("status %d: Classify = %q, want %q", tt.code, got, tt.label)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&StatusError{Code: 418}, 418},
		{fmt.Errorf("wrap: %w", ErrNotFound), http.StatusNotFound},
		{ErrValidation, http.StatusUnprocessableEntity},
		{ErrCircuitOpen, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestTransport(t *testing.T) {
	if err := Transport(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := Transport(context.DeadlineExceeded); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if err := Transport(errors.New("connection refused")); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestIsClientError(t *testing.T) {
	if !IsClientError(&StatusError{Code: http.StatusNotFound}) {
		t.Error("404 should be a client error")
	}
	if IsClientError(&StatusError{Code: http.StatusInternalServerError}) {
		t.Error("500 should not be a client error")
	}
	if IsClientError(ErrNetwork) {
		t.Error("network failures should not be client errors")
	}
}
