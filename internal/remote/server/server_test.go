package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finsync/internal/core"
	"finsync/internal/middleware/ratelimit"
	"finsync/internal/middleware/trace"
	"finsync/internal/remote"
	"finsync/internal/remote/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Error
}

func TestServer_CreateAssignsRemoteID(t *testing.T) {
	backend := memory.New()
	srv := New(Options{})
	Mount[core.Category](srv, "/categories", backend.Categories)

	rec := do(t, srv, http.MethodPost, "/categories",
		`{"id":-5,"owner_id":2,"pending":true,"name":"Food","type":"expense","icon":"cart","color":"#fff"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created core.Category
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Positive(t, created.ID)
	assert.False(t, created.Pending)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(trace.HeaderRequestID))
}

func TestServer_Errors(t *testing.T) {
	backend := memory.New()
	srv := New(Options{})
	Mount[core.Category](srv, "/categories", backend.Categories)

	rec := do(t, srv, http.MethodGet, "/categories", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "owner")

	rec = do(t, srv, http.MethodPost, "/categories", `{not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodGet, "/categories/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", errorMessage(t, rec))
}

func TestServer_HidesServerErrorDetails(t *testing.T) {
	backend := memory.New()
	backend.SetHook(func(ctx context.Context, resource, op string) error {
		return errors.New("pq: connection reset with password=hunter2")
	})
	srv := New(Options{})
	Mount[core.Category](srv, "/categories", backend.Categories)

	rec := do(t, srv, http.MethodGet, "/categories?owner=1", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), errorMessage(t, rec))
}

func TestServer_TokenRequiredOnAPIOnly(t *testing.T) {
	backend := memory.New()
	srv := New(Options{Token: "t"})
	Mount[core.Category](srv, "/categories", backend.Categories)

	rec := do(t, srv, http.MethodGet, "/categories?owner=1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/categories?owner=1", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "finsync_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	healthy := true
	srv := New(Options{
		Gatherer: reg,
		Health: func(ctx context.Context) error {
			if !healthy {
				return remote.ErrNetwork
			}
			return nil
		},
	})

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "finsync_test_total 1")

	healthy = false
	rec = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_RateLimited(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1, Burst: 1, CleanupInterval: time.Hour})
	defer limiter.Stop()

	srv := New(Options{Limiter: limiter})
	srv.MountProfiles(memory.New())

	do(t, srv, http.MethodGet, "/users/1", "")
	rec := do(t, srv, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", errorMessage(t, rec))
}

func TestDecode_KeepsCause(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/categories", strings.NewReader(`{not json`))
	var c core.Category
	err := decode(req, &c)
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrValidation)
	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)

	_, err = ownerParam(httptest.NewRequest(http.MethodGet, "/categories", nil))
	assert.ErrorIs(t, err, remote.ErrValidation)
	assert.ErrorIs(t, err, errMissingOwner)
}
