// Package server exposes remote gateways over the REST surface the HTTP
// client speaks. It is the reference remote service used in development and
// in the client tests.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"finsync/internal/core"
	"finsync/internal/middleware/ratelimit"
	"finsync/internal/middleware/security"
	"finsync/internal/middleware/trace"
	"finsync/internal/remote"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures a Server. Zero values disable the matching feature.
type Options struct {
	// Token, when set, is required as a bearer token on every API route.
	Token   string
	Logger  *slog.Logger
	Limiter *ratelimit.Limiter
	// Gatherer serves /metrics.
	Gatherer prometheus.Gatherer
	// Health reports backend readiness on /healthz.
	Health func(ctx context.Context) error
}

type Server struct {
	router *mux.Router
	api    *mux.Router
	logger *slog.Logger
	opts   Options
}

// New builds a server with the health and metrics routes. Resources are added
// with Mount, MountTotals and MountProfiles.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	router.Use(trace.NewMiddleware(security.ClientIP).Handler)
	router.Use(security.Headers(security.DefaultHeadersConfig()))
	if opts.Limiter != nil {
		router.Use(opts.Limiter.Middleware(security.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		}))
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})

	s := &Server{router: router, logger: logger, opts: opts}

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if opts.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.api = router.PathPrefix("/").Subrouter()
	if opts.Token != "" {
		s.api.Use(s.requireToken)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Mount serves gw under path (for example "/transactions").
func Mount[T core.Record[T]](s *Server, path string, gw remote.Gateway[T]) {
	h := &resourceHandler[T]{gw: gw, server: s}
	s.api.HandleFunc(path, h.list).Methods(http.MethodGet)
	s.api.HandleFunc(path, h.create).Methods(http.MethodPost)
	s.api.HandleFunc(path+"/{id:[0-9]+}", h.get).Methods(http.MethodGet)
	s.api.HandleFunc(path+"/{id:[0-9]+}", h.update).Methods(http.MethodPut)
	s.api.HandleFunc(path+"/{id:[0-9]+}", h.delete).Methods(http.MethodDelete)
}

// MountTotals serves the monthly and yearly transaction aggregates.
func (s *Server) MountTotals(totals remote.TransactionTotals) {
	s.api.HandleFunc("/transactions/totals/{granularity:monthly|yearly}", func(w http.ResponseWriter, r *http.Request) {
		owner, err := ownerParam(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var out []core.PeriodTotal
		if mux.Vars(r)["granularity"] == "monthly" {
			out, err = totals.MonthlyTotals(r.Context(), owner)
		} else {
			out, err = totals.YearlyTotals(r.Context(), owner)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}).Methods(http.MethodGet)
}

// MountProfiles serves GET and PUT /users/{id}.
func (s *Server) MountProfiles(profiles remote.ProfileGateway) {
	s.api.HandleFunc("/users/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		p, err := profiles.GetProfile(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}).Methods(http.MethodGet)

	s.api.HandleFunc("/users/{id:[0-9]+}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		var p core.Profile
		if err := decode(r, &p); err != nil {
			s.writeError(w, r, err)
			return
		}
		updated, err := profiles.UpdateProfile(r.Context(), id, p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}).Methods(http.MethodPut)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	want := []byte("Bearer " + s.opts.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			s.writeError(w, r, remote.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type resourceHandler[T core.Record[T]] struct {
	gw     remote.Gateway[T]
	server *Server
}

func (h *resourceHandler[T]) list(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerParam(r)
	if err != nil {
		h.server.writeError(w, r, err)
		return
	}
	records, err := h.gw.ListByOwner(r.Context(), owner)
	if err != nil {
		h.server.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []T{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *resourceHandler[T]) get(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	record, err := h.gw.Get(r.Context(), id)
	if err != nil {
		h.server.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *resourceHandler[T]) create(w http.ResponseWriter, r *http.Request) {
	var record T
	if err := decode(r, &record); err != nil {
		h.server.writeError(w, r, err)
		return
	}
	// The server assigns identifiers; a client placeholder is never stored.
	meta := record.Metadata()
	meta.ID = 0
	meta.Pending = false

	created, err := h.gw.Create(r.Context(), record.WithMetadata(meta))
	if err != nil {
		h.server.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *resourceHandler[T]) update(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	var record T
	if err := decode(r, &record); err != nil {
		h.server.writeError(w, r, err)
		return
	}
	updated, err := h.gw.Update(r.Context(), id, record)
	if err != nil {
		h.server.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *resourceHandler[T]) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := h.gw.Delete(r.Context(), id); err != nil {
		h.server.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := remote.StatusFor(err)
	msg := err.Error()
	if status >= 500 {
		s.logger.ErrorContext(r.Context(), "Request failed",
			"request_id", trace.GetRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 1 << 20

func decode(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("%w: unsupported content type %q", remote.ErrValidation, ct)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", remote.ErrValidation, err)
	}
	return nil
}

var errMissingOwner = errors.New("owner query parameter is required")

func ownerParam(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("owner"))
	if raw == "" {
		return 0, fmt.Errorf("%w: %w", remote.ErrValidation, errMissingOwner)
	}
	owner, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || owner <= 0 {
		return 0, fmt.Errorf("%w: invalid owner %q", remote.ErrValidation, raw)
	}
	return owner, nil
}
