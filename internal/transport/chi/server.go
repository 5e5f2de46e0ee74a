// Package chi exposes the retrieval API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrio/internal/domain"
	"github.com/kailas-cloud/retrio/internal/domain/health"
	"github.com/kailas-cloud/retrio/internal/domain/query"
	searchuc "github.com/kailas-cloud/retrio/internal/usecase/search"
)

// Searcher runs one retrieval request.
type Searcher interface {
	Search(ctx context.Context, q query.Query) (searchuc.Response, error)
}

// Verifier triggers one on-demand probe cycle.
type Verifier interface {
	RunOnce(ctx context.Context)
}

// HealthReader exposes the current backend health records.
type HealthReader interface {
	Snapshot() health.Snapshot
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the HTTP API.
type Server struct {
	search        Searcher
	verifier      Verifier
	health        HealthReader
	backendIDs    []string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. backendIDs lists the configured
// backends so the health listing covers unprobed ones too.
func NewServer(search Searcher, verifier Verifier, healthReader HealthReader, backendIDs []string, logger *zap.Logger) *Server {
	s := &Server{
		search:     search,
		verifier:   verifier,
		health:     healthReader,
		backendIDs: backendIDs,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		allBackendsFailedHandler,
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeInvalidQuery),
		sentinelHandler(domain.ErrNoEligibleBackends, http.StatusBadRequest, codeNoEligibleBackends),
	}
	return s
}

// Register mounts the API routes.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/verify", s.handleVerify)
	r.Get("/v1/backends/health", s.handleBackendHealth)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	q, err := queryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}

	resp, err := s.search.Search(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseToDTO(resp))
}

// handleVerify handles POST /v1/verify: runs one probe cycle synchronously
// and returns the refreshed health records.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.verifier.RunOnce(r.Context())
	s.writeHealth(w)
}

// handleBackendHealth handles GET /v1/backends/health.
func (s *Server) handleBackendHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeHealth(w)
}

func (s *Server) writeHealth(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"backends": healthSnapshotToDTO(s.health.Snapshot(), s.backendIDs),
	})
}

// handleHealthz handles GET /healthz. The process is alive as long as it can
// answer; backend health is reported separately and never fails liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrNoEligibleBackends,
		domain.ErrAllBackendsFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// allBackendsFailedHandler handles ErrAllBackendsFailed with per-backend detail.
func allBackendsFailedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrAllBackendsFailed) {
		return false
	}
	resp := errorResponse{Code: codeAllBackendsFailed, Message: msg}

	var agg *domain.AllBackendsFailedError
	if errors.As(err, &agg) {
		resp.Backends = make([]backendFailure, len(agg.Failures))
		for i, f := range agg.Failures {
			resp.Backends[i] = backendFailure{Backend: f.BackendID, Error: failureMessage(f.Err)}
		}
	}
	writeJSON(w, http.StatusBadGateway, resp)
	return true
}

// failureMessage classifies one backend failure for the client.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, domain.ErrBackendProtocol):
		return domain.ErrBackendProtocol.Error()
	case errors.Is(err, domain.ErrBackendUnavailable):
		return domain.ErrBackendUnavailable.Error()
	default:
		return "failed"
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
