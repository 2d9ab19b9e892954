package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/topoagent/internal/domain"
	"github.com/kailas-cloud/topoagent/internal/logger"
	"github.com/kailas-cloud/topoagent/internal/metrics"
	"github.com/kailas-cloud/topoagent/internal/orchestrator"
	healthuc "github.com/kailas-cloud/topoagent/internal/usecase/health"
)

// maxBodyBytes caps the search request body.
const maxBodyBytes = 1 << 20

// OutcomeHeader reports the typed retrieval outcome of a search response.
const OutcomeHeader = "X-Retrieval-Outcome"

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeStoreUnavailable = "store_unavailable"
	CodeInternalError    = "internal_error"
	CodeToolMissing      = "tool_missing"
	CodeCanceled         = "client_closed_request"
)

// StatusClientClosedRequest is the non-standard status logged when the caller goes away.
const StatusClientClosedRequest = 499

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the JSON body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// TurnRunner runs the tool node for one turn.
type TurnRunner interface {
	Run(ctx context.Context, state domain.State) ([]orchestrator.Result, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the retrieval API.
type Server struct {
	tools    TurnRunner
	tool     string
	health   HealthChecker
	gatherer prometheus.Gatherer
	http     *metrics.HTTP
	logger   *zap.Logger
	prefix   string
	origins  []string
}

// Config wires the server's collaborators.
type Config struct {
	Tools     TurnRunner
	Tool      string // name of the tool whose patch is returned by the search endpoint
	Health    HealthChecker
	Gatherer  prometheus.Gatherer
	Metrics   *metrics.HTTP
	Logger    *zap.Logger
	APIPrefix string
	// CORSAllowOrigins lists browser origins allowed to call the API. "*" allows any origin.
	// Empty disables CORS headers.
	CORSAllowOrigins []string
}

// NewServer creates an HTTP API server.
func NewServer(cfg Config) *Server {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	g := cfg.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{
		tools:    cfg.Tools,
		tool:     cfg.Tool,
		health:   cfg.Health,
		gatherer: g,
		http:     cfg.Metrics,
		logger:   l,
		prefix:   cfg.APIPrefix,
		origins:  cfg.CORSAllowOrigins,
	}
}

// Router builds the chi router. API routes are mounted under Config.APIPrefix.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	if len(s.origins) > 0 {
		r.Use(corsHandler(s.origins))
	}
	r.Use(requestID)
	r.Use(wideEventMiddleware(s.logger))
	if s.http != nil {
		r.Use(s.http.Middleware())
	}

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route(s.prefix, func(r chi.Router) {
		r.Post("/comments/search", s.SearchComments)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}

// corsHandler allows credentials, so a "*" entry echoes the request origin
// instead of sending a literal wildcard.
func corsHandler(origins []string) func(next http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{RequestIDHeader, OutcomeHeader},
		AllowCredentials: true,
		MaxAge:           600,
	}
	if slices.Contains(origins, "*") {
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.Handler(opts)
}

// SearchComments handles POST /comments/search.
func (s *Server) SearchComments(w http.ResponseWriter, r *http.Request) {
	var state domain.State
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	results, err := s.tools.Run(r.Context(), state)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	patch, ok := orchestrator.Find(results, s.tool)
	if !ok {
		logger.FromContext(r.Context()).Error("Tool produced no patch", zap.String("tool", s.tool))
		writeError(w, http.StatusInternalServerError, CodeToolMissing, "tool produced no result")
		return
	}

	w.Header().Set(OutcomeHeader, string(patch.Outcome))
	writeJSON(w, http.StatusOK, patch)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// handleDomainError maps a propagated tool failure onto a status without exposing internals.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	switch {
	case errors.Is(err, domain.ErrStoreAccess):
		log.Warn("Comment store unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeStoreUnavailable, domain.ErrStoreAccess.Error())
	case errors.Is(err, context.Canceled):
		log.Info("Request canceled by client")
		writeError(w, StatusClientClosedRequest, CodeCanceled, "request canceled")
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
