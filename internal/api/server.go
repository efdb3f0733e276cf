package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/JakeFAU/graded-card-estimator/internal/config"
	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
	"github.com/JakeFAU/graded-card-estimator/internal/gamestop"
	"github.com/JakeFAU/graded-card-estimator/internal/telemetry"
)

// EstimateService is the part of estimate.Service the handlers need.
type EstimateService interface {
	Estimate(ctx context.Context, rawCert string) (estimate.Estimate, error)
	History(ctx context.Context, rawCert string, limit int) ([]estimate.LookupRecord, error)
	Ready(ctx context.Context) error
}

// SiteChecker probes the upstream estimate page.
type SiteChecker interface {
	Check(ctx context.Context) (gamestop.ProbeReport, error)
}

// Server wires HTTP handlers to the estimate service.
type Server struct {
	router  chi.Router
	service EstimateService
	checker SiteChecker
	logger  *zap.Logger
}

// HistoryResponse is the body of /gamestop/estimate/history.
type HistoryResponse struct {
	PSACert string                  `json:"psa_cert"`
	Lookups []estimate.LookupRecord `json:"lookups"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service EstimateService, checker SiteChecker, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		checker: checker,
		logger:  logger,
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(telemetry.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/health", s.health)
	r.Get("/healthz", s.health)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/gamestop", func(r chi.Router) {
			r.Get("/estimate", s.getEstimate)
			r.Get("/estimate/history", s.getHistory)
			r.Get("/sitecheck", s.siteCheck)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getEstimate(w http.ResponseWriter, r *http.Request) {
	cert, ok := requireCert(w, r)
	if !ok {
		return
	}
	est, err := s.service.Estimate(r.Context(), cert)
	if err != nil {
		s.writeLookupError(w, r, cert, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	cert, ok := requireCert(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer.")
			return
		}
		limit = n
	}
	lookups, err := s.service.History(r.Context(), cert, limit)
	if err != nil {
		s.writeLookupError(w, r, cert, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{PSACert: strings.TrimSpace(cert), Lookups: lookups})
}

func (s *Server) siteCheck(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeError(w, http.StatusServiceUnavailable, "site check is not configured")
		return
	}
	report, err := s.checker.Check(r.Context())
	if err != nil {
		s.logger.Warn("site check failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Site check failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, cert string, err error) {
	status, detail := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", RequestID(r.Context())),
		zap.String("psa_cert", cert),
		zap.String("outcome", string(estimate.OutcomeOf(err))),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("estimate request failed", fields...)
	} else {
		s.logger.Info("estimate request rejected", fields...)
	}
	writeError(w, status, detail)
}

// statusFor maps a service error to its HTTP status and client-facing detail.
func statusFor(err error) (int, string) {
	e := estimate.AsError(err)
	switch {
	case errors.Is(e, estimate.ErrInvalidCert):
		return http.StatusBadRequest, e.Detail
	case errors.Is(e, estimate.ErrNotFound):
		return http.StatusNotFound, e.Detail
	case errors.Is(e, estimate.ErrSiteChanged), errors.Is(e, estimate.ErrTimeout):
		return http.StatusBadGateway, e.Detail
	default:
		return http.StatusInternalServerError, e.Detail
	}
}

func requireCert(w http.ResponseWriter, r *http.Request) (string, bool) {
	values, present := r.URL.Query()["psa_cert"]
	if !present || len(values) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "psa_cert query parameter is required.")
		return "", false
	}
	return values[0], true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
