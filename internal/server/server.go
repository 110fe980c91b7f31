// Package server exposes the reporting pipeline over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/endharassment/cybertip-reporter/internal/model"
	"github.com/endharassment/cybertip-reporter/internal/submission"
	"github.com/go-chi/chi/v5"
)

// Config holds server configuration.
type Config struct {
	// APIToken is the bearer token callers must present. Empty disables auth.
	APIToken  string
	RateLimit RateLimiterConfig
}

// Submitter files one report.
type Submitter interface {
	Submit(ctx context.Context, req *model.ReportRequest, isTest bool) submission.Result
}

// ReportReader reads the audit trail of filed reports.
type ReportReader interface {
	GetReport(ctx context.Context, orgID, reportID string) (*model.StoredReport, error)
	ListReports(ctx context.Context, orgID, reviewerID string, limit int) ([]*model.StoredReport, error)
}

// Server is the HTTP front end of the reporter.
type Server struct {
	config    Config
	submitter Submitter
	reports   ReportReader
	rl        *RateLimiter
	router    chi.Router
	logger    *slog.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config, sub Submitter, reports ReportReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit.SubmissionsPerMinute <= 0 {
		cfg.RateLimit = DefaultRateLimiterConfig()
	}
	s := &Server{
		config:    cfg,
		submitter: sub,
		reports:   reports,
		rl:        NewRateLimiter(cfg.RateLimit),
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))

	r.Get("/healthz", s.HandleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RequireToken(s.config.APIToken))

		r.With(OrgRateLimitMiddleware(s.rl)).Post("/orgs/{orgID}/reports", s.HandleSubmitReport)
		r.Get("/orgs/{orgID}/reports", s.HandleListReports)
		r.Get("/orgs/{orgID}/reports/{reportID}", s.HandleGetReport)
	})

	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Stop cleans up server resources.
func (s *Server) Stop() {
	s.rl.Stop()
}

// HandleHealth reports liveness.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
