// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/feedback"
	"github.com/pharmaguard-server/internal/middleware"
	"github.com/pharmaguard-server/internal/service"
)

// Version is reported by the welcome and health endpoints.
const Version = "1.0.0"

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	analysis      *service.AnalysisService
	reports       domain.ReportRepository
	feedback      feedback.Store
	checks        map[string]HealthCheck
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	startedAt     time.Time
}

// Option configures optional collaborators of the Server.
type Option func(*Server)

// WithReportRepository enables the report lookup endpoints.
func WithReportRepository(r domain.ReportRepository) Option {
	return func(s *Server) { s.reports = r }
}

// WithFeedbackStore enables the clinician feedback endpoints.
func WithFeedbackStore(store feedback.Store) Option {
	return func(s *Server) { s.feedback = store }
}

// WithHealthCheck adds a named dependency probe to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer creates a new HTTP server instance. The gin mode is left to the
// caller.
func NewServer(configManager domain.ConfigManager, analysis *service.AnalysisService, logger *logrus.Logger, opts ...Option) *Server {
	s := &Server{
		configManager: configManager,
		analysis:      analysis,
		checks:        make(map[string]HealthCheck),
		logger:        logger,
		startedAt:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg := configManager.GetConfig()

	router := gin.New()
	router.MaxMultipartMemory = cfg.Analysis.MaxUploadBytes

	router.Use(gin.CustomRecovery(s.handlePanic))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	if cfg.Server.WriteTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))
	}

	s.router = router
	s.setupRoutes()

	return s
}

// Router returns the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithFields(logrus.Fields{
		"addr": addr,
		"tls":  cfg.TLSEnabled,
	}).Info("HTTP server listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleWelcome)
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/drugs", s.handleListDrugs)
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/analyze/sample", s.handleAnalyzeSample)
		v1.POST("/phenotype", s.handlePhenotype)

		v1.GET("/reports/:id", s.handleGetReport)
		v1.GET("/patients/:patient_id/reports", s.handleListPatientReports)

		v1.POST("/feedback", s.handleSubmitFeedback)
		v1.GET("/feedback", s.handleListFeedback)
		v1.GET("/feedback/export", s.handleExportFeedback)
	}
}

func (s *Server) handlePanic(c *gin.Context, recovered any) {
	s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"panic":          fmt.Sprint(recovered),
	}).Error("Recovered from handler panic")
	respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, "Internal server error", "")
}
