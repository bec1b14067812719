// Package mcp exposes the pharmacogenomic pipeline as MCP tools.
// The lite server needs no external databases: it keeps explanations in an
// in-memory cache and clinician feedback in SQLite.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/cache"
	litecfg "github.com/pharmaguard-server/internal/config"
	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/feedback"
	"github.com/pharmaguard-server/internal/knowledgebase"
	"github.com/pharmaguard-server/internal/service"
	"github.com/pharmaguard-server/pkg/external"
)

const (
	serverName    = "pharmaguard-mcp-lite"
	serverVersion = "v1.0.0"
)

// LiteServer is a lightweight MCP server that requires no external databases.
type LiteServer struct {
	config        *litecfg.LiteConfig
	mcpServer     *mcp.Server
	analysis      *service.AnalysisService
	feedbackStore feedback.Store
	cache         *cache.MemoryCache
	logger        *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: NewLogger(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	kb, err := knowledgebase.Open(cfg.KnowledgeBasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	server.cache = memCache

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
	}

	explainer := service.NewCachingExplainer(server.newExplainer(), memCache, nil, cfg.CacheTTL, server.logger)
	server.analysis = service.NewAnalysisService(server.logger, kb, service.WithExplainer(explainer))

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"data_dir":        cfg.DataDir,
		"supported_drugs": len(kb.SupportedDrugs()),
		"knowledge_base":  kb.Source(),
	}).Info("Lite server initialized successfully")

	return server, nil
}

// newExplainer picks the LLM explainer when an API key is configured.
func (s *LiteServer) newExplainer() domain.Explainer {
	if s.config.LLMAPIKey == "" {
		return service.NewRuleBasedExplainer()
	}
	client := external.NewLLMClient(external.LLMConfig{
		BaseURL: s.config.LLMBaseURL,
		APIKey:  s.config.LLMAPIKey,
		Model:   s.config.LLMModel,
	}, s.logger)
	s.logger.WithField("model", client.Model()).Info("Using LLM explanations")
	return service.NewLLMExplainer(client, s.logger)
}

// NewLogger builds the process logger from level and format strings.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Start runs the MCP server on the configured transport until ctx is done.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport", s.config.Transport).Info("Starting PharmaGuard MCP Server (Lite)")

	if s.config.Transport == "http" {
		return s.serveHTTP(ctx)
	}

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *LiteServer) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Close releases the feedback store.
func (s *LiteServer) Close() error {
	if s.feedbackStore != nil {
		if err := s.feedbackStore.Close(); err != nil {
			return fmt.Errorf("failed to close feedback store: %w", err)
		}
	}
	s.logger.Info("Lite server stopped")
	return nil
}

// Stats reports explanation cache usage.
func (s *LiteServer) Stats() cache.Stats {
	return s.cache.Stats()
}
