package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/api"
	"github.com/pharmaguard-server/internal/cache"
	"github.com/pharmaguard-server/internal/config"
	"github.com/pharmaguard-server/internal/database"
	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/feedback"
	"github.com/pharmaguard-server/internal/knowledgebase"
	"github.com/pharmaguard-server/internal/repository"
	"github.com/pharmaguard-server/internal/scheduler"
	"github.com/pharmaguard-server/internal/service"
	"github.com/pharmaguard-server/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	if configManager.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting PharmaGuard server")

	kb, err := knowledgebase.Open(cfg.KnowledgeBase.Path)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}

	var serverOpts []api.Option
	var analysisOpts []service.AnalysisOption

	memCache, err := cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.DefaultTTL)
	if err != nil {
		return fmt.Errorf("failed to create memory cache: %w", err)
	}

	var shared service.ExplanationStore
	if cfg.Cache.RedisURL != "" {
		redisClient, err := external.NewCacheClient(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		shared = redisClient
		serverOpts = append(serverOpts, api.WithHealthCheck("redis", redisClient.Health))
	}

	explainer := service.NewCachingExplainer(newExplainer(cfg.Explainer, logger), memCache, shared, cfg.Cache.DefaultTTL, logger)
	analysisOpts = append(analysisOpts, service.WithExplainer(explainer))

	if cfg.Database.Enabled {
		db, err := database.NewConnection(ctx, database.ConfigFromDomain(&cfg.Database), logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		serverOpts = append(serverOpts, api.WithHealthCheck("database", db.Health))

		if cfg.Database.AutoMigrate {
			if err := migrate(ctx, configManager.GetDatabaseConnectionString(), cfg.Database.MigrationsPath, logger); err != nil {
				return err
			}
		}

		reports := repository.NewReportRepository(db.Pool, logger)
		serverOpts = append(serverOpts, api.WithReportRepository(reports))
		if cfg.Analysis.PersistReports {
			analysisOpts = append(analysisOpts, service.WithReportRepository(reports))
		}

		if cfg.Retention.Enabled {
			retention := scheduler.NewRetentionScheduler(reports, cfg.Retention, logger)
			if err := retention.Start(); err != nil {
				return fmt.Errorf("failed to start retention scheduler: %w", err)
			}
			defer retention.Stop()
		}
	}

	store, err := openFeedbackStore(cfg, configManager.GetDatabaseConnectionString())
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		serverOpts = append(serverOpts, api.WithFeedbackStore(store))
	}

	analysis := service.NewAnalysisService(logger, kb, analysisOpts...)
	server := api.NewServer(configManager, analysis, logger, serverOpts...)

	return server.Start(ctx)
}

func migrate(ctx context.Context, databaseURL, migrationsPath string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, migrationsPath, logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func openFeedbackStore(cfg *domain.Config, databaseURL string) (feedback.Store, error) {
	switch cfg.Feedback.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.Feedback.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create feedback directory: %w", err)
			}
		}
		store, err := feedback.NewSQLiteStore(cfg.Feedback.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open feedback store: %w", err)
		}
		return store, nil
	case "postgres":
		dsn := cfg.Feedback.PostgresDSN
		if dsn == "" {
			dsn = databaseURL
		}
		store, err := feedback.NewPostgresStoreFromURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open feedback store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

func newExplainer(cfg domain.ExplainerConfig, logger *logrus.Logger) domain.Explainer {
	if cfg.Provider != "openai" || cfg.APIKey == "" {
		return service.NewRuleBasedExplainer()
	}
	client := external.NewLLMClient(external.LLMConfigFromDomain(cfg), logger)
	logger.WithField("model", client.Model()).Info("Using LLM explanations")
	return service.NewLLMExplainer(client, logger)
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch cfg.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.WithError(err).Warn("Failed to open log file, using stdout")
			break
		}
		logger.SetOutput(file)
	}
	return logger
}
