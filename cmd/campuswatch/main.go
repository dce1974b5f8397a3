package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campuswatch/internal/ai"
	"campuswatch/internal/classifier"
	"campuswatch/internal/config"
	"campuswatch/internal/constants"
	"campuswatch/internal/database"
	"campuswatch/internal/media"
	"campuswatch/internal/models"
	"campuswatch/internal/ratelimit"
	"campuswatch/internal/retry"
	"campuswatch/internal/service"
	"campuswatch/internal/tracing"
	"campuswatch/pkg/whatsapp"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("CampusWatch %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting CampusWatch")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.WithField("config", config.Describe(cfg)).Info("Configuration loaded")

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	waClient := whatsapp.NewClient(
		cfg.WhatsApp.APIBaseURL,
		cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.AccessToken,
		time.Duration(cfg.WhatsApp.TimeoutSec)*time.Second,
	)

	fetcher, err := media.NewFetcher(waClient, cfg.Media.CacheDir, cfg.Media.MaxSizeBytes, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media fetcher: %w", err)
	}

	selector := ai.NewSelector(logger, buildProviderChain(cfg, logger))
	activityClassifier := classifier.New(selector, logger)

	notifier := service.NewNotifier(waClient, logger)
	router := service.NewCommandRouter(db, notifier, waClient, activityClassifier, logger)
	ingestion := service.NewIngestionService(db, waClient, fetcher, activityClassifier, router, notifier, cfg.Webhook.VerifyToken, logger)

	server := NewServer(cfg, ingestion, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// buildProviderChain assembles the classification failover chain in the
// configured priority order. Vendors without an API key are skipped; the
// mock provider needs no key and closes the chain so classification always
// has a last resort.
func buildProviderChain(cfg *models.Config, logger *logrus.Logger) []ai.SelectorOption {
	var opts []ai.SelectorOption
	mockIncluded := false

	for _, name := range cfg.AI.Priority {
		switch name {
		case "openai":
			if cfg.AI.OpenAI.APIKey == "" {
				logger.Info("OpenAI API key not set, skipping provider")
				continue
			}
			opts = append(opts, ai.SelectorOption{
				Provider: ai.NewOpenAIProvider(cfg.AI.OpenAI),
				Config:   cfg.AI.OpenAI,
				Limiter:  ratelimit.NewLimiter(cfg.AI.Limits),
			})
		case "anthropic":
			if cfg.AI.Anthropic.APIKey == "" {
				logger.Info("Anthropic API key not set, skipping provider")
				continue
			}
			opts = append(opts, ai.SelectorOption{
				Provider: ai.NewAnthropicProvider(cfg.AI.Anthropic),
				Config:   cfg.AI.Anthropic,
				Limiter:  ratelimit.NewLimiter(cfg.AI.Limits),
			})
		case "google":
			if cfg.AI.Google.APIKey == "" {
				logger.Info("Google API key not set, skipping provider")
				continue
			}
			opts = append(opts, ai.SelectorOption{
				Provider: ai.NewGoogleProvider(cfg.AI.Google),
				Config:   cfg.AI.Google,
				Limiter:  ratelimit.NewLimiter(cfg.AI.Limits),
			})
		case "mock":
			opts = append(opts, ai.SelectorOption{Provider: ai.NewMockProvider()})
			mockIncluded = true
		default:
			logger.Warnf("Unknown AI provider %q in priority list, skipping", name)
		}
	}

	if !mockIncluded {
		opts = append(opts, ai.SelectorOption{Provider: ai.NewMockProvider()})
	}

	return opts
}
