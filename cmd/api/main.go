// Package main is the entrypoint for the QuickGPT API server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/cache"
	"github.com/quickgpt/quickgpt/internal/config"
	"github.com/quickgpt/quickgpt/internal/handler"
	"github.com/quickgpt/quickgpt/internal/metrics"
	"github.com/quickgpt/quickgpt/internal/payment"
	"github.com/quickgpt/quickgpt/internal/provider"
	"github.com/quickgpt/quickgpt/internal/repository"
	"github.com/quickgpt/quickgpt/internal/server"
	"github.com/quickgpt/quickgpt/internal/service"
)

// webhookReplayWindow bounds how old a signed payment notification may be.
const webhookReplayWindow = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errors.New("connect database")
	}
	logger.Info("connected to database")

	// Transactions go through database/sql so the payment package stays
	// independent of the pgx pool.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		repo.Close()
		return fmt.Errorf("open payment database: %s", sanitizeError(err, cfg.DatabaseURL))
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		_ = sqlDB.Close()
		repo.Close()
		return errors.New("connect redis")
	}
	logger.Info("connected to Redis")

	generators, err := buildGenerators(ctx, cfg, logger)
	if err != nil {
		_ = cacheClient.Close()
		_ = sqlDB.Close()
		repo.Close()
		return err
	}

	recorder := metrics.NewInMemory()
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	accounts := service.NewAccountService(repo, tokens, cacheClient, cfg.SignupCredits, logger, recorder)
	chats := service.NewChatService(repo, logger, recorder)
	gallery := service.NewGalleryService(repo, cacheClient, cfg.GalleryCacheTTL, logger, recorder)
	messages := service.NewMessageService(repo, repo, generators, cacheClient, service.MessageServiceConfig{
		GenerationTimeout: cfg.GenerationTimeout,
		HoldTTL:           cfg.CreditHoldTTL,
	}, logger, recorder)
	payments := service.NewPaymentService(payment.NewRepository(sqlDB), repo, cacheClient, cfg.CheckoutBaseURL, logger, recorder)

	var verifier *payment.Verifier
	if cfg.PaymentWebhookSecret != "" {
		verifier = payment.NewVerifier(cfg.PaymentWebhookSecret, webhookReplayWindow)
	} else {
		logger.Warn("PAYMENT_WEBHOOK_SECRET not set; payment webhook disabled")
	}

	r := setupRouter(routes{
		base:     handler.New(),
		health:   handler.NewHealthHandler(repo, cacheClient),
		metrics:  handler.NewMetricsHandler(recorder),
		accounts: handler.NewAccountHandler(accounts, logger, !cfg.IsDevelopment()),
		chats:    handler.NewChatHandler(chats, logger),
		messages: handler.NewMessageHandler(messages, logger),
		gallery:  handler.NewGalleryHandler(gallery, logger),
		credits:  handler.NewCreditHandler(payments, verifier, logger),
	}, accounts, cacheClient, cfg, logger)

	srv := server.New(r, server.Options{
		Addr:            server.Addr(cfg.AppPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("postgres-sql", func(context.Context) error {
		return sqlDB.Close()
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"text_provider", cfg.TextProvider,
		"image_enabled", cfg.ImageHostingEnabled(),
	)

	return srv.Run(ctx)
}

// buildGenerators registers one generator per available mode. Image mode is
// only offered when ImageKit credentials are configured.
func buildGenerators(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*provider.Registry, error) {
	var textModel provider.TextModel
	switch cfg.TextProvider {
	case "genai":
		m, err := provider.NewGenAITextModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("init text provider: %w", err)
		}
		textModel = m
	default:
		logger.Warn("using mock text provider")
		textModel = provider.MockTextModel{}
	}

	gens := []provider.Generator{provider.NewTextGenerator(textModel)}
	if cfg.ImageHostingEnabled() {
		gens = append(gens, provider.NewImageGenerator(
			provider.NewImageKitSynthesizer(cfg.ImageKitURLEndpoint, cfg.ImageKitFolder, nil),
			provider.NewImageKitUploader(cfg.ImageKitUploadURL, cfg.ImageKitPrivateKey, cfg.ImageKitFolder, nil),
		))
	} else {
		logger.Warn("ImageKit not configured; image generation disabled")
	}
	return provider.NewRegistry(gens...), nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "quickgpt-api")
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	q := parsed.Query()
	if q.Has("password") {
		q.Set("password", "redacted")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
