package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/mkravets/contacts-api/app/db"
	appLogger "github.com/mkravets/contacts-api/app/logger"
	"github.com/mkravets/contacts-api/app/mail"
	"github.com/mkravets/contacts-api/app/observability/metrics"
	"github.com/mkravets/contacts-api/app/upload"
	"github.com/mkravets/contacts-api/config"
	"github.com/mkravets/contacts-api/internal/api/auth"
	"github.com/mkravets/contacts-api/internal/api/contact"
	"github.com/mkravets/contacts-api/internal/api/user"
	"github.com/mkravets/contacts-api/internal/router"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger(cfg.Mode)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Database ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	// Migrations run before the main pool opens.
	if err = database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Metrics ---
	metricsHandler, err := metrics.InitProvider()
	if err != nil {
		logger.Error("Failed to initialize metrics provider", slog.Any("error", err))
		os.Exit(1)
	}
	appMetrics, err := metrics.NewAppMetrics()
	if err != nil {
		logger.Error("Failed to create application metrics", slog.Any("error", err))
		os.Exit(1)
	}
	go serveMetrics(cfg.Server.MetricsPort, metricsHandler, logger)

	// --- Outbound integrations ---
	mailer := mail.NewSMTPMailer(cfg.Mail, logger)
	uploader, err := upload.NewS3Uploader(ctx, cfg.S3, logger)
	if err != nil {
		logger.Error("Failed to initialize S3 uploader", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Dependency wiring ---
	codec := auth.NewTokenCodec(&cfg)

	userRepo := user.NewPostgresUserRepo(pool, appMetrics, logger)
	tokenRepo := auth.NewPostgresTokenRepo(pool, appMetrics, logger)
	contactRepo := contact.NewPostgresContactRepo(pool, appMetrics, logger)

	tokenService := auth.NewTokenService(codec, tokenRepo, &cfg)
	authService := auth.NewAuthService(userRepo, tokenService, codec, mailer, &cfg, logger, appMetrics)
	userService := user.NewUserService(userRepo, uploader, logger)
	contactService := contact.NewContactService(contactRepo, logger)

	guard := auth.NewGuard(codec, userRepo, &cfg, logger)

	routerConfig := &router.Config{
		Logger:         logger,
		AuthHandler:    auth.NewAuthHandler(authService, &cfg, logger),
		UserHandler:    user.NewUserHandler(userService, logger),
		ContactHandler: contact.NewContactHandler(contactService, logger),
		Authenticate:   guard.Authenticate,
	}
	apiRouter := router.SetupRouter(routerConfig)

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Timeout(cfg.Server.Timeout))
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", apiRouter)

	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// serveMetrics exposes the Prometheus scrape endpoint on its own listener so
// operational traffic never mixes with the API port.
func serveMetrics(port string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	addr := fmt.Sprintf(":%s", port)
	logger.Info("Starting metrics server", slog.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server error", slog.Any("error", err))
	}
}

// setupLogger configures and returns the application logger.
func setupLogger(mode string) *slog.Logger {
	if env := os.Getenv("APP_ENV"); env != "" {
		mode = env
	}

	var logger *slog.Logger
	if mode == "development" || mode == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
