// Package main is the entry point for the ClinicPulse API server: the
// trigger surface for the report pipeline (manual trigger, status) and the
// reminder sweep.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"clinicpulse/internal/api/handlers"
	"clinicpulse/internal/config"
	"clinicpulse/internal/core"
	"clinicpulse/internal/db"
	"clinicpulse/internal/external"
	"clinicpulse/internal/mail"
	"clinicpulse/internal/metrics"
	"clinicpulse/internal/queue"
	"clinicpulse/internal/reminders"
	"clinicpulse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("clinicpulse API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisOpt := queue.RedisOpt(cfg.Redis)
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	sender, err := external.NewEmailProvider(cfg.Email, awsCfg, logger)
	if err != nil {
		return fmt.Errorf("building email provider: %w", err)
	}

	var sink metrics.Sink = metrics.NewNoop()
	if cfg.Observability.EnableMetrics {
		sink = metrics.NewCloudWatchSink(
			cloudwatch.NewFromConfig(awsCfg),
			cfg.Observability.MetricNamespace,
			logger,
		)
	}

	renderer, err := mail.NewRenderer()
	if err != nil {
		return fmt.Errorf("parsing email templates: %w", err)
	}

	orgRepo := db.NewOrganizationRepository(pool)
	memberRepo := db.NewMemberRepository(pool)
	appointmentRepo := db.NewAppointmentRepository(pool)
	emailLogRepo := db.NewEmailLogRepository(pool)

	retry := queue.RetryConfig{
		MaxAttempts:        cfg.Reports.MaxAttempts,
		CompletedRetention: cfg.Reports.CompletedRetention,
	}
	producer := queue.NewProducer(asynqClient, retry, logger)
	laneStats := queue.NewStats(inspector)

	from := types.EmailAddress{
		Address: cfg.Email.FromAddress,
		Name:    cfg.Email.FromName,
	}

	sweeper := reminders.NewSweeper(reminders.SweeperConfig{
		Appointments: appointmentRepo,
		EmailLog:     emailLogRepo,
		Sender:       sender,
		Renderer:     renderer,
		Sink:         sink,
		From:         from,
		Window:       cfg.Reminders.Window,
		MonthlyLimit: cfg.Reminders.MonthlyEmailLimit,
		Logger:       logger,
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{
		core.NamedProbe{
			ProbeName: "database",
			CheckFunc: func(ctx context.Context) error { return pool.Ping(ctx) },
		},
		core.NamedProbe{
			ProbeName: "redis",
			CheckFunc: func(context.Context) error { return asynqClient.Ping() },
		},
	}

	reportsHandler := handlers.NewReportsHandler(
		orgRepo,
		memberRepo,
		producer,
		laneStats,
		cfg.Reports.IntervalDays,
		srv.Validator,
		logger,
	)
	remindersHandler := handlers.NewRemindersHandler(sweeper, logger)

	srv.Router().Route("/v1", func(r chi.Router) {
		reportsHandler.RegisterRoutes(r)
		remindersHandler.RegisterRoutes(r)
	})

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server with graceful shutdown on SIGINT/SIGTERM.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // the synchronous sweep can run long
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON slog.Logger for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
