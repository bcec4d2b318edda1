// Package main is the entry point for the ClinicPulse report worker: the
// asynq server consuming the clinic-reports lane plus the scheduler that
// fires the daily fan-out.
//
// The process hosts both the worker and the scheduler. Multiple replicas
// may run: the broker delivers each job to exactly one worker per attempt,
// and a transient window of duplicate schedule triggers across replicas is
// tolerated because the fan-out's side effects survive re-execution.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/hibiken/asynq"

	"clinicpulse/internal/config"
	"clinicpulse/internal/db"
	"clinicpulse/internal/external"
	"clinicpulse/internal/mail"
	"clinicpulse/internal/metrics"
	"clinicpulse/internal/queue"
	"clinicpulse/internal/reports"
	"clinicpulse/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("clinicpulse report worker starting",
		"environment", cfg.Environment,
		"concurrency", cfg.Worker.Concurrency,
		"schedule", cfg.Reports.ScheduleCron,
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

	retry := queue.RetryConfig{
		MaxAttempts:        cfg.Reports.MaxAttempts,
		CompletedRetention: cfg.Reports.CompletedRetention,
	}
	producer := queue.NewProducer(asynqClient, retry, logger)

	worker := reports.NewWorker(reports.WorkerConfig{
		Orgs:     db.NewOrganizationRepository(pool),
		Members:  db.NewMemberRepository(pool),
		Stats:    db.NewReportStatsRepository(pool),
		Producer: producer,
		Sender:   sender,
		EmailLog: db.NewEmailLogRepository(pool),
		Renderer: renderer,
		Sink:     sink,
		From: types.EmailAddress{
			Address: cfg.Email.FromAddress,
			Name:    cfg.Email.FromName,
		},
		IntervalDays: cfg.Reports.IntervalDays,
		Logger:       logger,
	})

	mux := asynq.NewServeMux()
	worker.Register(mux)

	srv := queue.NewWorkerServer(redisOpt, cfg.Worker.Concurrency, cfg.Reports.BackoffBase, logger)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	recurring := queue.NewRecurringScheduler(scheduler, cfg.Reports.ScheduleCron, retry, logger)
	if err := recurring.Setup(); err != nil {
		return fmt.Errorf("registering recurring schedule: %w", err)
	}

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("starting worker server: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("starting scheduler: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("shutdown signal received", "signal", sig.String())

	// Scheduler first so no new fan-outs fire, then let in-flight jobs
	// drain before the server stops.
	scheduler.Shutdown()
	srv.Stop()
	srv.Shutdown()

	logger.Info("report worker stopped cleanly")
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
