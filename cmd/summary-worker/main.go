package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"punchclock.service/internal/config"
	"punchclock.service/internal/core/notify"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/internal/worker"
	"punchclock.service/internal/worker/summary"
	"punchclock.service/pkg/aws"
	"punchclock.service/pkg/database"
	"punchclock.service/pkg/logger"
	"punchclock.service/pkg/telemetry"
)

const serviceName = "punchclock-summary-worker"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	logger.Setup(serviceName, cfg.IsLocalDev)

	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	calcCfg, err := cfg.PayrollConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid calculation configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewInstrumentedConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	awsCfg, err := aws.NewAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	repo := repository.NewPunchRepository(db)
	emailService := notify.NewSESEmailService(ses.NewFromConfig(awsCfg), cfg.EmailSender)
	processor := summary.NewProcessor(emailService, repo, calcCfg, cfg.EmailDomain)

	app := worker.NewWorker(sqs.NewFromConfig(awsCfg), cfg.EmailSQSQueueURL, processor)
	app.Concurrency = cfg.WorkerConcurrency
	app.Start(ctx)

	log.Info().Msg("Worker exited gracefully")
}
