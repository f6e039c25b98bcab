// Entry point for the punch REST API and the offline queue drainer
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"punchclock.service/internal/adapters/sqlite"
	sqsadapter "punchclock.service/internal/adapters/SQS"
	"punchclock.service/internal/api"
	"punchclock.service/internal/config"
	"punchclock.service/internal/core/identity"
	"punchclock.service/internal/core/ingest"
	"punchclock.service/internal/core/payrun"
	"punchclock.service/internal/core/punch"
	"punchclock.service/internal/core/queue"
	"punchclock.service/internal/ports/repository"
	"punchclock.service/pkg/aws"
	"punchclock.service/pkg/database"
	"punchclock.service/pkg/logger"
	"punchclock.service/pkg/telemetry"
)

const serviceName = "punchclock-api"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := cfg.PunchPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid punch policy")
	}
	calcCfg, err := cfg.PayrollConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid calculation configuration")
	}

	db, err := database.NewInstrumentedConnection(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening database")
	}
	defer db.Close()
	log.Info().Msg("Successfully connected to the database.")

	repo := repository.NewPunchRepository(db)
	if cfg.DBAutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Schema migration failed")
		}
	}

	queueStore, err := sqlite.OpenQueueStore(cfg.QueueDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.QueueDBPath).Msg("Could not open offline queue")
	}
	defer queueStore.Close()

	awsCfg, err := aws.NewAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load SDK config")
	}

	producer := sqsadapter.NewSQSProducer(sqs.NewFromConfig(awsCfg), cfg.PayrollSQSQueueURL, cfg.EmailSQSQueueURL)
	buffer := queue.New(queueStore)
	service := ingest.NewService(identity.NewResolver(identity.NewCachingStore(repo)), punch.NewMachine(repo, policy), buffer, producer, policy.Day)
	drainer := queue.NewDrainer(queueStore, service, cfg.QueueOptions())
	scheduler := payrun.NewScheduler(repo, producer, calcCfg)

	router := api.NewRouter(service, buffer, scheduler)

	// otelhttp must wrap the logger middleware so the span exists first.
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           otelhttp.NewHandler(logger.Middleware(router), "api"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		drainer.Run(ctx)
	}()

	go func() {
		log.Info().Str("port", cfg.ServerPort).Msg("API Service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	// In-flight requests get 5 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wg.Wait()

	log.Info().Msg("Server exiting")
}
