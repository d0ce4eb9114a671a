package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wolfman30/clinicops/cmd/mainconfig"
	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	"github.com/wolfman30/clinicops/internal/automation"
	"github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/opentickets"
	"github.com/wolfman30/clinicops/internal/worker/scheduler"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("automation worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	stores := bootstrap.BuildStores(pool, redisClient, logger)
	engine := bootstrap.BuildEngine(cfg, stores, nil, logger)
	email := bootstrap.BuildEmailSender(cfg, awsCfg, logger)

	sched, err := buildScheduler(cfg, engine, logger)
	if err != nil {
		logger.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}
	deliverer := buildDeliverer(cfg, stores.Outbox, bootstrap.BuildDeliveryHandler(cfg, engine, email, logger), logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		deliverer.Start(ctx)
	}()
	logger.Info("automation worker started",
		"jobs", sched.Len(),
		"ticket_sweep", cfg.TicketSweepSchedule,
		"motor", cfg.AutomationMotorSchedule,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("automation worker shutting down")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("automation worker did not stop in time")
	}
}

// buildScheduler registers the ticket expiry sweep and the rule motor.
func buildScheduler(cfg *config.Config, engine *bootstrap.Engine, logger *logging.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(cfg.Location(), logger)

	sweeper := opentickets.NewSweeper(engine.Tickets, logger)
	if err := sched.Add("ticket-sweep", cfg.TicketSweepSchedule, sweeper.Run); err != nil {
		return nil, err
	}

	motor := automation.NewMotor(engine.Subjects, engine.Orchestrator, logger).
		WithBatchSize(cfg.AutomationMotorBatch).
		WithWorkers(cfg.AutomationMotorWorkers)
	if err := sched.Add("automation-motor", cfg.AutomationMotorSchedule, motor.Run); err != nil {
		return nil, err
	}
	return sched, nil
}

func buildDeliverer(cfg *config.Config, outbox events.Source, handler events.DeliveryHandler, logger *logging.Logger) *events.Deliverer {
	return events.NewDeliverer(outbox, handler, logger).
		WithInterval(cfg.OutboxPollInterval)
}
