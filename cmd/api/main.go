package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinicops/cmd/mainconfig"
	"github.com/wolfman30/clinicops/internal/api/router"
	"github.com/wolfman30/clinicops/internal/app/bootstrap"
	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/automation"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/leads"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/opentickets"
	"github.com/wolfman30/clinicops/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicops API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, engineMetrics := setupMetrics()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if cfg.DatabaseURL != "" && pool == nil {
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	stores := bootstrap.BuildStores(pool, redisClient, logger)
	engine := bootstrap.BuildEngine(cfg, stores, engineMetrics, logger)

	var awsCfg *aws.Config
	if mainconfig.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}
	email := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	deliverer := setupInlineDeliverer(ctx, cfg, stores.Outbox, bootstrap.BuildDeliveryHandler(cfg, engine, email, logger), logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointments.NewHandler(engine.Machine, logger),
		TicketsHandler:      opentickets.NewHandler(engine.Tickets, logger),
		AutomationHandler:   automation.NewHandler(stores.Rules, stores.Logs, engine.Orchestrator, engine.Subjects, logger),
		LeadsHandler:        leads.NewHandler(stores.Leads, logger),
		MetricsHandler:      metricsHandler,
		AdminJWTSecret:      cfg.AdminJWTSecret,
		LeadIntakeToken:     cfg.LeadIntakeToken,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	}
	if strings.TrimSpace(cfg.AdminJWTSecret) == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; staff routes will reject every request")
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	cancel()
	waitForInlineDeliverer(deliverer, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a private registry carrying the engine counters plus
// the Go runtime collectors, and the /metrics handler that serves it.
func setupMetrics() (http.Handler, *metrics.EngineMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngineMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), engineMetrics
}

// connectPostgresPool returns nil when no URL is configured or the database
// cannot be reached.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// inlineDeliverer drains an in-process outbox when no worker shares the store.
type inlineDeliverer struct {
	wg sync.WaitGroup
}

// setupInlineDeliverer only runs for the in-memory outbox. A Postgres outbox
// is drained by cmd/automation-worker.
func setupInlineDeliverer(ctx context.Context, cfg *appconfig.Config, outbox bootstrap.Outbox, handler events.DeliveryHandler, logger *logging.Logger) *inlineDeliverer {
	memory, ok := outbox.(*events.MemoryOutbox)
	if !ok {
		return nil
	}
	d := events.NewDeliverer(memory, handler, logger).WithInterval(cfg.OutboxPollInterval)

	w := &inlineDeliverer{}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		d.Start(ctx)
	}()
	logger.Info("inline outbox deliverer started")
	return w
}

func waitForInlineDeliverer(w *inlineDeliverer, logger *logging.Logger) {
	if w == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline outbox deliverer stopped")
	case <-time.After(5 * time.Second):
		logger.Warn("inline outbox deliverer did not stop in time")
	}
}
