package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicops/internal/appointments"
	"github.com/wolfman30/clinicops/internal/automation"
	appconfig "github.com/wolfman30/clinicops/internal/config"
	"github.com/wolfman30/clinicops/internal/events"
	"github.com/wolfman30/clinicops/internal/leads"
	"github.com/wolfman30/clinicops/internal/notify"
	"github.com/wolfman30/clinicops/internal/observability/metrics"
	"github.com/wolfman30/clinicops/internal/opentickets"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// Outbox is both ends of the event outbox.
type Outbox interface {
	events.Publisher
	events.Source
}

// Stores groups every persistence dependency of the engine.
type Stores struct {
	Appointments appointments.Repository
	Tickets      opentickets.Repository
	Sequencer    opentickets.CodeSequencer
	Rules        automation.RuleStore
	Logs         automation.LogStore
	Leads        leads.Repository
	Outbox       Outbox
}

// BuildStores uses Postgres when a pool is given and in-memory stores
// otherwise. Ticket codes come from Redis when a client is given.
func BuildStores(pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) *Stores {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Stores{}
	if pool != nil {
		s.Appointments = appointments.NewPostgresRepository(pool)
		s.Tickets = opentickets.NewPostgresRepository(pool)
		s.Rules = automation.NewPostgresRuleStore(pool)
		s.Logs = automation.NewSQLLogStore(stdlib.OpenDBFromPool(pool))
		s.Leads = leads.NewPostgresRepository(pool)
		s.Outbox = events.NewOutboxStore(pool)
		logger.Info("using postgres stores")
	} else {
		s.Appointments = appointments.NewInMemoryRepository()
		s.Tickets = opentickets.NewInMemoryRepository()
		s.Rules = automation.NewMemoryRuleStore()
		s.Logs = automation.NewMemoryLogStore()
		s.Leads = leads.NewInMemoryRepository()
		s.Outbox = events.NewMemoryOutbox()
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	if redisClient != nil {
		s.Sequencer = opentickets.NewRedisSequencer(redisClient)
	} else {
		s.Sequencer = opentickets.NewMemorySequencer()
	}
	return s
}

// Engine is the wired domain core shared by the API and the worker.
type Engine struct {
	Machine      *appointments.Machine
	Tickets      *opentickets.Service
	Executor     *automation.Executor
	Orchestrator *automation.Orchestrator
	Subjects     automation.SubjectSource
}

// BuildEngine wires the appointment machine, ticket service and rule engine
// over the given stores.
func BuildEngine(cfg *appconfig.Config, stores *Stores, m *metrics.EngineMetrics, logger *logging.Logger) *Engine {
	if cfg == nil {
		cfg = &appconfig.Config{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location()

	perSlot := cfg.MaxSlotBookings
	if perSlot <= 0 {
		perSlot = 1
	}
	machine := appointments.NewMachine(stores.Appointments, logger.Component("appointments")).
		WithCapacity(appointments.SlotCapacity{Repo: stores.Appointments, PerSlot: perSlot}).
		WithPublisher(stores.Outbox).
		WithMetrics(m).
		WithLocation(loc)
	if cfg.ArrivalToleranceMinutes > 0 {
		machine = machine.WithTolerance(time.Duration(cfg.ArrivalToleranceMinutes) * time.Minute)
	}

	tickets := opentickets.NewService(stores.Tickets, stores.Sequencer, stores.Appointments, logger.Component("opentickets")).
		WithPublisher(stores.Outbox).
		WithMetrics(m).
		WithLocation(loc)

	executor := automation.NewExecutor(machine, logger.Component("automation")).
		WithPublisher(stores.Outbox).
		WithMetrics(m).
		WithMessagingWindow(cfg.SocialMessagingWindowDays)
	orch := automation.NewOrchestrator(automation.NewGates(loc), executor, stores.Rules, stores.Logs, logger.Component("automation")).
		WithMetrics(m)

	return &Engine{
		Machine:      machine,
		Tickets:      tickets,
		Executor:     executor,
		Orchestrator: orch,
		Subjects:     leads.NewSubjectSource(stores.Leads),
	}
}

// BuildDeliveryHandler routes outbox entries: notification intents go to the
// channel dispatcher and appointment changes re-run the rules for the
// affected appointment.
func BuildDeliveryHandler(cfg *appconfig.Config, engine *Engine, email notify.EmailSender, logger *logging.Logger) events.DeliveryHandler {
	if logger == nil {
		logger = logging.Default()
	}
	dispatcher := notify.NewChannelDispatcher(email, logger)
	if cfg != nil {
		dispatcher = dispatcher.WithSubject(cfg.EmailSubject)
	}
	return events.NewTypeRouter(logger).
		Route(events.TypeNotificationRequested, notify.NewOutboxHandler(dispatcher, logger)).
		Route(events.TypeAppointmentChanged, automation.NewAppointmentEvents(engine.Machine, engine.Orchestrator, logger.Component("automation")))
}

// BuildEmailSender picks the provider named by EMAIL_PROVIDER. SES needs an
// AWS config; anything unusable falls back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub email sender")
	case "ses":
		if awsCfg != nil && cfg.SESFromEmail != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.SendGridFromName,
				ConfigurationSet: cfg.SESConfigSet,
			}, logger)
		}
		logger.Warn("ses selected but not configured; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}
