package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Job is a periodic unit of work. It receives the scheduler's run context.
type Job func(ctx context.Context)

// Scheduler runs named jobs on cron specs. A job still running when its next
// tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
	ctx    context.Context
	names  map[cron.EntryID]string
}

// New creates a scheduler evaluating specs in loc.
func New(loc *time.Location, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    context.Background(),
		names:  make(map[cron.EntryID]string),
	}
}

// Add registers job under spec ("@every 5m", "*/15 * * * *"). Call before Run.
func (s *Scheduler) Add(name, spec string, job Job) error {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		job(s.ctx)
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	s.names[id] = name
	s.logger.Info("scheduled job registered", "job", name, "spec", spec)
	return nil
}

// Len reports the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
}

type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
