package opentickets

import (
	"context"
	"time"

	"github.com/wolfman30/clinicops/pkg/logging"
)

// Sweeper periodically expires tickets past their validity window.
type Sweeper struct {
	svc    *Service
	logger *logging.Logger
	now    func() time.Time
}

func NewSweeper(svc *Service, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{svc: svc, logger: logger, now: svc.now}
}

// RunOnce performs a single sweep. An empty sweep is not an error.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.svc.ExpireBatch(ctx, s.now())
	if err != nil {
		s.logger.Error("ticket sweep failed", "expired_before_error", n, "error", err)
		return n
	}
	s.logger.Debug("ticket sweep complete", "expired", n)
	return n
}

// Run adapts RunOnce to the scheduler job signature.
func (s *Sweeper) Run(ctx context.Context) {
	s.RunOnce(ctx)
}
