package schedule

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/clock"
	"github.com/signalix/reverseotp/internal/repo"
)

// Sweeper periodically evicts expired pending requests
type Sweeper struct {
	pending repo.PendingRepo
	clock   clock.Clocker
	logger  *zap.Logger
	cron    *cron.Cron
	running atomic.Bool
}

// NewSweeper creates a sweeper; call Start to schedule it.
func NewSweeper(pending repo.PendingRepo, clk clock.Clocker, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		pending: pending,
		clock:   clk,
		logger:  logger.With(zap.String("job", "sweep_expired")),
		cron:    cron.New(),
	}
}

// Start schedules the sweep with a cron spec such as "@every 1m" and starts the scheduler.
func (s *Sweeper) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("job scheduled", zap.String("spec", spec))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Run performs one sweep and returns the number of evicted entries. Overlapping runs are skipped.
func (s *Sweeper) Run(ctx context.Context) int {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("job skipped: still running")
		return 0
	}
	defer s.running.Store(false)

	if ctx.Err() != nil {
		return 0
	}
	removed := s.pending.SweepExpired(s.clock.Now())
	if removed > 0 {
		s.logger.Info("expired requests swept", zap.Int("removed", removed), zap.Int("remaining", s.pending.Len()))
	}
	return removed
}
