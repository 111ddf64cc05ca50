package rewardjobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is the persistence surface the scheduled jobs need.
type Store interface {
	ResetMonthlyPatronage(ctx context.Context) (int64, error)
}

// Scheduler owns the recurring reward maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	store  Store
	logger *slog.Logger
}

// New builds the scheduler. Jobs run in UTC.
func New(store Store, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		store:  store,
		logger: logger.With("component", "rewardjobs"),
	}

	// Monthly patronage counters reset on the first of each month.
	if _, err := s.cron.AddFunc("0 0 1 * *", s.resetPatronage); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("reward jobs scheduled")
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) resetPatronage() {
	ctx := context.Background()
	n, err := s.store.ResetMonthlyPatronage(ctx)
	if err != nil {
		s.logger.Error("reset monthly patronage", "error", err)
		return
	}
	s.logger.Info("monthly patronage counters reset", "accounts", n)
}
