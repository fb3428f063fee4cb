package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// PriceRefreshJob is the refresh round run by the recurring chain.
type PriceRefreshJob interface {
	Run(ctx context.Context)
}

// SessionPurger removes expired sessions.
type SessionPurger interface {
	PurgeExpiredSessions() (int64, error)
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron       *gocron.Scheduler
	refresh    *Recurring
	sessions   SessionPurger
	purgeEvery time.Duration
	logger     *zap.Logger
	startOnce  sync.Once
	startErr   error
	stopOnce   sync.Once
}

// NewScheduler creates a new scheduler instance
func NewScheduler(refresher PriceRefreshJob, refreshInterval time.Duration, sessions SessionPurger, logger *zap.Logger) (*Scheduler, error) {
	refresh, err := NewRecurring("price_refresh", refreshInterval, refresher.Run, logger)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cron:       gocron.NewScheduler(time.UTC),
		refresh:    refresh,
		sessions:   sessions,
		purgeEvery: time.Hour,
		logger:     logger,
	}, nil
}

// Start starts all scheduled jobs. Only the first call has any effect; later calls
// return the first call's error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		s.logger.Info("Starting scheduler...")

		// Purge expired sessions every hour
		if _, err := s.cron.Every(s.purgeEvery).Do(s.purgeSessions); err != nil {
			s.startErr = fmt.Errorf("schedule session purge: %w", err)
			return
		}

		s.cron.StartAsync()
		s.refresh.Start(ctx)
		s.logger.Info("Scheduler started successfully")
	})
	return s.startErr
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.refresh.Stop()
		s.cron.Stop()
		s.logger.Info("Scheduler stopped")
	})
}

// purgeSessions deletes expired sessions
func (s *Scheduler) purgeSessions() {
	removed, err := s.sessions.PurgeExpiredSessions()
	if err != nil {
		s.logger.Error("Error purging expired sessions", zap.Error(err))
		return
	}
	s.logger.Info("Purged expired sessions", zap.Int64("removed", removed))
}
