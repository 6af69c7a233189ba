// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/split-budget/pkg/config"
)

const (
	recomputeTimeout = 30 * time.Minute
	cleanupTimeout   = 5 * time.Minute
)

// SummaryRecomputer rebuilds the recent monthly summaries of active users.
type SummaryRecomputer interface {
	RecomputeRecent(ctx context.Context, now time.Time) (int, error)
}

// SessionCleaner removes expired and revoked sessions.
type SessionCleaner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron      *cron.Cron
	summaries SummaryRecomputer
	sessions  SessionCleaner
	cfg       config.JobsConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a new job scheduler.
func NewScheduler(summaries SummaryRecomputer, sessions SessionCleaner, cfg config.JobsConfig, logger *slog.Logger) *Scheduler {
	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	// standard 5-field format, a run still in progress skips the next tick
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:      c,
		summaries: summaries,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the jobs and begins running them.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.RecomputeSchedule, s.recomputeJob); err != nil {
		return fmt.Errorf("failed to schedule summary recompute: %w", err)
	}
	if _, err := s.cron.AddFunc(s.cfg.SessionCleanupSchedule, s.cleanupJob); err != nil {
		return fmt.Errorf("failed to schedule session cleanup: %w", err)
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop stops scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs both jobs synchronously.
func (s *Scheduler) RunNow(ctx context.Context) error {
	_, recomputeErr := s.recompute(ctx)
	_, cleanupErr := s.cleanup(ctx)
	return errors.Join(recomputeErr, cleanupErr)
}

func (s *Scheduler) recomputeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), recomputeTimeout)
	defer cancel()
	_, _ = s.recompute(ctx)
}

func (s *Scheduler) cleanupJob() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	_, _ = s.cleanup(ctx)
}

func (s *Scheduler) recompute(ctx context.Context) (int, error) {
	start := s.now()
	s.logger.Info("starting nightly summary recompute")

	users, err := s.summaries.RecomputeRecent(ctx, start)
	if err != nil {
		s.logger.Error("nightly summary recompute failed",
			slog.Int("users_recomputed", users),
			slog.Any("error", err),
		)
		return users, err
	}

	s.logger.Info("nightly summary recompute completed",
		slog.Int("users_recomputed", users),
		slog.Duration("duration", s.now().Sub(start)),
	)
	return users, nil
}

func (s *Scheduler) cleanup(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("session cleanup failed", slog.Any("error", err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions deleted", slog.Int64("count", n))
	}
	return n, nil
}
