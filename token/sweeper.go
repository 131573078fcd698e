package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the expired refresh-token sweep hourly.
const DefaultSweepSchedule = "@every 1h"

// Sweeper periodically deletes expired refresh tokens.
type Sweeper struct {
	svc     *Service
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger
}

// NewSweeper schedules svc.SweepExpired on the given cron spec. An empty
// spec uses DefaultSweepSchedule.
func NewSweeper(svc *Service, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{svc: svc, cron: cron.New(), timeout: time.Minute, logger: logger}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("token: sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running sweep to finish or ctx
// to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.svc.SweepExpired(ctx); err != nil {
		s.logger.Error("bastion: refresh token sweep failed", slog.String("error", err.Error()))
	}
}
