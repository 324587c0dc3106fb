// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs digest batches on cron schedules in serve mode.
// Deployments that prefer external cron invoke "objevents send-digests"
// instead and leave all schedules empty.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/bitlabs-dev/objevents/internal/digest"
	"github.com/bitlabs-dev/objevents/internal/model"
)

// ErrRateLimited is returned when a manual trigger arrives faster than the
// per-interval limit allows.
var ErrRateLimited = fmt.Errorf("digest trigger rate limited")

// Scheduler drives periodic digest runs. Runs for the same interval are
// serialized: if a run is still going when its next tick fires, the tick is
// skipped rather than overlapped, so one backlog is never processed twice.
type Scheduler struct {
	runner *digest.Runner
	cron   *cron.Cron
	logger *slog.Logger

	mu       sync.Mutex
	running  map[model.Interval]bool
	limiters map[model.Interval]*rate.Limiter
}

// Schedules maps each interval to its cron spec. An empty spec disables
// scheduling for that interval.
type Schedules map[model.Interval]string

// New creates a new scheduler instance.
func New(runner *digest.Runner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:   runner,
		cron:     cron.New(),
		logger:   logger,
		running:  make(map[model.Interval]bool),
		limiters: make(map[model.Interval]*rate.Limiter),
	}
	for _, interval := range model.Intervals() {
		// Manual triggers: one per 30 seconds per interval.
		s.limiters[interval] = rate.NewLimiter(rate.Limit(1.0/30.0), 1)
	}
	return s
}

// Start registers the configured schedules and starts the cron loop.
func (s *Scheduler) Start(schedules Schedules) error {
	registered := 0
	for _, interval := range model.Intervals() {
		spec := schedules[interval]
		if spec == "" {
			continue
		}
		iv := interval
		if _, err := s.cron.AddFunc(spec, func() { s.run(iv) }); err != nil {
			return fmt.Errorf("scheduling %s digest (%q): %w", iv, spec, err)
		}
		registered++
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", registered)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Trigger runs a digest for the interval outside its schedule, subject to
// rate limiting. Used by the manual trigger endpoint.
func (s *Scheduler) Trigger(ctx context.Context, interval model.Interval) (digest.Summary, error) {
	limiter, ok := s.limiters[interval]
	if !ok {
		return digest.Summary{}, fmt.Errorf("invalid interval %q", interval)
	}
	if !limiter.Allow() {
		return digest.Summary{}, ErrRateLimited
	}

	if !s.tryAcquire(interval) {
		return digest.Summary{}, fmt.Errorf("digest run for %s already in progress", interval)
	}
	defer s.release(interval)

	return s.runner.Run(ctx, interval)
}

// run executes one scheduled digest run, skipping if the previous run for
// this interval has not finished.
func (s *Scheduler) run(interval model.Interval) {
	if !s.tryAcquire(interval) {
		s.logger.Warn("skipping digest run, previous run still in progress", "interval", interval)
		return
	}
	defer s.release(interval)

	if _, err := s.runner.Run(context.Background(), interval); err != nil {
		s.logger.Error("scheduled digest run failed", "interval", interval, "error", err)
	}
}

func (s *Scheduler) tryAcquire(interval model.Interval) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[interval] {
		return false
	}
	s.running[interval] = true
	return true
}

func (s *Scheduler) release(interval model.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[interval] = false
}
