// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the background maintenance jobs: audit log
// retention, stale-event reconciliation, and counter-store sweeps.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/warden-go/internal/audit"
	"github.com/olegiv/warden-go/internal/ratelimit"
)

// staleMaxAge is how long an event may stay in flight before
// reconciliation finalizes it as aborted.
const staleMaxAge = 5 * time.Minute

// Scheduler owns the cron runner and its job wiring.
type Scheduler struct {
	cron      *cron.Cron
	log       *audit.Log
	store     ratelimit.Store
	retention time.Duration
}

// Options configures the scheduler.
type Options struct {
	// Retention is how long audit events are kept before the nightly
	// purge removes them.
	Retention time.Duration
}

// New creates a scheduler over the given audit log and counter store.
func New(log *audit.Log, store ratelimit.Store, opts Options) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		log:       log,
		store:     store,
		retention: opts.Retention,
	}
}

// Start registers the maintenance jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	// Nightly at 00:30: drop events past the retention horizon.
	if s.retention > 0 {
		if _, err := s.cron.AddFunc("30 0 * * *", s.purgeExpired); err != nil {
			return err
		}
	}

	// Every minute: finalize events whose request never completed.
	if _, err := s.cron.AddFunc("@every 1m", s.reconcileStale); err != nil {
		return err
	}

	// Every 5 minutes: remove expired window counters.
	if _, err := s.cron.AddFunc("@every 5m", s.sweepCounters); err != nil {
		return err
	}

	s.cron.Start()
	slog.Debug("scheduler started", "retention", s.retention)
	return nil
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Debug("scheduler stopped")
}

func (s *Scheduler) purgeExpired() {
	cutoff := time.Now().Add(-s.retention)
	if removed := s.log.PurgeOlderThan(cutoff); removed > 0 {
		slog.Info("audit retention purge complete", "removed", removed, "cutoff", cutoff)
	}
}

func (s *Scheduler) reconcileStale() {
	s.log.ReconcileStale(staleMaxAge)
}

func (s *Scheduler) sweepCounters() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.store.SweepExpired(ctx)
	if err != nil {
		slog.Error("counter sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("counter sweep complete", "removed", removed)
	}
}
