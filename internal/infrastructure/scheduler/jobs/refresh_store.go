// Package jobs contains the scheduled jobs run by the server.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/schoolhub/schoolhub/internal/application/store"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH STORE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Refresher is the part of the store the refresh job drives.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshStoreJob reloads every collection from the backend so changes made
// by other writers to the same database show up on the dashboard.
type RefreshStoreJob struct {
	store   Refresher
	timeout time.Duration
	log     *logger.Logger

	lastRefreshed atomic.Value // time.Time
}

func NewRefreshStoreJob(s Refresher, timeout time.Duration, log *logger.Logger) *RefreshStoreJob {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RefreshStoreJob{store: s, timeout: timeout, log: log.Named("refresh_store")}
}

func (j *RefreshStoreJob) Name() string { return "refresh_store" }

func (j *RefreshStoreJob) Description() string {
	return "Reloads students, transactions, events and employees from the backend"
}

func (j *RefreshStoreJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.store.Refresh(ctx); err != nil {
		return err
	}
	j.lastRefreshed.Store(time.Now())
	return nil
}

// LastRefreshed is the completion time of the last successful run.
func (j *RefreshStoreJob) LastRefreshed() (time.Time, bool) {
	t, ok := j.lastRefreshed.Load().(time.Time)
	return t, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// RECLASSIFY STUDENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Reclassifier is the part of the store the reclassify job drives.
type Reclassifier interface {
	Reclassify(ctx context.Context) int
}

// ReclassifyStudentsJob restates cached financial statuses once a new
// billing period starts, even when nothing else touches the store.
type ReclassifyStudentsJob struct {
	store Reclassifier
	log   *logger.Logger
}

func NewReclassifyStudentsJob(s Reclassifier, log *logger.Logger) *ReclassifyStudentsJob {
	return &ReclassifyStudentsJob{store: s, log: log.Named("reclassify_students")}
}

func (j *ReclassifyStudentsJob) Name() string { return "reclassify_students" }

func (j *ReclassifyStudentsJob) Description() string {
	return "Re-derives student financial statuses after a billing period rolls over"
}

func (j *ReclassifyStudentsJob) Run(ctx context.Context) error {
	if n := j.store.Reclassify(ctx); n > 0 {
		j.log.Info("student statuses changed with the billing period", logger.Count(n))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE STATS JOB
// ══════════════════════════════════════════════════════════════════════════════

// StatsSource reports write-behind queue counters.
type StatsSource interface {
	WriteStats() store.WriteStats
}

// ReportWriteStatsJob logs a warning when persistence writes failed or were
// dropped since the previous run. The store keeps serving from memory in
// that case, so this is the operator's signal that the backend diverged.
type ReportWriteStatsJob struct {
	source StatsSource
	log    *logger.Logger
	last   store.WriteStats
}

func NewReportWriteStatsJob(source StatsSource, log *logger.Logger) *ReportWriteStatsJob {
	return &ReportWriteStatsJob{source: source, log: log.Named("write_stats")}
}

func (j *ReportWriteStatsJob) Name() string { return "report_write_stats" }

func (j *ReportWriteStatsJob) Description() string {
	return "Warns about failed or dropped persistence writes"
}

// Run is only ever called by one goroutine at a time.
func (j *ReportWriteStatsJob) Run(context.Context) error {
	now := j.source.WriteStats()
	failed := now.Failed - j.last.Failed
	dropped := now.Dropped - j.last.Dropped
	j.last = now

	if failed == 0 && dropped == 0 {
		return nil
	}
	j.log.Warn("persistence writes lost since last report",
		logger.Int64("failed", int64(failed)),
		logger.Int64("dropped", int64(dropped)),
		logger.Int64("succeeded_total", int64(now.Succeeded)),
	)
	return nil
}
