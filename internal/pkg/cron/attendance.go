package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

type AttendanceJobs struct {
	reconciler attendance.ReconcileService
	zone       businesstime.Zone
	runAt      time.Duration
}

// NewAttendanceJobs schedules end-of-day reconciliation runAt after each
// business-local midnight.
func NewAttendanceJobs(reconciler attendance.ReconcileService, zone businesstime.Zone, runAt time.Duration) *AttendanceJobs {
	return &AttendanceJobs{
		reconciler: reconciler,
		zone:       zone,
		runAt:      runAt,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("reconcile_previous_day", DailyAt(j.zone, j.runAt), j.ReconcilePreviousDay)
}

// ReconcilePreviousDay closes yesterday's forgotten check-outs. A run
// already held by another replica is not an error.
func (j *AttendanceJobs) ReconcilePreviousDay(ctx context.Context) error {
	slog.Info("Cron: Starting end-of-day reconciliation")

	report, err := j.reconciler.ReconcilePreviousDay(ctx)
	if errors.Is(err, attendance.ErrReconcileInProgress) {
		slog.Info("Cron: Reconciliation held by another instance", "day", report.Day)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", report.Day, err)
	}

	slog.Info("Cron: Reconciliation finished",
		"day", report.Day,
		"converted", report.Converted,
		"skipped_single", report.SkippedSingle,
	)
	return nil
}
