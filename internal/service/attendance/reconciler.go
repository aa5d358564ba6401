package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/keylock"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
)

// ReconcilerImpl closes days where a person forgot to check out.
type ReconcilerImpl struct {
	records   attendance.RecordRepository
	publisher notification.Publisher
	locker    keylock.Locker
	zone      businesstime.Zone
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewReconciler(
	records attendance.RecordRepository,
	publisher notification.Publisher,
	locker keylock.Locker,
	zone businesstime.Zone,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ReconcilerImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcilerImpl{
		records:   records,
		publisher: publisher,
		locker:    locker,
		zone:      zone,
		metrics:   m,
		logger:    logger.With("component", "attendance.reconciler"),
		now:       time.Now,
	}
}

// ReconcilePreviousDay implements attendance.ReconcileService.
func (r *ReconcilerImpl) ReconcilePreviousDay(ctx context.Context) (attendance.ReconcileReport, error) {
	return r.ReconcileDay(ctx, r.zone.PreviousDay(r.now()))
}

// ReconcileDay implements attendance.ReconcileService. Conversions for the
// day are stored all together or not at all.
func (r *ReconcilerImpl) ReconcileDay(ctx context.Context, dayStart time.Time) (attendance.ReconcileReport, error) {
	start, end := r.zone.DayBounds(dayStart)
	day := r.zone.Day(start)
	report := attendance.ReconcileReport{Day: day, ConvertedIDs: []string{}}

	unlock, err := r.locker.TryLock(ctx, "reconciler:"+day)
	if err != nil {
		if errors.Is(err, keylock.ErrNotAcquired) {
			report.Skipped = true
			r.metrics.IncReconcileRun("skipped", 0)
			r.logger.Info("reconciliation already running elsewhere, skipping", "day", day)
			return report, attendance.ErrReconcileInProgress
		}
		return report, fmt.Errorf("reconcile lock: %w", err)
	}
	defer unlock()

	records, err := r.records.ListBetween(ctx, start, end)
	if err != nil {
		return r.fail(report, fmt.Errorf("load records for %s: %w", day, err))
	}
	report.TotalRecords = len(records)

	plan := PlanConversions(records, r.now().UTC())
	report.People = plan.People
	report.SkippedSingle = plan.SkippedSingle

	if len(plan.Conversions) > 0 {
		if err := r.records.ApplyConversions(ctx, plan.Conversions); err != nil {
			return r.fail(report, fmt.Errorf("apply conversions for %s: %w", day, err))
		}
	}

	for _, c := range plan.Conversions {
		report.ConvertedIDs = append(report.ConvertedIDs, c.RecordID)
	}
	report.Converted = len(plan.Conversions)

	r.metrics.IncReconcileRun("ok", report.Converted)
	r.logger.Info("reconciliation completed",
		"day", day,
		"total_records", report.TotalRecords,
		"people", report.People,
		"converted", report.Converted,
		"skipped_single", report.SkippedSingle,
	)
	r.publishReport(ctx, report)

	return report, nil
}

func (r *ReconcilerImpl) fail(report attendance.ReconcileReport, err error) (attendance.ReconcileReport, error) {
	report.FailureMessage = err.Error()
	report.ConvertedIDs = []string{}
	r.metrics.IncReconcileRun("failed", 0)
	r.logger.Error("reconciliation failed", "day", report.Day, "error", err)
	r.publishReport(context.Background(), report)
	return report, err
}

func (r *ReconcilerImpl) publishReport(ctx context.Context, report attendance.ReconcileReport) {
	if err := r.publisher.Publish(ctx, notification.EventReconciliationCompleted, nil, toPayload(report)); err != nil {
		r.logger.Warn("failed to publish reconciliation report", "day", report.Day, "error", err)
	}
}

// ConversionPlan is the outcome of applying the end-of-day policy to one day.
type ConversionPlan struct {
	Conversions   []attendance.Conversion
	People        int
	SkippedSingle int
}

// PlanConversions groups a day's records by person and picks the trailing
// check_in of every person with more than one event that day. A lone
// check_in is left alone.
func PlanConversions(records []attendance.Record, now time.Time) ConversionPlan {
	groups := make(map[string][]attendance.Record)
	order := make([]string, 0)
	for _, rec := range records {
		if _, ok := groups[rec.PersonID]; !ok {
			order = append(order, rec.PersonID)
		}
		groups[rec.PersonID] = append(groups[rec.PersonID], rec)
	}

	plan := ConversionPlan{Conversions: []attendance.Conversion{}, People: len(order)}
	for _, personID := range order {
		events := groups[personID]
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].Timestamp.Equal(events[j].Timestamp) {
				return events[i].CreatedAt.Before(events[j].CreatedAt)
			}
			return events[i].Timestamp.Before(events[j].Timestamp)
		})

		last := events[len(events)-1]
		if last.EventType != attendance.CheckIn || last.AutoConverted {
			continue
		}
		if len(events) == 1 {
			plan.SkippedSingle++
			continue
		}

		plan.Conversions = append(plan.Conversions, attendance.Conversion{
			RecordID:       last.ID,
			PersonID:       personID,
			TotalDayEvents: len(events),
			Note: fmt.Sprintf(
				"Converted to check_out by end-of-day reconciliation: last of %d events was check_in",
				len(events),
			),
			ConvertedAt: now,
		})
	}
	return plan
}
