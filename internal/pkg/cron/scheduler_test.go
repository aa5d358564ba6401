package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return at
}

func TestDailyAt(t *testing.T) {
	schedule := DailyAt(businesstime.Default(), 30*time.Second)

	next := schedule(mustTime(t, "2025-03-11T18:00:00-05:00"))
	assert.True(t, next.Equal(mustTime(t, "2025-03-12T00:00:30-05:00")), next.String())

	next = schedule(mustTime(t, "2025-03-12T00:00:10-05:00"))
	assert.True(t, next.Equal(mustTime(t, "2025-03-12T00:00:30-05:00")), next.String())

	next = schedule(mustTime(t, "2025-03-12T00:00:30-05:00"))
	assert.True(t, next.Equal(mustTime(t, "2025-03-13T00:00:30-05:00")), next.String())
}

func TestScheduler_KeepsRunningAfterFailure(t *testing.T) {
	s := NewScheduler()
	var runs int32
	s.AddJob("flaky", Every(5*time.Millisecond), func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("boom")
	})

	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
	s.Stop()

	stopped := atomic.LoadInt32(&runs)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&runs))
}

func TestScheduler_DoesNotRunBeforeSchedule(t *testing.T) {
	s := NewScheduler()
	var runs int32
	s.AddJob("hourly", Every(time.Hour), func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	})

	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

type stubReconciler struct {
	report attendance.ReconcileReport
	err    error
	calls  int
}

func (r *stubReconciler) ReconcileDay(ctx context.Context, dayStart time.Time) (attendance.ReconcileReport, error) {
	return r.report, r.err
}

func (r *stubReconciler) ReconcilePreviousDay(ctx context.Context) (attendance.ReconcileReport, error) {
	r.calls++
	return r.report, r.err
}

func TestAttendanceJobs_ReconcilePreviousDay(t *testing.T) {
	ok := &stubReconciler{report: attendance.ReconcileReport{Day: "2025-03-11", Converted: 2}}
	jobs := NewAttendanceJobs(ok, businesstime.Default(), 30*time.Second)
	assert.NoError(t, jobs.ReconcilePreviousDay(context.Background()))
	assert.Equal(t, 1, ok.calls)

	held := &stubReconciler{err: attendance.ErrReconcileInProgress}
	assert.NoError(t, NewAttendanceJobs(held, businesstime.Default(), 0).ReconcilePreviousDay(context.Background()))

	failing := &stubReconciler{err: errors.New("db down")}
	assert.Error(t, NewAttendanceJobs(failing, businesstime.Default(), 0).ReconcilePreviousDay(context.Background()))
}

func TestAttendanceJobs_RegisterJobs(t *testing.T) {
	s := NewScheduler()
	rec := &stubReconciler{}
	NewAttendanceJobs(rec, businesstime.Default(), 30*time.Second).RegisterJobs(s)

	require.Len(t, s.jobs, 1)
	assert.Equal(t, "reconcile_previous_day", s.jobs[0].Name)

	s.RunOnce(context.Background())
	assert.Equal(t, 1, rec.calls)
}
