package attendance

import (
	"context"
	"time"
)

// IngestionService turns raw device events into attendance records.
type IngestionService interface {
	// Ingest runs one raw event through normalization, directory lookup,
	// authorization, cooldown and direction inference, then records it.
	// Business rejections are reported in the result; only store failures
	// return an error.
	Ingest(ctx context.Context, raw RawDeviceEvent, opts IngestOptions) (IngestResult, error)
}

// ReconcileService repairs forgotten check-outs.
type ReconcileService interface {
	// ReconcileDay applies the end-of-day policy to the business-local day
	// starting at dayStart.
	ReconcileDay(ctx context.Context, dayStart time.Time) (ReconcileReport, error)

	// ReconcilePreviousDay reconciles the day before now.
	ReconcilePreviousDay(ctx context.Context) (ReconcileReport, error)
}

// QueryService serves the admin read endpoints.
type QueryService interface {
	ListRecords(ctx context.Context, filter RecordFilter) (ListRecordsResponse, error)
	GetToday(ctx context.Context, personID string) (TodayResponse, error)
	GetTodaySummary(ctx context.Context) (SummaryResponse, error)
}
