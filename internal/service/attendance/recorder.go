package attendance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

// Recorder appends finalized records and announces them.
type Recorder struct {
	records     attendance.RecordRepository
	publisher   notification.Publisher
	zone        businesstime.Zone
	evidenceURL EvidenceURLFunc
	logger      *slog.Logger
}

func NewRecorder(records attendance.RecordRepository, publisher notification.Publisher, zone businesstime.Zone, evidenceURL EvidenceURLFunc, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		records:     records,
		publisher:   publisher,
		zone:        zone,
		evidenceURL: evidenceURL,
		logger:      logger,
	}
}

// Record stores rec and publishes new_record. A publish failure is logged
// and never undoes the write.
func (r *Recorder) Record(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	saved, err := r.records.Create(ctx, rec)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("record attendance: %w", err)
	}

	personID := saved.PersonID
	payload := toPayload(mapRecordToResponse(saved, r.zone, r.evidenceURL))
	if err := r.publisher.Publish(ctx, notification.EventNewRecord, &personID, payload); err != nil {
		r.logger.Warn("failed to publish new_record", "record_id", saved.ID, "error", err)
	}

	return saved, nil
}
