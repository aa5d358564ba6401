package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

// DirectionInferencer alternates check_in and check_out per person per
// business-local day.
type DirectionInferencer struct {
	records attendance.RecordRepository
	zone    businesstime.Zone
}

func NewDirectionInferencer(records attendance.RecordRepository, zone businesstime.Zone) *DirectionInferencer {
	return &DirectionInferencer{records: records, zone: zone}
}

// DetermineDirection returns check_in for the first event of the day and the
// opposite of the latest same-day record otherwise.
func (d *DirectionInferencer) DetermineDirection(ctx context.Context, personID string, at time.Time) (attendance.EventType, error) {
	start, end := d.zone.DayBounds(at)

	last, err := d.records.GetLatestByPersonBetween(ctx, personID, start, end)
	if err != nil {
		return "", fmt.Errorf("direction lookup: %w", err)
	}
	if last == nil {
		return attendance.CheckIn, nil
	}
	return last.EventType.Flip(), nil
}
