package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
)

// CooldownGuard suppresses repeated reads of the same finger or face.
type CooldownGuard struct {
	records attendance.RecordRepository
}

func NewCooldownGuard(records attendance.RecordRepository) *CooldownGuard {
	return &CooldownGuard{records: records}
}

// IsWithinCooldown compares at with the person's latest record on any day.
// The event is blocked iff 0 <= at - last < window. An event older than the
// latest record is let through.
func (g *CooldownGuard) IsWithinCooldown(ctx context.Context, personID string, at time.Time, window time.Duration) (attendance.CooldownResult, error) {
	last, err := g.records.GetLatestByPerson(ctx, personID)
	if err != nil {
		return attendance.CooldownResult{}, fmt.Errorf("cooldown lookup: %w", err)
	}
	if last == nil {
		return attendance.CooldownResult{Blocked: false}, nil
	}

	delta := at.Sub(last.Timestamp)
	seconds := delta.Seconds()
	return attendance.CooldownResult{
		Blocked:          delta >= 0 && delta < window,
		SecondsSinceLast: &seconds,
	}, nil
}
