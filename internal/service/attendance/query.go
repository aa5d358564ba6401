package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

type QueryServiceImpl struct {
	records     attendance.RecordRepository
	zone        businesstime.Zone
	evidenceURL EvidenceURLFunc
	now         func() time.Time
}

func NewQueryService(records attendance.RecordRepository, zone businesstime.Zone, evidenceURL EvidenceURLFunc) *QueryServiceImpl {
	return &QueryServiceImpl{
		records:     records,
		zone:        zone,
		evidenceURL: evidenceURL,
		now:         time.Now,
	}
}

// ListRecords implements attendance.QueryService.
func (q *QueryServiceImpl) ListRecords(ctx context.Context, filter attendance.RecordFilter) (attendance.ListRecordsResponse, error) {
	if err := filter.Validate(); err != nil {
		return attendance.ListRecordsResponse{}, err
	}

	if filter.StartDate != nil && *filter.StartDate != "" {
		start, err := q.zone.ParseDay(*filter.StartDate)
		if err != nil {
			return attendance.ListRecordsResponse{}, fmt.Errorf("%w: %v", attendance.ErrInvalidDate, err)
		}
		filter.From = &start
	}
	if filter.EndDate != nil && *filter.EndDate != "" {
		day, err := q.zone.ParseDay(*filter.EndDate)
		if err != nil {
			return attendance.ListRecordsResponse{}, fmt.Errorf("%w: %v", attendance.ErrInvalidDate, err)
		}
		_, end := q.zone.DayBounds(day)
		filter.To = &end
	}
	if filter.ExternalID != nil {
		trimmed := strings.TrimSpace(*filter.ExternalID)
		filter.ExternalID = &trimmed
	}

	records, err := q.records.List(ctx, filter)
	if err != nil {
		return attendance.ListRecordsResponse{}, fmt.Errorf("failed to list attendance records: %w", err)
	}

	return attendance.ListRecordsResponse{
		Count:   len(records),
		Records: mapRecordsToResponse(records, q.zone, q.evidenceURL),
	}, nil
}

// GetToday implements attendance.QueryService. Records are oldest first.
func (q *QueryServiceImpl) GetToday(ctx context.Context, personID string) (attendance.TodayResponse, error) {
	now := q.now()
	start, end := q.zone.DayBounds(now)

	records, err := q.records.List(ctx, attendance.RecordFilter{
		PersonID: &personID,
		From:     &start,
		To:       &end,
		Limit:    attendance.MaxListLimit,
	})
	if err != nil {
		return attendance.TodayResponse{}, fmt.Errorf("failed to list today's records: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return attendance.TodayResponse{
		PersonID: personID,
		Day:      q.zone.Day(now),
		Count:    len(records),
		Records:  mapRecordsToResponse(records, q.zone, q.evidenceURL),
	}, nil
}

// GetTodaySummary implements attendance.QueryService. A person is present
// when their latest record today is a check_in.
func (q *QueryServiceImpl) GetTodaySummary(ctx context.Context) (attendance.SummaryResponse, error) {
	now := q.now()
	start, end := q.zone.DayBounds(now)

	records, err := q.records.ListBetween(ctx, start, end)
	if err != nil {
		return attendance.SummaryResponse{}, fmt.Errorf("failed to list today's records: %w", err)
	}

	summary := attendance.DailySummary{TotalRecords: len(records)}
	lastByPerson := make(map[string]attendance.EventType)
	for _, rec := range records {
		switch rec.EventType {
		case attendance.CheckIn:
			summary.TotalCheckIns++
		case attendance.CheckOut:
			summary.TotalCheckOuts++
		}
		lastByPerson[rec.PersonID] = rec.EventType
	}
	for _, et := range lastByPerson {
		if et == attendance.CheckIn {
			summary.CurrentlyPresent++
		}
	}

	return attendance.SummaryResponse{
		Day:     q.zone.Day(now),
		Summary: summary,
		Records: mapRecordsToResponse(records, q.zone, q.evidenceURL),
	}, nil
}
