package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type attendanceRepository struct {
	db *database.DB
}

// NewAttendanceRepository creates the attendance log repository
func NewAttendanceRepository(db *database.DB) attendance.RecordRepository {
	return &attendanceRepository{db: db}
}

const recordColumns = `
	id, person_id, partition, external_id, full_name, email, phone_number,
	site, brand, event_timestamp, event_type, verification_method, device_id, status,
	evidence_path, auto_converted, original_event_type, conversion_note, total_day_events,
	converted_at, created_at`

func scanRecord(row pgx.Row) (attendance.Record, error) {
	var rec attendance.Record
	var partition, eventType string
	var originalEventType *string

	err := row.Scan(
		&rec.ID, &rec.PersonID, &partition, &rec.ExternalID, &rec.FullName, &rec.Email, &rec.PhoneNumber,
		&rec.Site, &rec.Brand, &rec.Timestamp, &eventType, &rec.VerificationMethod, &rec.DeviceID, &rec.Status,
		&rec.EvidencePath, &rec.AutoConverted, &originalEventType, &rec.ConversionNote, &rec.TotalDayEvents,
		&rec.ConvertedAt, &rec.CreatedAt,
	)
	if err != nil {
		return attendance.Record{}, err
	}

	rec.Partition = person.Partition(partition)
	rec.EventType = attendance.EventType(eventType)
	if originalEventType != nil {
		et := attendance.EventType(*originalEventType)
		rec.OriginalEventType = &et
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]attendance.Record, error) {
	defer rows.Close()

	records := make([]attendance.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance records: %w", err)
	}
	return records, nil
}

// Create implements attendance.RecordRepository.
func (a *attendanceRepository) Create(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO attendance_records (
			id, person_id, partition, external_id, full_name, email, phone_number,
			site, brand, event_timestamp, event_type, verification_method, device_id,
			status, evidence_path
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		) RETURNING created_at
	`

	err := q.QueryRow(ctx, query,
		rec.ID,
		rec.PersonID,
		string(rec.Partition),
		rec.ExternalID,
		rec.FullName,
		rec.Email,
		rec.PhoneNumber,
		rec.Site,
		rec.Brand,
		rec.Timestamp,
		string(rec.EventType),
		rec.VerificationMethod,
		rec.DeviceID,
		rec.Status,
		rec.EvidencePath,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("failed to create attendance record: %w", err)
	}

	return rec, nil
}

// GetLatestByPerson implements attendance.RecordRepository.
func (a *attendanceRepository) GetLatestByPerson(ctx context.Context, personID string) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE person_id = $1
		ORDER BY event_timestamp DESC, created_at DESC
		LIMIT 1`

	rec, err := scanRecord(q.QueryRow(ctx, query, personID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return &rec, nil
}

// GetLatestByPersonBetween implements attendance.RecordRepository.
func (a *attendanceRepository) GetLatestByPersonBetween(ctx context.Context, personID string, start, end time.Time) (*attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE person_id = $1
		  AND event_timestamp >= $2
		  AND event_timestamp <= $3
		ORDER BY event_timestamp DESC, created_at DESC
		LIMIT 1`

	rec, err := scanRecord(q.QueryRow(ctx, query, personID, start, end))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest record in window: %w", err)
	}
	return &rec, nil
}

// ListBetween implements attendance.RecordRepository.
func (a *attendanceRepository) ListBetween(ctx context.Context, start, end time.Time) ([]attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	query := `SELECT ` + recordColumns + `
		FROM attendance_records
		WHERE event_timestamp >= $1
		  AND event_timestamp <= $2
		ORDER BY event_timestamp ASC, created_at ASC`

	rows, err := q.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance records: %w", err)
	}
	return collectRecords(rows)
}

// List implements attendance.RecordRepository.
func (a *attendanceRepository) List(ctx context.Context, filter attendance.RecordFilter) ([]attendance.Record, error) {
	q := GetQuerier(ctx, a.db)

	where := "1 = 1"
	args := []interface{}{}
	argIdx := 1

	addEq := func(column string, value *string) {
		if value == nil || *value == "" {
			return
		}
		where += fmt.Sprintf(" AND %s = $%d", column, argIdx)
		args = append(args, *value)
		argIdx++
	}

	addEq("external_id", filter.ExternalID)
	addEq("partition", filter.Partition)
	addEq("event_type", filter.EventType)
	addEq("site", filter.Site)
	addEq("brand", filter.Brand)
	addEq("person_id", filter.PersonID)

	if filter.From != nil {
		where += fmt.Sprintf(" AND event_timestamp >= $%d", argIdx)
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND event_timestamp <= $%d", argIdx)
		args = append(args, *filter.To)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = attendance.DefaultListLimit
	}

	query := fmt.Sprintf(`SELECT %s
		FROM attendance_records
		WHERE %s
		ORDER BY event_timestamp DESC, created_at DESC
		LIMIT $%d`, recordColumns, where, argIdx)
	args = append(args, limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance records: %w", err)
	}
	return collectRecords(rows)
}

// ApplyConversions implements attendance.RecordRepository.
func (a *attendanceRepository) ApplyConversions(ctx context.Context, conversions []attendance.Conversion) error {
	if len(conversions) == 0 {
		return nil
	}

	return WithTransaction(ctx, a.db, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			UPDATE attendance_records
			SET event_type = $2,
				auto_converted = TRUE,
				original_event_type = event_type,
				conversion_note = $3,
				total_day_events = $4,
				converted_at = $5
			WHERE id = $1
			  AND event_type = $6
			  AND auto_converted = FALSE
		`

		for _, c := range conversions {
			tag, err := tx.Exec(ctx, query,
				c.RecordID,
				string(attendance.CheckOut),
				c.Note,
				c.TotalDayEvents,
				c.ConvertedAt,
				string(attendance.CheckIn),
			)
			if err != nil {
				return fmt.Errorf("failed to convert record %s: %w", c.RecordID, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("convert record %s: %w", c.RecordID, attendance.ErrRecordNotFound)
			}
		}
		return nil
	})
}
