package attendance

import (
	"context"
	"time"
)

// RecordRepository is the attendance log.
type RecordRepository interface {
	// Create appends a record and returns it with ID and CreatedAt set.
	Create(ctx context.Context, record Record) (Record, error)

	// GetLatestByPerson returns the most recent record for a person on any
	// day, or nil when the person has none.
	GetLatestByPerson(ctx context.Context, personID string) (*Record, error)

	// GetLatestByPersonBetween returns the most recent record for a person
	// with start <= timestamp <= end, or nil.
	GetLatestByPersonBetween(ctx context.Context, personID string, start, end time.Time) (*Record, error)

	// ListBetween returns every record with start <= timestamp <= end,
	// ordered by timestamp ascending.
	ListBetween(ctx context.Context, start, end time.Time) ([]Record, error)

	// List returns records matching filter, newest first.
	List(ctx context.Context, filter RecordFilter) ([]Record, error)

	// ApplyConversions flips every listed record to check_out in a single
	// transaction. Either all conversions are stored or none are.
	ApplyConversions(ctx context.Context, conversions []Conversion) error
}
