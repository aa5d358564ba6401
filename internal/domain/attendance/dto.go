package attendance

import (
	"strconv"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/validator"
)

// ========================================
// INGESTION
// ========================================

// IngestOutcome classifies what happened to one raw event.
type IngestOutcome string

const (
	OutcomeRecorded     IngestOutcome = "recorded"
	OutcomeDropped      IngestOutcome = "dropped"
	OutcomeUnknownUser  IngestOutcome = "unknown_user"
	OutcomeUnauthorized IngestOutcome = "unauthorized"
	OutcomeCooldown     IngestOutcome = "cooldown"
)

// IngestOptions carries process-lifecycle state into the pipeline.
type IngestOptions struct {
	// NotBefore drops events whose timestamp is earlier than this instant.
	// Zero disables the check.
	NotBefore time.Time
}

type IngestResult struct {
	Outcome   IngestOutcome
	RecordID  string
	EventType EventType
	Reason    string
}

// LookupResult is the tagged result of a directory lookup.
type LookupResult struct {
	Found  bool
	Person person.Person
}

type AuthorizationResult struct {
	Authorized     bool
	HasSiteAccess  bool
	HasBrandAccess bool
	Reasons        []string
}

type CooldownResult struct {
	Blocked          bool
	SecondsSinceLast *float64
}

// ========================================
// RECONCILIATION
// ========================================

type ReconcileReport struct {
	Day            string   `json:"day"`
	TotalRecords   int      `json:"total_records"`
	People         int      `json:"people"`
	Converted      int      `json:"converted"`
	SkippedSingle  int      `json:"skipped_single"`
	ConvertedIDs   []string `json:"converted_ids"`
	Skipped        bool     `json:"skipped,omitempty"`
	FailureMessage string   `json:"failure,omitempty"`
}

// ========================================
// QUERIES
// ========================================

type RecordFilter struct {
	ExternalID *string
	Partition  *string
	EventType  *string
	Site       *string
	Brand      *string
	PersonID   *string
	StartDate  *string
	EndDate    *string
	Limit      int

	// Resolved by the service from StartDate/EndDate.
	From *time.Time
	To   *time.Time
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

func (f *RecordFilter) Validate() error {
	var errs validator.ValidationErrors

	// Enum validation
	if f.EventType != nil && *f.EventType != "" {
		validEventTypes := []string{string(CheckIn), string(CheckOut)}
		if !validator.IsInSlice(*f.EventType, validEventTypes) {
			errs = append(errs, validator.ValidationError{
				Field:   "event_type",
				Message: "event_type must be check_in or check_out",
			})
		}
	}

	if f.Partition != nil && *f.Partition != "" {
		validPartitions := []string{string(person.PartitionBarbers), string(person.PartitionWorkers)}
		if !validator.IsInSlice(*f.Partition, validPartitions) {
			errs = append(errs, validator.ValidationError{
				Field:   "partition",
				Message: "partition must be barbers or workers",
			})
		}
	}

	if f.ExternalID != nil && *f.ExternalID != "" && !validator.IsNumeric(*f.ExternalID) {
		errs = append(errs, validator.ValidationError{
			Field:   "external_id",
			Message: "external_id must be numeric",
		})
	}

	var start, end time.Time
	var startOK, endOK bool
	if f.StartDate != nil && *f.StartDate != "" {
		if start, startOK = validator.IsValidDate(*f.StartDate); !startOK {
			errs = append(errs, validator.ValidationError{
				Field:   "start_date",
				Message: "start_date must be in YYYY-MM-DD format",
			})
		}
	}
	if f.EndDate != nil && *f.EndDate != "" {
		if end, endOK = validator.IsValidDate(*f.EndDate); !endOK {
			errs = append(errs, validator.ValidationError{
				Field:   "end_date",
				Message: "end_date must be in YYYY-MM-DD format",
			})
		}
	}
	if startOK && endOK && end.Before(start) {
		errs = append(errs, validator.ValidationError{
			Field:   "end_date",
			Message: "end_date must not be before start_date",
		})
	}

	if f.Limit < 0 || f.Limit > MaxListLimit {
		errs = append(errs, validator.ValidationError{
			Field:   "limit",
			Message: "limit must be between 1 and " + strconv.Itoa(MaxListLimit),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	return nil
}

type RecordResponse struct {
	ID                 string  `json:"id"`
	PersonID           string  `json:"user_id"`
	Partition          string  `json:"user_collection"`
	ExternalID         string  `json:"cedula"`
	FullName           string  `json:"full_name"`
	Email              string  `json:"email"`
	PhoneNumber        string  `json:"phone_number"`
	Site               string  `json:"location"`
	Brand              string  `json:"brand_id"`
	Timestamp          string  `json:"timestamp"`
	Day                string  `json:"day"`
	EventType          string  `json:"event_type"`
	VerificationMethod string  `json:"verification_method"`
	DeviceID           string  `json:"device_id"`
	Status             string  `json:"status"`
	EvidenceURL        *string `json:"evidence_url,omitempty"`
	CreatedAt          string  `json:"created_at"`
	AutoConverted      bool    `json:"auto_converted,omitempty"`
	OriginalEventType  *string `json:"original_event_type,omitempty"`
	ConversionNote     *string `json:"conversion_note,omitempty"`
	TotalDayEvents     *int    `json:"total_day_events,omitempty"`
}

type ListRecordsResponse struct {
	Count   int              `json:"count"`
	Records []RecordResponse `json:"records"`
}

type TodayResponse struct {
	PersonID string           `json:"user_id"`
	Day      string           `json:"date"`
	Count    int              `json:"count"`
	Records  []RecordResponse `json:"records"`
}

type DailySummary struct {
	TotalRecords     int `json:"total_records"`
	TotalCheckIns    int `json:"total_check_ins"`
	TotalCheckOuts   int `json:"total_check_outs"`
	CurrentlyPresent int `json:"currently_present"`
}

type SummaryResponse struct {
	Day     string           `json:"date"`
	Summary DailySummary     `json:"summary"`
	Records []RecordResponse `json:"records"`
}
