package attendance

import (
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
)

// EventType is the inferred direction of an attendance event.
type EventType string

const (
	CheckIn  EventType = "check_in"
	CheckOut EventType = "check_out"
)

// Flip returns the opposite direction.
func (e EventType) Flip() EventType {
	if e == CheckIn {
		return CheckOut
	}
	return CheckIn
}

const (
	StatusSuccess = "success"

	DefaultVerificationMethod = "fingerPrint"
)

// Record is one finalized attendance event. Records are append-only; the
// reconciler may flip a trailing check_in once, setting the correction fields.
type Record struct {
	ID                 string
	PersonID           string
	Partition          person.Partition
	ExternalID         string
	FullName           string
	Email              string
	PhoneNumber        string
	Site               string
	Brand              string
	Timestamp          time.Time
	EventType          EventType
	VerificationMethod string
	DeviceID           string
	Status             string
	EvidencePath       *string
	CreatedAt          time.Time

	// Reconciliation markers
	AutoConverted     bool
	OriginalEventType *EventType
	ConversionNote    *string
	TotalDayEvents    *int
	ConvertedAt       *time.Time
}

// RawDeviceEvent is the unvalidated payload of one device event, already
// pulled out of its JSON/XML/multipart envelope.
type RawDeviceEvent struct {
	ExternalID string
	Method     string
	Timestamp  string
	DeviceID   string
	Site       string
	Brand      string
	Evidence   *Evidence
	Metadata   map[string]any

	// Pictures is how many image parts the device announced will follow
	// the event on the same stream.
	Pictures int
}

// Evidence is an image captured by the terminal alongside an event.
type Evidence struct {
	ContentType string
	Data        []byte
}

// Conversion is a reconciliation mutation: flip RecordID from check_in to
// check_out.
type Conversion struct {
	RecordID       string
	PersonID       string
	TotalDayEvents int
	Note           string
	ConvertedAt    time.Time
}
