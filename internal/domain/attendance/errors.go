package attendance

import (
	"errors"

	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

// Event rejection errors. Events failing these checks are dropped before
// any directory lookup.
var (
	ErrMissingExternalID     = errors.New("event has no personnel identifier")
	ErrImplausibleExternalID = errors.New("personnel identifier is not a plausible cedula")
	ErrInvalidMethod         = errors.New("event verification method is invalid")
	ErrInvalidTimestamp      = businesstime.ErrInvalidTimestamp
	ErrHistoricalEvent       = errors.New("event predates the ingestion window")
)

// General errors
var (
	ErrRecordNotFound      = errors.New("attendance record not found")
	ErrReconcileInProgress = errors.New("reconciliation already running for this day")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
)
