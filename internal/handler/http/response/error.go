package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/auth"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/device"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/storage"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Auth domain errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		Unauthorized(w, err.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		Unauthorized(w, "Token expired")
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, auth.ErrAdminRequired):
		Forbidden(w, "Operator privilege required")

	// Attendance domain errors
	case errors.Is(err, attendance.ErrInvalidDate):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, attendance.ErrRecordNotFound):
		NotFound(w, "Attendance record not found")
	case errors.Is(err, attendance.ErrReconcileInProgress):
		Conflict(w, "Reconciliation already running for this day")
	case errors.Is(err, person.ErrPersonNotFound):
		NotFound(w, "Person not found")

	// Device errors
	case errors.Is(err, device.ErrWebhookURLRequired):
		BadRequest(w, "webhook_url is required", nil)
	case errors.Is(err, device.ErrDeviceRejected):
		BadGateway(w, "DEVICE_REJECTED", err.Error())
	case errors.Is(err, device.ErrDeviceUnreachable):
		BadGateway(w, "DEVICE_UNREACHABLE", err.Error())

	// Evidence storage
	case errors.Is(err, storage.ErrFileNotFound), errors.Is(err, storage.ErrInvalidPath):
		NotFound(w, "File not found")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
