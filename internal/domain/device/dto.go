package device

import "github.com/cmlabs-hris/biometric-attendance/internal/pkg/validator"

// Info describes the terminal as reported by the device.
type Info struct {
	DeviceName      string `json:"device_name"`
	DeviceID        string `json:"device_id"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	MACAddress      string `json:"mac_address"`
	FirmwareVersion string `json:"firmware_version"`
}

type StatusResponse struct {
	Connected  bool   `json:"connected"`
	DeviceInfo *Info  `json:"device_info,omitempty"`
	Location   string `json:"location"`
	BrandID    string `json:"brand_id"`
	Error      string `json:"error,omitempty"`
}

type RegisterUserRequest struct {
	ExternalID string `json:"cedula"`
	FullName   string `json:"full_name"`
}

func (r *RegisterUserRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.ExternalID) {
		errs = append(errs, validator.ValidationError{
			Field:   "cedula",
			Message: "cedula is required",
		})
	} else if !validator.IsNumeric(r.ExternalID) {
		errs = append(errs, validator.ValidationError{
			Field:   "cedula",
			Message: "cedula must be numeric",
		})
	}
	if validator.IsEmpty(r.FullName) {
		errs = append(errs, validator.ValidationError{
			Field:   "full_name",
			Message: "full_name is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type RegisterUserResponse struct {
	ExternalID     string `json:"cedula"`
	AlreadyPresent bool   `json:"already_present"`
}

type SyncFailure struct {
	ExternalID string `json:"cedula"`
	FullName   string `json:"full_name"`
	Error      string `json:"error"`
}

type SyncResult struct {
	Total          int           `json:"total"`
	Registered     int           `json:"registered"`
	AlreadyPresent int           `json:"already_present"`
	Skipped        int           `json:"skipped"`
	Failed         int           `json:"failed"`
	Failures       []SyncFailure `json:"failures"`
}

// ConfigureRequest overrides the configured values for one run.
type ConfigureRequest struct {
	WebhookURL string `json:"webhook_url"`
	TimeZone   string `json:"time_zone"`
	NTPServer  string `json:"ntp_server"`
}

type ConfigureStep struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type ConfigureResponse struct {
	WebhookURL string          `json:"webhook_url"`
	Steps      []ConfigureStep `json:"steps"`
}
