package attendance

import (
	"encoding/json"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
)

// EvidenceURLFunc turns a stored evidence path into a URL clients can open.
type EvidenceURLFunc func(path string) string

func mapRecordToResponse(rec attendance.Record, zone businesstime.Zone, evidenceURL EvidenceURLFunc) attendance.RecordResponse {
	resp := attendance.RecordResponse{
		ID:                 rec.ID,
		PersonID:           rec.PersonID,
		Partition:          string(rec.Partition),
		ExternalID:         rec.ExternalID,
		FullName:           rec.FullName,
		Email:              rec.Email,
		PhoneNumber:        rec.PhoneNumber,
		Site:               rec.Site,
		Brand:              rec.Brand,
		Timestamp:          rec.Timestamp.In(zone.Location()).Format(time.RFC3339),
		Day:                zone.Day(rec.Timestamp),
		EventType:          string(rec.EventType),
		VerificationMethod: rec.VerificationMethod,
		DeviceID:           rec.DeviceID,
		Status:             rec.Status,
		AutoConverted:      rec.AutoConverted,
		ConversionNote:     rec.ConversionNote,
		TotalDayEvents:     rec.TotalDayEvents,
	}
	if !rec.CreatedAt.IsZero() {
		resp.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
	}
	if rec.OriginalEventType != nil {
		original := string(*rec.OriginalEventType)
		resp.OriginalEventType = &original
	}
	if rec.EvidencePath != nil {
		url := *rec.EvidencePath
		if evidenceURL != nil {
			url = evidenceURL(url)
		}
		resp.EvidenceURL = &url
	}
	return resp
}

func mapRecordsToResponse(records []attendance.Record, zone businesstime.Zone, evidenceURL EvidenceURLFunc) []attendance.RecordResponse {
	out := make([]attendance.RecordResponse, len(records))
	for i, rec := range records {
		out[i] = mapRecordToResponse(rec, zone, evidenceURL)
	}
	return out
}

// toPayload flattens a JSON-tagged value into a notification payload.
func toPayload(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}
