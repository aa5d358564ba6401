package hikvision

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
)

// ErrUnrecognizedPayload is returned when a body is neither JSON, XML nor a
// multipart envelope around them.
var ErrUnrecognizedPayload = errors.New("hikvision: unrecognized event payload")

const (
	accessControllerEvent = "AccessControllerEvent"
	maxPartSize           = 10 << 20
)

// DecodeEvents extracts the access events carried by one webhook body.
// Heartbeats and other non-access events are skipped, so an empty result
// with a nil error is normal.
func DecodeEvents(contentType string, body []byte) ([]attendance.RawDeviceEvent, error) {
	mediaType, params, _ := mime.ParseMediaType(contentType)

	boundary := ""
	if strings.HasPrefix(mediaType, "multipart/") {
		boundary = params["boundary"]
	}
	if boundary == "" {
		boundary = sniffBoundary(body)
	}
	if boundary != "" {
		return decodeMultipart(body, boundary)
	}

	events, ok := decodePart(mediaType, body)
	if !ok {
		return nil, ErrUnrecognizedPayload
	}
	return events, nil
}

// sniffBoundary recovers the boundary of a multipart body posted without
// its Content-Type parameter.
func sniffBoundary(body []byte) string {
	trimmed := bytes.TrimLeft(body, "\r\n\t ")
	if !bytes.HasPrefix(trimmed, []byte("--")) {
		return ""
	}
	line, _, _ := bytes.Cut(trimmed[2:], []byte("\n"))
	return strings.TrimSpace(string(line))
}

func decodeMultipart(body []byte, boundary string) ([]attendance.RawDeviceEvent, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)

	events := []attendance.RawDeviceEvent{}
	var pending *attendance.Evidence
	recognized := false

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if recognized {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrUnrecognizedPayload, err)
		}

		data, err := io.ReadAll(io.LimitReader(part, maxPartSize))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("hikvision: read multipart part: %w", err)
		}

		contentType := part.Header.Get("Content-Type")
		if isImage(contentType) {
			recognized = true
			evidence := &attendance.Evidence{ContentType: normalizeImageType(contentType), Data: data}
			if n := len(events); n > 0 && events[n-1].Evidence == nil {
				events[n-1].Evidence = evidence
			} else {
				pending = evidence
			}
			continue
		}

		mediaType, _, _ := mime.ParseMediaType(contentType)
		decoded, ok := decodePart(mediaType, data)
		if !ok {
			continue
		}
		recognized = true
		for _, ev := range decoded {
			if pending != nil {
				ev.Evidence, pending = pending, nil
			}
			events = append(events, ev)
		}
	}

	if !recognized {
		return nil, ErrUnrecognizedPayload
	}
	return events, nil
}

// decodePart decodes a single JSON or XML document. ok is false when the
// data is neither.
func decodePart(mediaType string, data []byte) ([]attendance.RawDeviceEvent, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, false
	}

	switch {
	case strings.Contains(mediaType, "xml") || trimmed[0] == '<':
		return decodeXML(trimmed)
	case strings.Contains(mediaType, "json") || trimmed[0] == '{':
		if events, ok := decodeJSON(trimmed); ok {
			return events, true
		}
	}

	if embedded, ok := extractJSON(trimmed); ok {
		return decodeJSON(embedded)
	}
	return nil, false
}

// extractJSON finds the widest parseable object between the first '{' and
// a closing '}', shrinking from the end.
func extractJSON(data []byte) ([]byte, bool) {
	start := bytes.IndexByte(data, '{')
	if start < 0 {
		return nil, false
	}
	end := bytes.LastIndexByte(data, '}')
	for end > start {
		candidate := data[start : end+1]
		if json.Valid(candidate) {
			return candidate, true
		}
		end = bytes.LastIndexByte(data[:end], '}')
	}
	return nil, false
}

func decodeJSON(data []byte) ([]attendance.RawDeviceEvent, bool) {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, false
	}

	if ace, ok := doc[accessControllerEvent].(map[string]any); ok {
		return []attendance.RawDeviceEvent{fromEnvelope(doc, ace)}, true
	}
	if ev, ok := fromFlat(doc); ok {
		return []attendance.RawDeviceEvent{ev}, true
	}
	return []attendance.RawDeviceEvent{}, true
}

// fromEnvelope reads the terminal's own JSON event format.
func fromEnvelope(doc, ace map[string]any) attendance.RawDeviceEvent {
	return attendance.RawDeviceEvent{
		ExternalID: firstString(ace, "employeeNoString", "employeeNo", "cardNo", "serialNo"),
		Method: firstNonEmpty(
			firstString(ace, "currentVerifyMode", "attendanceStatus"),
			attendance.DefaultVerificationMethod,
		),
		Timestamp: firstString(doc, "dateTime"),
		DeviceID:  firstString(doc, "deviceID", "ipAddress", "macAddress"),
		Metadata:  doc,
		Pictures:  pictureCount(firstString(ace, "picturesNumber")),
	}
}

var flatKeys = []string{
	"cedula", "employeeNoString", "employeeNo", "cardNo",
	"method", "attendanceStatus", "currentVerifyMode",
	"timestamp", "dateTime",
}

// fromFlat reads the simplified JSON shape posted by integrations and
// tests. Documents with none of the known keys, or heartbeats of another
// event type, are not events.
func fromFlat(doc map[string]any) (attendance.RawDeviceEvent, bool) {
	known := false
	for _, key := range flatKeys {
		if _, ok := doc[key]; ok {
			known = true
			break
		}
	}
	if !known {
		return attendance.RawDeviceEvent{}, false
	}

	ev := attendance.RawDeviceEvent{
		ExternalID: firstString(doc, "cedula", "employeeNoString", "employeeNo", "cardNo"),
		Method:     firstString(doc, "method", "attendanceStatus", "currentVerifyMode"),
		Timestamp:  firstString(doc, "timestamp", "dateTime"),
		DeviceID:   firstString(doc, "deviceId", "device_id", "deviceID", "ipAddress"),
		Metadata:   doc,
	}
	if eventType := firstString(doc, "eventType"); ev.ExternalID == "" && eventType != "" && eventType != accessControllerEvent {
		return attendance.RawDeviceEvent{}, false
	}
	return ev, true
}

type accessFields struct {
	EmployeeNoString  string `xml:"employeeNoString"`
	EmployeeNo        string `xml:"employeeNo"`
	CardNo            string `xml:"cardNo"`
	SerialNo          string `xml:"serialNo"`
	AttendanceStatus  string `xml:"attendanceStatus"`
	CurrentVerifyMode string `xml:"currentVerifyMode"`
	PicturesNumber    string `xml:"picturesNumber"`
}

type eventNotificationAlert struct {
	XMLName          xml.Name `xml:"EventNotificationAlert"`
	IPAddress        string   `xml:"ipAddress"`
	MACAddress       string   `xml:"macAddress"`
	DateTime         string   `xml:"dateTime"`
	EventType        string   `xml:"eventType"`
	EventState       string   `xml:"eventState"`
	EventDescription string   `xml:"eventDescription"`
	accessFields
	AccessControllerEvent *accessFields `xml:"AccessControllerEvent"`
}

func decodeXML(data []byte) ([]attendance.RawDeviceEvent, bool) {
	var alert eventNotificationAlert
	if err := xml.Unmarshal(data, &alert); err != nil {
		return nil, false
	}

	fields := alert.accessFields
	if nested := alert.AccessControllerEvent; nested != nil {
		fields = accessFields{
			EmployeeNoString:  firstNonEmpty(nested.EmployeeNoString, fields.EmployeeNoString),
			EmployeeNo:        firstNonEmpty(nested.EmployeeNo, fields.EmployeeNo),
			CardNo:            firstNonEmpty(nested.CardNo, fields.CardNo),
			SerialNo:          firstNonEmpty(nested.SerialNo, fields.SerialNo),
			AttendanceStatus:  firstNonEmpty(nested.AttendanceStatus, fields.AttendanceStatus),
			CurrentVerifyMode: firstNonEmpty(nested.CurrentVerifyMode, fields.CurrentVerifyMode),
			PicturesNumber:    firstNonEmpty(nested.PicturesNumber, fields.PicturesNumber),
		}
	}

	ev := attendance.RawDeviceEvent{
		ExternalID: firstNonEmpty(fields.EmployeeNoString, fields.EmployeeNo, fields.CardNo, fields.SerialNo),
		Method:     firstNonEmpty(fields.AttendanceStatus, fields.CurrentVerifyMode),
		Timestamp:  alert.DateTime,
		DeviceID:   firstNonEmpty(alert.IPAddress, alert.MACAddress),
		Metadata: map[string]any{
			"format":           "xml",
			"eventType":        alert.EventType,
			"eventState":       alert.EventState,
			"eventDescription": alert.EventDescription,
			"ipAddress":        alert.IPAddress,
		},
		Pictures: pictureCount(fields.PicturesNumber),
	}

	if ev.ExternalID == "" && alert.EventType != accessControllerEvent && alert.AccessControllerEvent == nil {
		return []attendance.RawDeviceEvent{}, true
	}
	return []attendance.RawDeviceEvent{ev}, true
}

func pictureCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func firstString(doc map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringValue(doc[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func isImage(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "jpeg") || strings.Contains(ct, "jpg") || strings.Contains(ct, "png")
}

func normalizeImageType(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "png") {
		return "image/png"
	}
	return "image/jpeg"
}
