package hikvision

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
)

const (
	xmlNamespace = "http://www.hikvision.com/ver20/XMLSchema"

	userValidFrom  = "2025-01-01T00:00:00"
	userValidUntil = "2035-12-31T23:59:59"

	subStatusEmployeeExists = "employeeNoAlreadyExist"
)

// ErrNoBoundary is returned when the alert stream response does not declare
// a multipart boundary.
var ErrNoBoundary = errors.New("hikvision: alert stream has no multipart boundary")

// Config addresses one terminal.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks ISAPI to a Hikvision access terminal.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := &DigestTransport{Username: cfg.Username, Password: cfg.Password}

	host := cfg.Host
	if cfg.Port > 0 && cfg.Port != 80 {
		host = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	return &Client{
		baseURL: "http://" + host,
		http:    &http.Client{Transport: transport, Timeout: cfg.Timeout},
		stream:  &http.Client{Transport: transport},
	}
}

// BaseURL is the scheme and authority requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is an ISAPI ResponseStatus returned with a non-2xx answer.
type StatusError struct {
	HTTPStatus    int    `json:"-" xml:"-"`
	StatusCode    int    `json:"statusCode" xml:"statusCode"`
	StatusString  string `json:"statusString" xml:"statusString"`
	SubStatusCode string `json:"subStatusCode" xml:"subStatusCode"`
	ErrorMsg      string `json:"errorMsg" xml:"errorMsg"`
}

func (e *StatusError) Error() string {
	msg := e.StatusString
	if msg == "" {
		msg = http.StatusText(e.HTTPStatus)
	}
	if e.SubStatusCode != "" {
		msg += " (" + e.SubStatusCode + ")"
	}
	return fmt.Sprintf("hikvision: device answered %d: %s", e.HTTPStatus, msg)
}

// IsAlreadyExists reports whether err says the user is already enrolled.
func IsAlreadyExists(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.SubStatusCode == subStatusEmployeeExists
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("hikvision: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hikvision: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPartSize))
	if err != nil {
		return nil, fmt.Errorf("hikvision: read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseStatusError(resp.StatusCode, data)
	}
	return data, nil
}

func parseStatusError(httpStatus int, data []byte) error {
	statusErr := &StatusError{HTTPStatus: httpStatus}
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '{':
		_ = json.Unmarshal(trimmed, statusErr)
	case trimmed[0] == '<':
		_ = xml.Unmarshal(trimmed, statusErr)
	}
	return statusErr
}

// DeviceInfo is the subset of /ISAPI/System/deviceInfo the admin API shows.
type DeviceInfo struct {
	DeviceName           string `xml:"deviceName" json:"device_name"`
	DeviceID             string `xml:"deviceID" json:"device_id"`
	Model                string `xml:"model" json:"model"`
	SerialNumber         string `xml:"serialNumber" json:"serial_number"`
	MACAddress           string `xml:"macAddress" json:"mac_address"`
	FirmwareVersion      string `xml:"firmwareVersion" json:"firmware_version"`
	FirmwareReleasedDate string `xml:"firmwareReleasedDate" json:"firmware_released_date"`
	DeviceType           string `xml:"deviceType" json:"device_type"`
}

func (c *Client) DeviceInfo(ctx context.Context) (DeviceInfo, error) {
	data, err := c.do(ctx, http.MethodGet, "/ISAPI/System/deviceInfo", "", nil)
	if err != nil {
		return DeviceInfo{}, err
	}
	var info DeviceInfo
	if err := xml.Unmarshal(data, &info); err != nil {
		return DeviceInfo{}, fmt.Errorf("hikvision: decode device info: %w", err)
	}
	return info, nil
}

type userInfoRecord struct {
	UserInfo userInfo `json:"UserInfo"`
}

type userInfo struct {
	EmployeeNo string      `json:"employeeNo"`
	Name       string      `json:"name"`
	UserType   string      `json:"userType"`
	Valid      userValid   `json:"Valid"`
	DoorRight  string      `json:"doorRight"`
	RightPlan  []rightPlan `json:"RightPlan"`
}

type userValid struct {
	Enable    bool   `json:"enable"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
}

type rightPlan struct {
	DoorNo         int    `json:"doorNo"`
	PlanTemplateNo string `json:"planTemplateNo"`
}

// RegisterUser enrolls a person on the terminal under their cedula.
// Biometrics are captured on the device afterwards.
func (c *Client) RegisterUser(ctx context.Context, employeeNo, name string) error {
	body, err := json.Marshal(userInfoRecord{UserInfo: userInfo{
		EmployeeNo: employeeNo,
		Name:       name,
		UserType:   "normal",
		Valid:      userValid{Enable: true, BeginTime: userValidFrom, EndTime: userValidUntil},
		DoorRight:  "1",
		RightPlan:  []rightPlan{{DoorNo: 1, PlanTemplateNo: "1"}},
	}})
	if err != nil {
		return fmt.Errorf("hikvision: encode user: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/ISAPI/AccessControl/UserInfo/Record?format=json", "application/json", body)
	return err
}

type httpHostNotification struct {
	XMLName                  xml.Name `xml:"HttpHostNotification"`
	ID                       int      `xml:"id"`
	URL                      string   `xml:"url"`
	ProtocolType             string   `xml:"protocolType"`
	ParameterFormatType      string   `xml:"parameterFormatType"`
	AddressingFormatType     string   `xml:"addressingFormatType"`
	HTTPAuthenticationMethod string   `xml:"httpAuthenticationMethod"`
}

// ConfigureHTTPHost points notification host 1 at webhookURL.
func (c *Client) ConfigureHTTPHost(ctx context.Context, webhookURL string) error {
	return c.putXML(ctx, "/ISAPI/Event/notification/httpHosts/1", httpHostNotification{
		ID:                       1,
		URL:                      webhookURL,
		ProtocolType:             "HTTP",
		ParameterFormatType:      "XML",
		AddressingFormatType:     "ipaddress",
		HTTPAuthenticationMethod: "none",
	})
}

type eventTrigger struct {
	XMLName            xml.Name `xml:"EventTrigger"`
	EventType          string   `xml:"eventType"`
	EventDescription   string   `xml:"eventDescription"`
	NotificationMethod string   `xml:"notificationMethod"`
}

// EnableAccessEventTrigger asks the terminal to push access events over HTTP.
// Not every firmware exposes this resource.
func (c *Client) EnableAccessEventTrigger(ctx context.Context) error {
	return c.putXML(ctx, "/ISAPI/Event/triggers/AccessControllerEvent", eventTrigger{
		EventType:          accessControllerEvent,
		EventDescription:   "Access Controller Event",
		NotificationMethod: "HTTP",
	})
}

type deviceTime struct {
	XMLName   xml.Name `xml:"Time"`
	Version   string   `xml:"version,attr"`
	Xmlns     string   `xml:"xmlns,attr"`
	TimeMode  string   `xml:"timeMode"`
	LocalTime string   `xml:"localTime"`
	TimeZone  string   `xml:"timeZone"`
}

// SetTime switches the clock to NTP mode in the given POSIX zone (Colombia
// is "CST+5:00:00"). localTime seeds the clock until the first sync.
func (c *Client) SetTime(ctx context.Context, timeZone string, localTime time.Time) error {
	return c.putXML(ctx, "/ISAPI/System/time", deviceTime{
		Version:   "2.0",
		Xmlns:     xmlNamespace,
		TimeMode:  "NTP",
		LocalTime: localTime.Format("2006-01-02T15:04:05"),
		TimeZone:  timeZone,
	})
}

type ntpServer struct {
	XMLName              xml.Name `xml:"NTPServer"`
	Version              string   `xml:"version,attr"`
	Xmlns                string   `xml:"xmlns,attr"`
	ID                   int      `xml:"id"`
	AddressingFormatType string   `xml:"addressingFormatType"`
	HostName             string   `xml:"hostName,omitempty"`
	IPAddress            string   `xml:"ipAddress,omitempty"`
	PortNo               int      `xml:"portNo"`
	SynchronizeInterval  int      `xml:"synchronizeInterval"`
}

// SetNTPServer configures NTP server 1, synchronizing every hour.
func (c *Client) SetNTPServer(ctx context.Context, server string) error {
	body := ntpServer{
		Version:             "2.0",
		Xmlns:               xmlNamespace,
		ID:                  1,
		PortNo:              123,
		SynchronizeInterval: 60,
	}
	if net.ParseIP(server) != nil {
		body.AddressingFormatType = "ipaddress"
		body.IPAddress = server
	} else {
		body.AddressingFormatType = "hostname"
		body.HostName = server
	}
	return c.putXML(ctx, "/ISAPI/System/time/ntpServers/1", body)
}

func (c *Client) putXML(ctx context.Context, path string, v any) error {
	body, err := xml.Marshal(v)
	if err != nil {
		return fmt.Errorf("hikvision: encode %s: %w", path, err)
	}
	_, err = c.do(ctx, http.MethodPut, path, "application/xml", append([]byte(xml.Header), body...))
	return err
}

// AlertStream is an open /ISAPI/Event/notification/alertStream connection.
type AlertStream struct {
	body   io.ReadCloser
	reader *multipart.Reader

	// held is a part read while looking for an announced picture.
	held []attendance.RawDeviceEvent
	err  error
}

// OpenAlertStream starts the long-lived event push. The stream stays open
// until ctx is cancelled, the device closes it, or Close is called.
func (c *Client) OpenAlertStream(ctx context.Context) (*AlertStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ISAPI/Event/notification/alertStream", nil)
	if err != nil {
		return nil, fmt.Errorf("hikvision: build request: %w", err)
	}
	req.Header.Set("Accept", "multipart/mixed")
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hikvision: open alert stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, parseStatusError(resp.StatusCode, data)
	}

	_, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	boundary := strings.Trim(params["boundary"], `"`)
	if boundary == "" {
		resp.Body.Close()
		return nil, ErrNoBoundary
	}
	return &AlertStream{body: resp.Body, reader: multipart.NewReader(resp.Body, boundary)}, nil
}

// Next blocks until the next part arrives and returns the access events it
// carries. When the last event announces pictures, the following part is
// read too and attached as its evidence. Heartbeats and unannounced
// pictures yield no events.
func (s *AlertStream) Next() ([]attendance.RawDeviceEvent, error) {
	events, err := s.take()
	if err != nil {
		return nil, err
	}
	if n := len(events); n > 0 && events[n-1].Pictures > 0 {
		s.attachPicture(&events[n-1])
	}
	return events, nil
}

func (s *AlertStream) take() ([]attendance.RawDeviceEvent, error) {
	if s.held != nil {
		events := s.held
		s.held = nil
		return events, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	events, _, err := s.readPart()
	return events, err
}

// attachPicture reads one more part. A picture goes to ev; anything else is
// held for the next call, and a read error is reported by the next call.
func (s *AlertStream) attachPicture(ev *attendance.RawDeviceEvent) {
	events, picture, err := s.readPart()
	switch {
	case err != nil:
		s.err = err
	case picture != nil:
		ev.Evidence = picture
	default:
		s.held = events
	}
}

func (s *AlertStream) readPart() ([]attendance.RawDeviceEvent, *attendance.Evidence, error) {
	part, err := s.reader.NextPart()
	if err != nil {
		return nil, nil, err
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxPartSize))
	if err != nil {
		return nil, nil, fmt.Errorf("hikvision: read alert part: %w", err)
	}

	contentType := part.Header.Get("Content-Type")
	if isImage(contentType) {
		return nil, &attendance.Evidence{ContentType: normalizeImageType(contentType), Data: data}, nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	events, _ := decodePart(mediaType, data)
	if events == nil {
		events = []attendance.RawDeviceEvent{}
	}
	return events, nil, nil
}

func (s *AlertStream) Close() error {
	return s.body.Close()
}
