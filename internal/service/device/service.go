package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/device"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/hikvision"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/validator"
	"golang.org/x/sync/errgroup"
)

// Client is the subset of the ISAPI client the service drives.
type Client interface {
	DeviceInfo(ctx context.Context) (hikvision.DeviceInfo, error)
	RegisterUser(ctx context.Context, employeeNo, name string) error
	ConfigureHTTPHost(ctx context.Context, webhookURL string) error
	EnableAccessEventTrigger(ctx context.Context) error
	SetTime(ctx context.Context, timeZone string, localTime time.Time) error
	SetNTPServer(ctx context.Context, server string) error
}

type Config struct {
	Site            string
	Brand           string
	WebhookURL      string
	TimeZone        string
	NTPServer       string
	SyncConcurrency int
}

type ServiceImpl struct {
	client Client
	people person.Repository
	zone   businesstime.Zone
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewService(client Client, people person.Repository, zone businesstime.Zone, cfg Config, logger *slog.Logger) *ServiceImpl {
	if cfg.SyncConcurrency <= 0 {
		cfg.SyncConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceImpl{
		client: client,
		people: people,
		zone:   zone,
		cfg:    cfg,
		logger: logger.With("component", "device"),
		now:    time.Now,
	}
}

// classify tags a client error as a rejection or a connectivity failure.
func classify(err error) error {
	var statusErr *hikvision.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Errorf("%w: %v", device.ErrDeviceRejected, err)
	}
	return fmt.Errorf("%w: %v", device.ErrDeviceUnreachable, err)
}

// Status implements device.Service. An unreachable device is reported in
// the response, not as an error.
func (s *ServiceImpl) Status(ctx context.Context) device.StatusResponse {
	resp := device.StatusResponse{Location: s.cfg.Site, BrandID: s.cfg.Brand}

	info, err := s.client.DeviceInfo(ctx)
	if err != nil {
		s.logger.Warn("device status check failed", "error", err)
		resp.Error = classify(err).Error()
		return resp
	}

	resp.Connected = true
	resp.DeviceInfo = &device.Info{
		DeviceName:      info.DeviceName,
		DeviceID:        info.DeviceID,
		Model:           info.Model,
		SerialNumber:    info.SerialNumber,
		MACAddress:      info.MACAddress,
		FirmwareVersion: info.FirmwareVersion,
	}
	return resp
}

// RegisterUser implements device.Service.
func (s *ServiceImpl) RegisterUser(ctx context.Context, req device.RegisterUserRequest) (device.RegisterUserResponse, error) {
	if err := req.Validate(); err != nil {
		return device.RegisterUserResponse{}, err
	}

	resp := device.RegisterUserResponse{ExternalID: req.ExternalID}
	if err := s.client.RegisterUser(ctx, req.ExternalID, req.FullName); err != nil {
		if hikvision.IsAlreadyExists(err) {
			resp.AlreadyPresent = true
			return resp, nil
		}
		return device.RegisterUserResponse{}, classify(err)
	}

	s.logger.Info("user registered on device", "cedula", req.ExternalID)
	return resp, nil
}

// SyncUsers implements device.Service. Every barber and worker with a
// numeric cedula is enrolled; per-person failures are reported, not fatal.
func (s *ServiceImpl) SyncUsers(ctx context.Context) (device.SyncResult, error) {
	var people []person.Person
	for _, partition := range person.LookupOrder() {
		list, err := s.people.ListByPartition(ctx, partition)
		if err != nil {
			return device.SyncResult{}, fmt.Errorf("failed to list %s: %w", partition, err)
		}
		people = append(people, list...)
	}

	result := device.SyncResult{Total: len(people), Failures: []device.SyncFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SyncConcurrency)

	for _, p := range people {
		if !validator.IsNumeric(p.ExternalID) {
			result.Skipped++
			continue
		}

		p := p
		g.Go(func() error {
			err := s.client.RegisterUser(gctx, p.ExternalID, p.FullName)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Registered++
			case hikvision.IsAlreadyExists(err):
				result.AlreadyPresent++
			default:
				result.Failed++
				result.Failures = append(result.Failures, device.SyncFailure{
					ExternalID: p.ExternalID,
					FullName:   p.FullName,
					Error:      err.Error(),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	s.logger.Info("device sync completed",
		"total", result.Total,
		"registered", result.Registered,
		"already_present", result.AlreadyPresent,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// Configure implements device.Service. The webhook host is required; the
// event trigger, clock and NTP steps are reported but do not fail the run.
func (s *ServiceImpl) Configure(ctx context.Context, req device.ConfigureRequest) (device.ConfigureResponse, error) {
	webhookURL := firstNonEmpty(req.WebhookURL, s.cfg.WebhookURL)
	if webhookURL == "" {
		return device.ConfigureResponse{}, device.ErrWebhookURLRequired
	}
	timeZone := firstNonEmpty(req.TimeZone, s.cfg.TimeZone)
	ntpServer := firstNonEmpty(req.NTPServer, s.cfg.NTPServer)

	if err := s.client.ConfigureHTTPHost(ctx, webhookURL); err != nil {
		return device.ConfigureResponse{}, classify(err)
	}

	resp := device.ConfigureResponse{
		WebhookURL: webhookURL,
		Steps:      []device.ConfigureStep{{Name: "http_host", OK: true}},
	}
	step := func(name string, err error) {
		st := device.ConfigureStep{Name: name, OK: err == nil}
		if err != nil {
			st.Error = err.Error()
			s.logger.Warn("device configuration step failed", "step", name, "error", err)
		}
		resp.Steps = append(resp.Steps, st)
	}

	step("event_trigger", s.client.EnableAccessEventTrigger(ctx))
	if timeZone != "" {
		step("time", s.client.SetTime(ctx, timeZone, s.now().In(s.zone.Location())))
	}
	if ntpServer != "" {
		step("ntp", s.client.SetNTPServer(ctx, ntpServer))
	}

	s.logger.Info("device configured", "webhook_url", webhookURL)
	return resp, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
