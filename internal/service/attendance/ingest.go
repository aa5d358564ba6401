package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/person"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/keylock"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/validator"
)

// EvidenceStore keeps the picture a terminal captured with an event.
type EvidenceStore interface {
	StoreEvidence(ctx context.Context, personID string, at time.Time, evidence attendance.Evidence) (string, error)
}

// AccessAlerter is told about people rejected by the authorization gate.
type AccessAlerter interface {
	SendUnauthorizedAccessAlert(ctx context.Context, p person.Person, site, brand string, at time.Time, reasons []string) error
}

// IngestConfig holds the ingestion rules.
type IngestConfig struct {
	Cooldown      time.Duration
	MinExternalID int64

	// Site and Brand identify the device when the event does not carry them.
	Site  string
	Brand string
}

type IngestionServiceImpl struct {
	directory *Directory
	cooldown  *CooldownGuard
	direction *DirectionInferencer
	recorder  *Recorder
	publisher notification.Publisher
	locker    keylock.Locker
	zone      businesstime.Zone
	config    IngestConfig

	evidence EvidenceStore
	alerter  AccessAlerter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// IngestOption customizes an IngestionServiceImpl.
type IngestOption func(*IngestionServiceImpl)

func WithEvidenceStore(store EvidenceStore) IngestOption {
	return func(s *IngestionServiceImpl) { s.evidence = store }
}

func WithAccessAlerter(alerter AccessAlerter) IngestOption {
	return func(s *IngestionServiceImpl) { s.alerter = alerter }
}

func WithMetrics(m *metrics.Metrics) IngestOption {
	return func(s *IngestionServiceImpl) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) IngestOption {
	return func(s *IngestionServiceImpl) { s.logger = logger }
}

func WithClock(now func() time.Time) IngestOption {
	return func(s *IngestionServiceImpl) { s.now = now }
}

func NewIngestionService(
	people person.Repository,
	records attendance.RecordRepository,
	publisher notification.Publisher,
	locker keylock.Locker,
	zone businesstime.Zone,
	cfg IngestConfig,
	opts ...IngestOption,
) *IngestionServiceImpl {
	s := &IngestionServiceImpl{
		directory: NewDirectory(people),
		cooldown:  NewCooldownGuard(records),
		direction: NewDirectionInferencer(records, zone),
		publisher: publisher,
		locker:    locker,
		zone:      zone,
		config:    cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "attendance.ingest")

	var evidenceURL EvidenceURLFunc
	if u, ok := s.evidence.(interface{ EvidenceURL(path string) string }); ok {
		evidenceURL = u.EvidenceURL
	}
	s.recorder = NewRecorder(records, publisher, zone, evidenceURL, s.logger)
	return s
}

// Ingest implements attendance.IngestionService.
func (s *IngestionServiceImpl) Ingest(ctx context.Context, raw attendance.RawDeviceEvent, opts attendance.IngestOptions) (attendance.IngestResult, error) {
	started := s.now()
	result, err := s.ingest(ctx, raw, opts)
	s.metrics.ObserveIngestLatency(s.now().Sub(started))
	if err != nil {
		s.metrics.IncIngestOutcome("error")
		return result, err
	}
	s.metrics.IncIngestOutcome(string(result.Outcome))
	return result, nil
}

func (s *IngestionServiceImpl) ingest(ctx context.Context, raw attendance.RawDeviceEvent, opts attendance.IngestOptions) (attendance.IngestResult, error) {
	externalID := strings.TrimSpace(raw.ExternalID)
	if externalID == "" {
		return s.drop(raw, attendance.ErrMissingExternalID), nil
	}
	if _, ok := validator.ParseExternalID(externalID, s.config.MinExternalID); !ok {
		return s.drop(raw, attendance.ErrImplausibleExternalID), nil
	}

	method := strings.TrimSpace(raw.Method)
	switch strings.ToLower(method) {
	case "invalid", "unknown":
		return s.drop(raw, attendance.ErrInvalidMethod), nil
	case "":
		method = attendance.DefaultVerificationMethod
	}

	var at time.Time
	if strings.TrimSpace(raw.Timestamp) == "" {
		at = s.now().UTC()
	} else {
		parsed, err := s.zone.Normalize(raw.Timestamp)
		if err != nil {
			return s.drop(raw, err), nil
		}
		at = parsed
	}

	if !opts.NotBefore.IsZero() && at.Before(opts.NotBefore) {
		return s.drop(raw, attendance.ErrHistoricalEvent), nil
	}

	lookup, err := s.directory.FindByExternalID(ctx, externalID)
	if err != nil {
		return attendance.IngestResult{}, err
	}
	if !lookup.Found {
		s.logger.Info("unknown user", "cedula", externalID, "device_id", raw.DeviceID)
		s.publish(ctx, notification.EventUnknownUser, nil, map[string]interface{}{
			"cedula":    externalID,
			"method":    method,
			"timestamp": at.Format(time.RFC3339),
			"device_id": raw.DeviceID,
		})
		return attendance.IngestResult{Outcome: attendance.OutcomeUnknownUser, Reason: "no directory match"}, nil
	}
	p := lookup.Person

	site, brand := raw.Site, raw.Brand
	if site == "" {
		site = s.config.Site
	}
	if brand == "" {
		brand = s.config.Brand
	}

	auth := IsAuthorized(p, site, brand)
	if !auth.Authorized {
		s.logger.Warn("unauthorized access",
			"user_id", p.ID,
			"cedula", externalID,
			"location", site,
			"brand_id", brand,
			"reasons", auth.Reasons,
		)
		s.publish(ctx, notification.EventUnauthorizedAccess, &p.ID, map[string]interface{}{
			"user_id":             p.ID,
			"user_collection":     string(p.Partition),
			"cedula":              externalID,
			"full_name":           p.FullName,
			"location":            site,
			"brand_id":            brand,
			"has_location_access": auth.HasSiteAccess,
			"has_brand_access":    auth.HasBrandAccess,
			"reasons":             auth.Reasons,
			"timestamp":           at.Format(time.RFC3339),
		})
		s.alertUnauthorized(p, site, brand, at, auth.Reasons)
		return attendance.IngestResult{
			Outcome: attendance.OutcomeUnauthorized,
			Reason:  strings.Join(auth.Reasons, "; "),
		}, nil
	}

	unlock, err := s.locker.Lock(ctx, "person:"+p.ID)
	if err != nil {
		return attendance.IngestResult{}, fmt.Errorf("lock person %s: %w", p.ID, err)
	}
	defer unlock()

	cooldown, err := s.cooldown.IsWithinCooldown(ctx, p.ID, at, s.config.Cooldown)
	if err != nil {
		return attendance.IngestResult{}, err
	}
	if cooldown.Blocked {
		s.logger.Info("duplicate read ignored",
			"user_id", p.ID,
			"cedula", externalID,
			"seconds_since_last", *cooldown.SecondsSinceLast,
		)
		s.publish(ctx, notification.EventCooldownIgnored, &p.ID, map[string]interface{}{
			"user_id":            p.ID,
			"cedula":             externalID,
			"full_name":          p.FullName,
			"timestamp":          at.Format(time.RFC3339),
			"cooldown_seconds":   int(s.config.Cooldown.Seconds()),
			"seconds_since_last": *cooldown.SecondsSinceLast,
		})
		return attendance.IngestResult{Outcome: attendance.OutcomeCooldown, Reason: "within cooldown window"}, nil
	}

	eventType, err := s.direction.DetermineDirection(ctx, p.ID, at)
	if err != nil {
		return attendance.IngestResult{}, err
	}

	rec := attendance.Record{
		PersonID:           p.ID,
		Partition:          p.Partition,
		ExternalID:         p.ExternalID,
		FullName:           p.FullName,
		Email:              p.Email,
		PhoneNumber:        p.PhoneNumber,
		Site:               site,
		Brand:              brand,
		Timestamp:          at,
		EventType:          eventType,
		VerificationMethod: method,
		DeviceID:           raw.DeviceID,
		Status:             attendance.StatusSuccess,
	}
	if rec.ExternalID == "" {
		rec.ExternalID = externalID
	}

	if raw.Evidence != nil && len(raw.Evidence.Data) > 0 && s.evidence != nil {
		path, err := s.evidence.StoreEvidence(ctx, p.ID, at, *raw.Evidence)
		if err != nil {
			s.logger.Warn("failed to store evidence", "user_id", p.ID, "error", err)
		} else {
			rec.EvidencePath = &path
		}
	}

	saved, err := s.recorder.Record(ctx, rec)
	if err != nil {
		return attendance.IngestResult{}, err
	}
	s.metrics.IncRecorded(string(saved.EventType))

	s.logger.Info("attendance recorded",
		"record_id", saved.ID,
		"user_id", p.ID,
		"full_name", p.FullName,
		"event_type", saved.EventType,
		"timestamp", at.Format(time.RFC3339),
	)

	return attendance.IngestResult{
		Outcome:   attendance.OutcomeRecorded,
		RecordID:  saved.ID,
		EventType: saved.EventType,
	}, nil
}

func (s *IngestionServiceImpl) drop(raw attendance.RawDeviceEvent, reason error) attendance.IngestResult {
	s.logger.Debug("event dropped",
		"cedula", raw.ExternalID,
		"method", raw.Method,
		"timestamp", raw.Timestamp,
		"reason", reason.Error(),
	)
	return attendance.IngestResult{Outcome: attendance.OutcomeDropped, Reason: reason.Error()}
}

func (s *IngestionServiceImpl) publish(ctx context.Context, event notification.EventName, personID *string, data map[string]interface{}) {
	if err := s.publisher.Publish(ctx, event, personID, data); err != nil {
		s.logger.Warn("failed to publish event", "event", event, "error", err)
	}
}

func (s *IngestionServiceImpl) alertUnauthorized(p person.Person, site, brand string, at time.Time, reasons []string) {
	if s.alerter == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.alerter.SendUnauthorizedAccessAlert(ctx, p, site, brand, at, reasons); err != nil {
			s.logger.Warn("failed to send unauthorized access alert", "user_id", p.ID, "error", err)
		}
	}()
}
