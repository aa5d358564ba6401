package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/hikvision"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
)

const (
	reconnectStep        = 5 * time.Second
	maxReconnectDelay    = 30 * time.Second
	maxReconnectAttempts = 10
)

// ErrStreamGaveUp is returned by Run after the reconnect budget is spent.
var ErrStreamGaveUp = errors.New("alert stream: reconnect attempts exhausted")

// AlertStream yields the events pushed over one stream connection.
type AlertStream interface {
	Next() ([]attendance.RawDeviceEvent, error)
	Close() error
}

// StreamOpener connects to the device's alert stream.
type StreamOpener func(ctx context.Context) (AlertStream, error)

// OpenerFor adapts an ISAPI client to a StreamOpener.
func OpenerFor(client *hikvision.Client) StreamOpener {
	return func(ctx context.Context) (AlertStream, error) {
		stream, err := client.OpenAlertStream(ctx)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

type ListenerConfig struct {
	// Warmup drops everything received this long after each connect. The
	// device replays buffered events when a stream opens.
	Warmup time.Duration

	// Ingest is passed to every Ingest call.
	Ingest attendance.IngestOptions
}

// Listener feeds the device's alert stream into ingestion, reconnecting
// with a linear backoff.
type Listener struct {
	open    StreamOpener
	ingest  attendance.IngestionService
	cfg     ListenerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewListener(open StreamOpener, ingest attendance.IngestionService, cfg ListenerConfig, m *metrics.Metrics, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		open:    open,
		ingest:  ingest,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "device.listener"),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func reconnectDelay(attempt int) time.Duration {
	return min(reconnectStep*time.Duration(attempt), maxReconnectDelay)
}

// Run listens until ctx is cancelled or reconnecting fails
// maxReconnectAttempts times in a row.
func (l *Listener) Run(ctx context.Context) error {
	attempts := 0
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			attempts = 0
		}

		attempts++
		if attempts > maxReconnectAttempts {
			l.logger.Error("alert stream giving up", "attempts", maxReconnectAttempts, "error", err)
			return fmt.Errorf("%w: %v", ErrStreamGaveUp, err)
		}

		delay := reconnectDelay(attempts)
		l.metrics.IncStreamReconnect()
		l.logger.Warn("alert stream disconnected, reconnecting",
			"attempt", attempts,
			"max_attempts", maxReconnectAttempts,
			"delay", delay,
			"error", err,
		)
		if err := l.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// listen consumes one connection. connected reports whether the stream
// was opened at all.
func (l *Listener) listen(ctx context.Context) (connected bool, err error) {
	stream, err := l.open(ctx)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	warmUntil := l.now().Add(l.cfg.Warmup)
	l.logger.Info("alert stream connected", "warmup_until", warmUntil)

	for {
		events, err := stream.Next()
		if err != nil {
			return true, err
		}

		for _, ev := range events {
			if l.now().Before(warmUntil) {
				l.logger.Debug("alert stream warming up, event ignored", "cedula", ev.ExternalID, "timestamp", ev.Timestamp)
				l.metrics.IncIngestOutcome("warmup")
				continue
			}
			if _, err := l.ingest.Ingest(ctx, ev, l.cfg.Ingest); err != nil {
				l.logger.Error("failed to ingest stream event", "cedula", ev.ExternalID, "error", err)
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
