package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/hikvision"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
)

const maxWebhookBody = 20 << 20

// WebhookHandler receives event pushes from the terminal. The device only
// needs to know the delivery arrived, so every POST is answered 200 "OK".
type WebhookHandler interface {
	Probe(w http.ResponseWriter, r *http.Request)
	Receive(w http.ResponseWriter, r *http.Request)
}

// IngestOptionsFunc supplies the options for each delivery.
type IngestOptionsFunc func() attendance.IngestOptions

type webhookHandlerImpl struct {
	ingest  attendance.IngestionService
	token   string
	options IngestOptionsFunc
	metrics *metrics.Metrics
}

func NewWebhookHandler(ingest attendance.IngestionService, token string, options IngestOptionsFunc, m *metrics.Metrics) WebhookHandler {
	if options == nil {
		options = func() attendance.IngestOptions { return attendance.IngestOptions{} }
	}
	return &webhookHandlerImpl{
		ingest:  ingest,
		token:   token,
		options: options,
		metrics: m,
	}
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Probe implements WebhookHandler.
func (h *webhookHandlerImpl) Probe(w http.ResponseWriter, r *http.Request) {
	writeOK(w)
}

// Receive implements WebhookHandler.
func (h *webhookHandlerImpl) Receive(w http.ResponseWriter, r *http.Request) {
	defer writeOK(w)

	if !h.authorized(r) {
		slog.Warn("Webhook token mismatch, delivery dropped", "remote_addr", r.RemoteAddr)
		h.metrics.IncWebhook("rejected_token")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		slog.Error("Failed to read webhook body", "error", err)
		h.metrics.IncWebhook("decode_error")
		return
	}

	events, err := hikvision.DecodeEvents(r.Header.Get("Content-Type"), body)
	if err != nil {
		if errors.Is(err, hikvision.ErrUnrecognizedPayload) {
			slog.Warn("Unrecognized webhook payload", "content_type", r.Header.Get("Content-Type"), "size", len(body))
		} else {
			slog.Error("Failed to decode webhook payload", "error", err)
		}
		h.metrics.IncWebhook("decode_error")
		return
	}
	h.metrics.IncWebhook("accepted")

	// A device hanging up must not abort a half-written record.
	ctx := context.WithoutCancel(r.Context())
	opts := h.options()
	for _, ev := range events {
		result, err := h.ingest.Ingest(ctx, ev, opts)
		if err != nil {
			slog.Error("Failed to ingest webhook event", "cedula", ev.ExternalID, "error", err)
			continue
		}
		slog.Debug("Webhook event processed",
			"cedula", ev.ExternalID,
			"outcome", result.Outcome,
			"event_type", result.EventType,
			"reason", result.Reason,
		)
	}
}

func (h *webhookHandlerImpl) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	provided := r.Header.Get("X-Webhook-Token")
	if provided == "" {
		provided = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.token)) == 1
}
