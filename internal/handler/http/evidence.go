package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/biometric-attendance/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

// EvidenceReader opens a stored evidence picture by key.
type EvidenceReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type EvidenceHandler interface {
	Get(w http.ResponseWriter, r *http.Request)
}

type evidenceHandlerImpl struct {
	reader EvidenceReader
}

func NewEvidenceHandler(reader EvidenceReader) EvidenceHandler {
	return &evidenceHandlerImpl{reader: reader}
}

// Get implements EvidenceHandler. Evidence is always stored as JPEG.
func (h *evidenceHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		response.NotFound(w, "File not found")
		return
	}

	rc, err := h.reader.Open(r.Context(), key)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Failed to stream evidence", "key", key, "error", err)
	}
}
