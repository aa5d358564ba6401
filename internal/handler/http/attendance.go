package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	"github.com/cmlabs-hris/biometric-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/go-chi/chi/v5"
)

type AttendanceHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Today(w http.ResponseWriter, r *http.Request)
	TodaySummary(w http.ResponseWriter, r *http.Request)
	Reconcile(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	queryService     attendance.QueryService
	reconcileService attendance.ReconcileService
	zone             businesstime.Zone
}

func NewAttendanceHandler(queryService attendance.QueryService, reconcileService attendance.ReconcileService, zone businesstime.Zone) AttendanceHandler {
	return &attendanceHandlerImpl{
		queryService:     queryService,
		reconcileService: reconcileService,
		zone:             zone,
	}
}

// optionalQuery returns a pointer to the query value, or nil when absent.
func optionalQuery(r *http.Request, key string) *string {
	if v := r.URL.Query().Get(key); v != "" {
		return &v
	}
	return nil
}

// List implements AttendanceHandler.
func (h *attendanceHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	filter := attendance.RecordFilter{
		ExternalID: optionalQuery(r, "external_id"),
		Partition:  optionalQuery(r, "partition"),
		EventType:  optionalQuery(r, "event_type"),
		Site:       optionalQuery(r, "site"),
		Brand:      optionalQuery(r, "brand"),
		PersonID:   optionalQuery(r, "user_id"),
		StartDate:  optionalQuery(r, "start_date"),
		EndDate:    optionalQuery(r, "end_date"),
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			response.BadRequest(w, "limit must be a number", nil)
			return
		}
		filter.Limit = limit
	}

	result, err := h.queryService.ListRecords(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to list attendance records", "error", err)
		response.HandleError(w, err)
		return
	}

	limit := filter.Limit
	if limit == 0 {
		limit = attendance.DefaultListLimit
	}
	response.SuccessWithMeta(w, result, &response.Meta{
		Limit:      limit,
		TotalItems: int64(result.Count),
	})
}

// Today implements AttendanceHandler.
func (h *attendanceHandlerImpl) Today(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "personID")
	if personID == "" {
		response.BadRequest(w, "Person ID is required", nil)
		return
	}

	result, err := h.queryService.GetToday(r.Context(), personID)
	if err != nil {
		slog.Error("Failed to get today's attendance", "user_id", personID, "error", err)
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// TodaySummary implements AttendanceHandler.
func (h *attendanceHandlerImpl) TodaySummary(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryService.GetTodaySummary(r.Context())
	if err != nil {
		slog.Error("Failed to get today's summary", "error", err)
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// Reconcile implements AttendanceHandler. Without ?date it reconciles the
// previous business day.
func (h *attendanceHandlerImpl) Reconcile(w http.ResponseWriter, r *http.Request) {
	var (
		report attendance.ReconcileReport
		err    error
	)

	if date := r.URL.Query().Get("date"); date != "" {
		dayStart, parseErr := h.zone.ParseDay(date)
		if parseErr != nil {
			response.HandleError(w, attendance.ErrInvalidDate)
			return
		}
		report, err = h.reconcileService.ReconcileDay(r.Context(), dayStart)
	} else {
		report, err = h.reconcileService.ReconcilePreviousDay(r.Context())
	}

	if err != nil {
		if !errors.Is(err, attendance.ErrReconcileInProgress) {
			slog.Error("Manual reconciliation failed", "day", report.Day, "error", err)
		}
		response.HandleError(w, err)
		return
	}

	slog.Info("Manual reconciliation completed", "day", report.Day, "converted", report.Converted)
	response.SuccessWithMessage(w, "Reconciliation completed", report)
}
