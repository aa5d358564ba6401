package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/notification"
	"github.com/cmlabs-hris/biometric-attendance/internal/handler/http/response"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/jwt"
	"github.com/go-chi/jwtauth/v5"
)

const streamKeepalive = 30 * time.Second

// NotificationHandler serves the live attendance stream and its log.
type NotificationHandler interface {
	Recent(w http.ResponseWriter, r *http.Request)

	// SSE
	GetStreamToken(w http.ResponseWriter, r *http.Request)
	Stream(w http.ResponseWriter, r *http.Request)
}

type notificationHandlerImpl struct {
	notifService notification.Service
	jwtService   jwt.Service
	keepalive    time.Duration
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifService notification.Service, jwtService jwt.Service) NotificationHandler {
	return &notificationHandlerImpl{
		notifService: notifService,
		jwtService:   jwtService,
		keepalive:    streamKeepalive,
	}
}

// getOperatorFromContext extracts the operator name from the JWT context
func getOperatorFromContext(r *http.Request) string {
	_, claims, _ := jwtauth.FromContext(r.Context())
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

// getIntQueryParam gets an int query parameter with a default value
func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// Recent returns the latest published attendance events
func (h *notificationHandlerImpl) Recent(w http.ResponseWriter, r *http.Request) {
	limit := getIntQueryParam(r, "limit", notification.DefaultRecentLimit)
	if limit < 1 || limit > notification.MaxRecentLimit {
		response.BadRequest(w, fmt.Sprintf("limit must be between 1 and %d", notification.MaxRecentLimit), nil)
		return
	}

	result, err := h.notifService.Recent(r.Context(), limit)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}

// GetStreamToken generates a short-lived token for SSE connections
func (h *notificationHandlerImpl) GetStreamToken(w http.ResponseWriter, r *http.Request) {
	operator := getOperatorFromContext(r)
	if operator == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	token, expiresIn, err := h.jwtService.GenerateSSEToken(operator)
	if err != nil {
		response.InternalServerError(w, "Failed to generate stream token")
		return
	}

	response.Success(w, map[string]interface{}{
		"token":      token,
		"expires_in": expiresIn,
	})
}

// Stream handles the SSE connection for live attendance events. With
// ?user_id only that person's events are sent.
func (h *notificationHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	// EventSource cannot set headers, so the token travels in the query
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	operator, err := h.jwtService.ValidateSSEToken(tokenStr)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	channel := notification.ChannelAttendance
	if personID := r.URL.Query().Get("user_id"); personID != "" {
		channel = notification.PersonChannel(personID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.notifService.Subscribe(r.Context(), channel)
	defer cleanup()

	connected, _ := json.Marshal(map[string]string{
		"status":   "connected",
		"operator": operator,
		"channel":  channel,
	})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
