package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/biometric-attendance/internal/domain/device"
	"github.com/cmlabs-hris/biometric-attendance/internal/handler/http/response"
)

// DeviceHandler exposes the terminal management operations.
type DeviceHandler interface {
	Status(w http.ResponseWriter, r *http.Request)
	RegisterUser(w http.ResponseWriter, r *http.Request)
	SyncUsers(w http.ResponseWriter, r *http.Request)
	Configure(w http.ResponseWriter, r *http.Request)
}

type deviceHandlerImpl struct {
	deviceService device.Service
}

func NewDeviceHandler(deviceService device.Service) DeviceHandler {
	return &deviceHandlerImpl{deviceService: deviceService}
}

// Status implements DeviceHandler. An unreachable terminal is still a 200
// with connected=false.
func (h *deviceHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.deviceService.Status(r.Context()))
}

// RegisterUser implements DeviceHandler.
func (h *deviceHandlerImpl) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req device.RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	result, err := h.deviceService.RegisterUser(r.Context(), req)
	if err != nil {
		slog.Error("Failed to register user on device", "cedula", req.ExternalID, "error", err)
		response.HandleError(w, err)
		return
	}

	if result.AlreadyPresent {
		response.SuccessWithMessage(w, "User already registered on device", result)
		return
	}
	response.Created(w, "User registered on device", result)
}

// SyncUsers implements DeviceHandler.
func (h *deviceHandlerImpl) SyncUsers(w http.ResponseWriter, r *http.Request) {
	result, err := h.deviceService.SyncUsers(r.Context())
	if err != nil {
		slog.Error("Device user sync failed", "error", err)
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Device user sync completed", result)
}

// Configure implements DeviceHandler. An empty body uses the configured
// defaults.
func (h *deviceHandlerImpl) Configure(w http.ResponseWriter, r *http.Request) {
	var req device.ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	result, err := h.deviceService.Configure(r.Context(), req)
	if err != nil {
		slog.Error("Device configuration failed", "error", err)
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Device configured", result)
}
