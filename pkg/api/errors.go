package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/fitmeter/pkg/billing"
	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
	"github.com/mihaimyh/fitmeter/pkg/inference"
)

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, fitmeter.ErrInvalidUserID),
		errors.Is(err, fitmeter.ErrInvalidMeal),
		errors.Is(err, fitmeter.ErrInvalidFeature),
		errors.Is(err, fitmeter.ErrInvalidPeriod),
		errors.Is(err, inference.ErrInvalidScanMode):
		return http.StatusBadRequest
	case errors.Is(err, fitmeter.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, fitmeter.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, fitmeter.ErrCircuitOpen),
		errors.Is(err, fitmeter.ErrStorageUnavailable),
		errors.Is(err, billing.ErrProviderNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, inference.ErrEmptyResponse),
		errors.Is(err, billing.ErrProviderAPIError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail writes an error response whose status is derived from err
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.failWithStatus(w, r, statusFor(err), message, err)
}

func (h *Handler) failWithStatus(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if h.config.OnError != nil && err != nil {
		h.config.OnError(w, r, err)
		return
	}

	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, fitmeter.F("path", r.URL.Path), fitmeter.ErrField(err))
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", fitmeter.ErrField(err))
	}
}
