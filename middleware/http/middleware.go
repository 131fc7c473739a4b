// Package http provides net/http middleware that gates handlers on a user's
// remaining monthly quota for one feature.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Quota headers set on every request that reaches the quota check
const (
	HeaderQuotaLimit     = "X-Quota-Limit"
	HeaderQuotaRemaining = "X-Quota-Remaining"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Manager is the quota manager instance (required)
	Manager *fitmeter.Manager

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// Feature is the metered feature guarded by the middleware (required)
	Feature fitmeter.Feature

	// OnQuotaExceeded is called when the user has no units left
	// If nil, returns 429 Too Many Requests with a JSON body
	OnQuotaExceeded func(w http.ResponseWriter, r *http.Request, report *fitmeter.UsageReport)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the quota check fails
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that enforces quota limits.
// Usage is not recorded here; the handler tracks what it actually consumed.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Manager == nil {
		panic("fitmeter/middleware/http: Manager is required")
	}
	if config.GetUserID == nil {
		panic("fitmeter/middleware/http: GetUserID is required")
	}
	if !config.Feature.Valid() {
		panic("fitmeter/middleware/http: Feature is required")
	}
	if config.OnQuotaExceeded == nil {
		config.OnQuotaExceeded = defaultQuotaExceeded
	}
	if config.OnUnauthorized == nil {
		config.OnUnauthorized = defaultUnauthorized
	}
	if config.OnError == nil {
		config.OnError = defaultError
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				config.OnUnauthorized(w, r)
				return
			}

			report, err := config.Manager.Allow(r.Context(), userID, config.Feature)
			if report != nil {
				SetQuotaHeaders(w.Header(), report)
			}
			switch {
			case errors.Is(err, fitmeter.ErrQuotaExhausted):
				config.OnQuotaExceeded(w, r, report)
				return
			case err != nil:
				config.OnError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetQuotaHeaders writes the limit and remaining units of a report
func SetQuotaHeaders(h http.Header, report *fitmeter.UsageReport) {
	h.Set(HeaderQuotaLimit, strconv.FormatUint(report.Limit, 10))
	h.Set(HeaderQuotaRemaining, strconv.FormatUint(report.Remaining, 10))
}

func defaultUnauthorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "Unauthorized"})
}

func defaultQuotaExceeded(w http.ResponseWriter, _ *http.Request, report *fitmeter.UsageReport) {
	body := map[string]interface{}{"error": "Quota exhausted"}
	if report != nil {
		body["used"] = report.Used
		body["limit"] = report.Limit
		body["period"] = report.Period.String()
	}
	writeJSON(w, http.StatusTooManyRequests, body)
}

func defaultError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, fitmeter.ErrInvalidUserID) {
		status = http.StatusBadRequest
	} else if errors.Is(err, fitmeter.ErrCircuitOpen) || errors.Is(err, fitmeter.ErrStorageUnavailable) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"error": http.StatusText(status)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Convenience extractors for User ID

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(name string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// FromContext returns a UserIDExtractor that gets user ID from a request context value
// set by an upstream auth middleware
func FromContext(key interface{}) UserIDExtractor {
	return func(r *http.Request) string {
		if v, ok := r.Context().Value(key).(string); ok {
			return v
		}
		return ""
	}
}
