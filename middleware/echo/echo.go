// Package echo provides Echo middleware for fitmeter quota enforcement.
package echo

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Quota headers set on every request that reaches the quota check
const (
	HeaderQuotaLimit     = "X-Quota-Limit"
	HeaderQuotaRemaining = "X-Quota-Remaining"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the quota manager instance (required)
	Manager *fitmeter.Manager

	// GetUserID extracts user ID from the request (required)
	GetUserID UserIDExtractor

	// Feature is the metered feature guarded by the middleware (required)
	Feature fitmeter.Feature

	// QuotaExceededStatusCode is the status returned by the default quota handler
	// Default: 429 Too Many Requests
	QuotaExceededStatusCode int

	// OnQuotaExceeded is called when the user has no units left
	OnQuotaExceeded func(c echo.Context, report *fitmeter.UsageReport) error

	// OnUnauthorized is called when user is not authenticated
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the quota check fails
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that enforces quota limits
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Manager == nil {
		panic("fitmeter/echo: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("fitmeter/echo: Config.GetUserID is required")
	}
	if !cfg.Feature.Valid() {
		panic("fitmeter/echo: Config.Feature is required")
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = http.StatusTooManyRequests
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			report, err := cfg.Manager.Allow(c.Request().Context(), userID, cfg.Feature)
			if report != nil {
				h := c.Response().Header()
				h.Set(HeaderQuotaLimit, strconv.FormatUint(report.Limit, 10))
				h.Set(HeaderQuotaRemaining, strconv.FormatUint(report.Remaining, 10))
			}
			if errors.Is(err, fitmeter.ErrQuotaExhausted) {
				if cfg.OnQuotaExceeded != nil {
					return cfg.OnQuotaExceeded(c, report)
				}
				return defaultQuotaExceeded(c, report, cfg.QuotaExceededStatusCode)
			}
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return defaultError(c, err)
			}

			return next(c)
		}
	}
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{"error": "Unauthorized"})
}

func defaultQuotaExceeded(c echo.Context, report *fitmeter.UsageReport, statusCode int) error {
	body := map[string]interface{}{"error": "Quota exhausted"}
	if report != nil {
		body["used"] = report.Used
		body["limit"] = report.Limit
		body["period"] = report.Period.String()
	}
	return c.JSON(statusCode, body)
}

func defaultError(c echo.Context, _ error) error {
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that reads a string set with c.Set by auth middleware
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.QueryParam(queryName)
	}
}
