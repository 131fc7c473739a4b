// Package fiber provides Fiber middleware for fitmeter quota enforcement
package fiber

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Quota headers set on every request that reaches the quota check
const (
	HeaderQuotaLimit     = "X-Quota-Limit"
	HeaderQuotaRemaining = "X-Quota-Remaining"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

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
	OnQuotaExceeded func(c *fiber.Ctx, report *fitmeter.UsageReport) error

	// OnUnauthorized is called when user is not authenticated
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the quota check fails
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that enforces quota limits
func Middleware(cfg Config) fiber.Handler {
	if cfg.Manager == nil {
		panic("fitmeter/fiber: Config.Manager is required")
	}
	if cfg.GetUserID == nil {
		panic("fitmeter/fiber: Config.GetUserID is required")
	}
	if !cfg.Feature.Valid() {
		panic("fitmeter/fiber: Config.Feature is required")
	}
	if cfg.QuotaExceededStatusCode == 0 {
		cfg.QuotaExceededStatusCode = fiber.StatusTooManyRequests
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		// fasthttp has no request context; UserContext carries the caller's one
		report, err := cfg.Manager.Allow(c.UserContext(), userID, cfg.Feature)
		if report != nil {
			c.Set(HeaderQuotaLimit, strconv.FormatUint(report.Limit, 10))
			c.Set(HeaderQuotaRemaining, strconv.FormatUint(report.Remaining, 10))
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

		return c.Next()
	}
}

// Default error handlers

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func defaultQuotaExceeded(c *fiber.Ctx, report *fitmeter.UsageReport, statusCode int) error {
	if report != nil {
		return c.Status(statusCode).JSON(fiber.Map{
			"error":  "Quota exhausted",
			"used":   report.Used,
			"limit":  report.Limit,
			"period": report.Period.String(),
		})
	}
	return c.Status(statusCode).JSON(fiber.Map{"error": "Quota exhausted"})
}

func defaultError(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Fiber Locals
// set by auth middleware with c.Locals("UserID", userID)
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if str, ok := c.Locals(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(queryName)
	}
}
