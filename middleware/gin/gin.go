// Package gin provides Gin middleware for fitmeter quota enforcement.
//
// Example:
//
//	router := gin.Default()
//	router.POST("/generate-plan", fitmetergin.Middleware(fitmetergin.Config{
//		Manager:   manager,
//		GetUserID: fitmetergin.FromContext("UserID"),
//		Feature:   fitmeter.FeaturePlanGeneration,
//	}), generatePlan)
package gin

import (
	"errors"
	"net/http"
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Quota headers set on every request that reaches the quota check
const (
	HeaderQuotaLimit     = "X-Quota-Limit"
	HeaderQuotaRemaining = "X-Quota-Remaining"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Manager is the quota manager instance (required)
	Manager *fitmeter.Manager

	// GetUserID extracts user ID from the request (required)
	GetUserID UserIDExtractor

	// Feature is the metered feature guarded by the middleware (required)
	Feature fitmeter.Feature

	// OnQuotaExceeded is called when the user has no units left
	// If nil, aborts with 429 and a JSON body
	OnQuotaExceeded func(c *gongin.Context, report *fitmeter.UsageReport)

	// OnUnauthorized is called when user is not authenticated
	// If nil, aborts with 401
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the quota check fails
	// If nil, aborts with 500
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that enforces quota limits.
// Handlers that are reached are expected to record their own usage.
func Middleware(config Config) gongin.HandlerFunc {
	if config.Manager == nil {
		panic("fitmeter/middleware/gin: Manager is required")
	}
	if config.GetUserID == nil {
		panic("fitmeter/middleware/gin: GetUserID is required")
	}
	if !config.Feature.Valid() {
		panic("fitmeter/middleware/gin: Feature is required")
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

	return func(c *gongin.Context) {
		userID := config.GetUserID(c)
		if userID == "" {
			config.OnUnauthorized(c)
			c.Abort()
			return
		}

		report, err := config.Manager.Allow(c.Request.Context(), userID, config.Feature)
		if report != nil {
			c.Header(HeaderQuotaLimit, strconv.FormatUint(report.Limit, 10))
			c.Header(HeaderQuotaRemaining, strconv.FormatUint(report.Remaining, 10))
		}
		if errors.Is(err, fitmeter.ErrQuotaExhausted) {
			config.OnQuotaExceeded(c, report)
			c.Abort()
			return
		}
		if err != nil {
			config.OnError(c, err)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Default error handlers

func defaultUnauthorized(c *gongin.Context) {
	c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
}

func defaultQuotaExceeded(c *gongin.Context, report *fitmeter.UsageReport) {
	if report == nil {
		c.JSON(http.StatusTooManyRequests, gongin.H{"error": "Quota exhausted"})
		return
	}
	c.JSON(http.StatusTooManyRequests, gongin.H{
		"error":  "Quota exhausted",
		"used":   report.Used,
		"limit":  report.Limit,
		"period": report.Period.String(),
	})
}

func defaultError(c *gongin.Context, _ error) {
	c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Gin context values.
// Pair it with auth middleware that calls c.Set("UserID", userID).
func FromContext(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}

// FromQuery returns a UserIDExtractor that gets user ID from a query parameter
func FromQuery(queryName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.Query(queryName)
	}
}
