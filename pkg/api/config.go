package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/fitmeter/pkg/billing"
	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
	"github.com/mihaimyh/fitmeter/pkg/inference"
)

// DefaultMaxImageSize is the upload limit of /analyze-image (10 MB)
const DefaultMaxImageSize int64 = 10 << 20

// Config holds configuration for the API handler
type Config struct {
	// Manager is the usage and streak manager (required)
	Manager *fitmeter.Manager

	// Generator produces plans for /generate-plan (required)
	Generator inference.Generator

	// Analyzer reads food and barcode images for /analyze-image (required)
	Analyzer inference.Analyzer

	// Billing enables /billing/checkout and /billing/webhook (optional)
	Billing billing.Provider

	// MaxImageSize bounds image uploads in bytes (default: 10 MB)
	MaxImageSize int64

	// Logger is used for structured logging (optional)
	Logger fitmeter.Logger

	// OnError replaces the default JSON error response (optional)
	OnError func(http.ResponseWriter, *http.Request, error)
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.Generator == nil {
		return fmt.Errorf("generator is required")
	}
	if c.Analyzer == nil {
		return fmt.Errorf("analyzer is required")
	}
	return nil
}
