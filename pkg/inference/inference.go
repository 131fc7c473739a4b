// Package inference defines the text and vision model capabilities the API depends on,
// and the numbered nutrition answer format both scan prompts ask for.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyResponse is returned when the provider answers without any text
	ErrEmptyResponse = errors.New("inference provider returned no content")

	// ErrInvalidScanMode is returned for an unknown scan mode
	ErrInvalidScanMode = errors.New("invalid scan mode")
)

// ScanMode selects the prompt used to analyze an image
type ScanMode string

const (
	ScanModeFood    ScanMode = "food"
	ScanModeBarcode ScanMode = "barcode"
)

// ParseScanMode maps a request value to a ScanMode. Empty means food.
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case "", ScanModeFood:
		return ScanModeFood, nil
	case ScanModeBarcode:
		return ScanModeBarcode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScanMode, s)
	}
}

// PlanResult is a generated plan with the token counts the provider reported.
// Zero counts mean the provider did not report them.
type PlanResult struct {
	Text             string
	PromptTokens     uint64
	CompletionTokens uint64
}

// Analysis is the nutrition estimate for one scanned image
type Analysis struct {
	FoodName      string  `json:"foodName"`
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
	Sugars        float64 `json:"sugars"`
	Junk          bool    `json:"isJunkFood"`
	RawResponse   string  `json:"rawResponse"`
}

// Generator produces plans from free-form prompts
type Generator interface {
	GeneratePlan(ctx context.Context, prompt string) (*PlanResult, error)
}

// Analyzer estimates nutrition facts from a food photo or a product package
type Analyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, mode ScanMode) (*Analysis, error)
}

// Metrics records provider calls. prommetrics.Metrics implements it.
type Metrics interface {
	RecordInferenceRequest(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordInferenceRequest(string, time.Duration, error) {}
