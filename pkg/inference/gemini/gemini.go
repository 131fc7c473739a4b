// Package gemini implements inference.Generator and inference.Analyzer on the
// Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mihaimyh/fitmeter/pkg/inference"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel   = "gemini-2.0-flash"

	// upper bound on an error body kept for diagnostics
	maxErrorBody = 4 << 10
)

// shared HTTP client for Gemini API calls
var defaultHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// Config holds Gemini client configuration
type Config struct {
	APIKey string

	// Model is the model name (default: "gemini-2.0-flash")
	Model string

	// BaseURL overrides the models endpoint, mainly for tests
	BaseURL string

	// RequestsPerSecond and Burst bound outgoing calls (default: 5 rps, burst 10)
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the shared client (optional)
	HTTPClient *http.Client

	// Metrics records call latency and failures (optional)
	Metrics inference.Metrics
}

// APIError is returned when Gemini answers with a non-200 status
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini API request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client calls the Gemini API
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
	metrics inference.Metrics
}

// New creates a Gemini client
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &inference.NoopMetrics{}
	}

	return &Client{
		config:  config,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		metrics: metrics,
	}, nil
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

// GeneratePlan implements inference.Generator
func (c *Client) GeneratePlan(ctx context.Context, prompt string) (*inference.PlanResult, error) {
	req := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 2048,
		},
	}

	start := time.Now()
	resp, err := c.generate(ctx, req)
	c.metrics.RecordInferenceRequest("generate_plan", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	text, err := resp.text()
	if err != nil {
		return nil, err
	}
	result := &inference.PlanResult{Text: text}
	if u := resp.UsageMetadata; u != nil {
		result.PromptTokens = u.PromptTokenCount
		result.CompletionTokens = u.CandidatesTokenCount
	}
	return result, nil
}

// AnalyzeImage implements inference.Analyzer
func (c *Client) AnalyzeImage(ctx context.Context, image []byte, mode inference.ScanMode) (*inference.Analysis, error) {
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}

	req := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: inference.Prompt(mode)},
				{InlineData: &blob{MimeType: imageMimeType(image), Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
		GenerationConfig: &generationConfig{
			Temperature:     0.2,
			TopP:            0.95,
			MaxOutputTokens: 2048,
		},
	}

	start := time.Now()
	resp, err := c.generate(ctx, req)
	c.metrics.RecordInferenceRequest("analyze_image", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	text, err := resp.text()
	if err != nil {
		return nil, err
	}
	return inference.ParseAnalysis(text, mode), nil
}

func (c *Client) generate(ctx context.Context, body generateRequest) (*generateResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.config.BaseURL, c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// imageMimeType sniffs the upload; anything unrecognized is sent as JPEG
func imageMimeType(image []byte) string {
	ct := http.DetectContentType(image)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
