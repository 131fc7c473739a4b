// Package api exposes plan generation, image analysis, meal logging and usage
// reporting over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
	"github.com/mihaimyh/fitmeter/pkg/inference"
)

const (
	maxJSONBody = 1 << 20

	// multipart framing and the text fields on top of the image itself
	multipartOverhead = 1 << 20
)

// Handler serves the fitmeter HTTP API
type Handler struct {
	config Config
	logger fitmeter.Logger
}

// NewHandler creates a new API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.MaxImageSize <= 0 {
		config.MaxImageSize = DefaultMaxImageSize
	}
	logger := config.Logger
	if logger == nil {
		logger = &fitmeter.NoopLogger{}
	}
	return &Handler{config: config, logger: logger}, nil
}

// Routes returns a router with every endpoint, ready to be mounted under /api
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/generate-plan", h.GeneratePlan)
	r.Post("/analyze-image", h.AnalyzeImage)
	r.Post("/log-meal", h.LogMeal)
	r.Get("/user-tokens/{userId}", h.UserTokens)
	r.Get("/subscription/status/{userId}", h.SubscriptionStatus)
	r.Get("/health", h.Health)
	if h.config.Billing != nil {
		r.Post("/billing/checkout", h.Checkout)
		r.Method(http.MethodPost, "/billing/webhook", h.config.Billing.WebhookHandler())
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.failWithStatus(w, r, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.failWithStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
	return r
}

// GeneratePlan runs the prompt through the generator and charges the plan generation quota
func (h *Handler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req GeneratePlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.failWithStatus(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.Prompt == "" {
		h.failWithStatus(w, r, http.StatusBadRequest, "Missing required fields", nil)
		return
	}

	if !h.allow(w, r, req.UserID, fitmeter.FeaturePlanGeneration) {
		return
	}

	plan, err := h.config.Generator.GeneratePlan(ctx, req.Prompt)
	if err != nil {
		h.failWithStatus(w, r, upstreamStatus(err), "Failed to generate plan", err)
		return
	}

	units := fitmeter.EstimatePlanUnits(utf8.RuneCountInString(req.Prompt), utf8.RuneCountInString(plan.Text),
		plan.PromptTokens, plan.CompletionTokens)
	report, err := h.config.Manager.TrackUsage(ctx, req.UserID, fitmeter.FeaturePlanGeneration, units)
	if err != nil {
		h.fail(w, r, "Failed to track usage", err)
		return
	}

	h.writeJSON(w, http.StatusOK, GeneratePlanResponse{
		Plan:      plan.Text,
		TokenInfo: tokenInfo(report),
	})
}

// AnalyzeImage reads a multipart upload, analyzes it and charges the image analysis quota
func (h *Handler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	maxSize := h.config.MaxImageSize

	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.failWithStatus(w, r, http.StatusRequestEntityTooLarge, "Image too large", err)
			return
		}
		h.failWithStatus(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("failed to remove multipart files", fitmeter.ErrField(err))
		}
	}()

	userID := r.FormValue("userId")
	if userID == "" {
		h.failWithStatus(w, r, http.StatusBadRequest, "Missing required user ID", nil)
		return
	}
	mode, err := inference.ParseScanMode(r.FormValue("scanMode"))
	if err != nil {
		h.fail(w, r, "Invalid scan mode", err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.failWithStatus(w, r, http.StatusBadRequest, "No image file provided", err)
		return
	}
	defer file.Close() //nolint:errcheck
	if header.Size > maxSize {
		h.failWithStatus(w, r, http.StatusRequestEntityTooLarge, "Image too large",
			fmt.Errorf("image is %d bytes, limit is %d", header.Size, maxSize))
		return
	}
	image, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		h.failWithStatus(w, r, http.StatusBadRequest, "Failed to read image", err)
		return
	}
	if len(image) == 0 {
		h.failWithStatus(w, r, http.StatusBadRequest, "No image file provided", nil)
		return
	}

	if !h.allow(w, r, userID, fitmeter.FeatureImageAnalysis) {
		return
	}

	result, err := h.config.Analyzer.AnalyzeImage(ctx, image, mode)
	if err != nil {
		h.failWithStatus(w, r, upstreamStatus(err), "Failed to analyze image", err)
		return
	}

	analysis := Analysis{
		FoodName:      result.FoodName,
		Calories:      result.Calories,
		Protein:       result.Protein,
		Fat:           result.Fat,
		Carbohydrates: result.Carbohydrates,
		Sugars:        result.Sugars,
		IsJunkFood:    result.Junk,
	}
	units := fitmeter.EstimateImageUnits(len(image), result.ResultLength())
	report, err := h.config.Manager.TrackUsage(ctx, userID, fitmeter.FeatureImageAnalysis, units)
	if err != nil {
		h.fail(w, r, "Failed to track usage", err)
		return
	}

	h.writeJSON(w, http.StatusOK, AnalysisResponse{
		Analysis:  analysis,
		TokenInfo: tokenInfo(report),
		ScanMode:  string(mode),
	})
}

// LogMeal stores a meal and advances the user's streak
func (h *Handler) LogMeal(w http.ResponseWriter, r *http.Request) {
	var req LogMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.failWithStatus(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.FoodName) == "" {
		h.failWithStatus(w, r, http.StatusBadRequest, "Missing required fields", nil)
		return
	}

	result, err := h.config.Manager.LogMeal(r.Context(), &fitmeter.Meal{
		UserID:        req.UserID,
		FoodName:      req.FoodName,
		Calories:      intValue(req.Calories),
		Protein:       intValue(req.Protein),
		Fat:           intValue(req.Fat),
		Carbohydrates: intValue(req.Carbohydrates),
		Sugars:        intValue(req.Sugars),
		Junk:          boolValue(req.IsJunkFood),
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		if errors.Is(err, fitmeter.ErrUserNotFound) {
			h.failWithStatus(w, r, http.StatusNotFound, "User not found", nil)
			return
		}
		h.fail(w, r, "Failed to log meal", err)
		return
	}

	h.writeJSON(w, http.StatusOK, LogMealResponse{
		Success:           true,
		MealID:            result.MealID,
		Streak:            result.Streak,
		MealsTrackedToday: result.MealsTrackedToday,
	})
}

// UserTokens reports the stored usage of every feature for one user
func (h *Handler) UserTokens(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		h.failWithStatus(w, r, http.StatusBadRequest, "Missing user ID", nil)
		return
	}

	summary, err := h.config.Manager.GetUsage(r.Context(), userID)
	if err != nil {
		if errors.Is(err, fitmeter.ErrUserNotFound) {
			h.failWithStatus(w, r, http.StatusNotFound, "User not found", nil)
			return
		}
		h.fail(w, r, "Failed to get token usage", err)
		return
	}

	usage := make(map[string]FeatureUsage, len(summary.Features))
	for feature, report := range summary.Features {
		usage[feature.String()] = FeatureUsage{
			Period:    report.Period.String(),
			Used:      report.Used,
			Remaining: report.Remaining,
			Limit:     report.Limit,
		}
	}
	h.writeJSON(w, http.StatusOK, UserTokensResponse{
		UserID:     userID,
		Plan:       summary.Plan,
		TokenUsage: usage,
	})
}

// SubscriptionStatus reports whether a user is on a paid plan
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		h.failWithStatus(w, r, http.StatusBadRequest, "Missing user ID", nil)
		return
	}

	sub, err := h.config.Manager.Subscription(r.Context(), userID)
	if err != nil {
		if errors.Is(err, fitmeter.ErrUserNotFound) {
			h.failWithStatus(w, r, http.StatusNotFound, "User not found", nil)
			return
		}
		h.fail(w, r, "Failed to get subscription status", err)
		return
	}

	resp := SubscriptionStatusResponse{IsPremium: sub.IsPremium, SubscriptionDate: sub.Since}
	if sub.Plan != "" {
		resp.SubscriptionType = &sub.Plan
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Health reports storage liveness and the free allowances
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	storageOK := true
	if err := h.config.Manager.Ping(r.Context()); err != nil {
		h.logger.Warn("storage health check failed", fitmeter.ErrField(err))
		storageOK = false
	}

	status := "ok"
	code := http.StatusOK
	if !storageOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	limits := h.config.Manager.DefaultLimits()
	features := make(map[string]FeatureLimits, len(fitmeter.Features))
	for _, f := range fitmeter.Features {
		features[f.String()] = FeatureLimits{FreeTokens: limits.Limit(f)}
	}
	h.writeJSON(w, code, HealthResponse{Status: status, Storage: storageOK, Features: features})
}

// Checkout starts a premium subscription purchase
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.failWithStatus(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" || req.SuccessURL == "" || req.CancelURL == "" {
		h.failWithStatus(w, r, http.StatusBadRequest, "Missing required fields", nil)
		return
	}

	url, err := h.config.Billing.CheckoutURL(r.Context(), req.UserID, req.SuccessURL, req.CancelURL)
	if err != nil {
		h.fail(w, r, "Failed to create checkout session", err)
		return
	}
	h.writeJSON(w, http.StatusOK, CheckoutResponse{URL: url})
}

// allow rejects the request with 429 when the feature quota is already spent
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, userID string, feature fitmeter.Feature) bool {
	report, err := h.config.Manager.Allow(r.Context(), userID, feature)
	if report != nil {
		w.Header().Set("X-Quota-Limit", strconv.FormatUint(report.Limit, 10))
		w.Header().Set("X-Quota-Remaining", strconv.FormatUint(report.Remaining, 10))
	}
	if err == nil {
		return true
	}
	if errors.Is(err, fitmeter.ErrQuotaExhausted) {
		h.failWithStatus(w, r, http.StatusTooManyRequests, "Quota exhausted",
			fmt.Errorf("%s quota of %d units used for period %s", feature, report.Limit, report.Period))
		return false
	}
	h.fail(w, r, "Failed to check quota", err)
	return false
}

func tokenInfo(report *fitmeter.UsageReport) TokenInfo {
	return TokenInfo{
		Used:        report.Used,
		Remaining:   report.Remaining,
		Period:      report.Period.String(),
		FeatureType: report.Feature.String(),
	}
}

// upstreamStatus is the status for a failed inference call
func upstreamStatus(err error) int {
	if status := statusFor(err); status != http.StatusInternalServerError {
		return status
	}
	return http.StatusBadGateway
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	return json.NewDecoder(r.Body).Decode(v)
}
