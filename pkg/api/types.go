package api

import "time"

// GeneratePlanRequest is the body of POST /generate-plan
type GeneratePlanRequest struct {
	UserID string `json:"userId"`
	Prompt string `json:"prompt"`
}

// GeneratePlanResponse is returned by POST /generate-plan
type GeneratePlanResponse struct {
	Plan      string    `json:"plan"`
	TokenInfo TokenInfo `json:"tokenInfo"`
}

// TokenInfo reports a feature's standing after a request was charged
type TokenInfo struct {
	Used        uint64 `json:"used"`
	Remaining   uint64 `json:"remaining"`
	Period      string `json:"period"`
	FeatureType string `json:"featureType"`
}

// AnalysisResponse is returned by POST /analyze-image
type AnalysisResponse struct {
	Analysis  Analysis  `json:"analysis"`
	TokenInfo TokenInfo `json:"tokenInfo"`
	ScanMode  string    `json:"scanMode"`
}

// Analysis is the nutrition estimate for an image
type Analysis struct {
	FoodName      string  `json:"foodName"`
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Fat           float64 `json:"fat"`
	Carbohydrates float64 `json:"carbohydrates"`
	Sugars        float64 `json:"sugars"`
	IsJunkFood    bool    `json:"isJunkFood"`
}

// LogMealRequest is the body of POST /log-meal. Nutrition values may be sent as
// numbers or numeric strings; anything unparsable counts as zero.
type LogMealRequest struct {
	UserID        string      `json:"userId"`
	FoodName      string      `json:"foodName"`
	Calories      interface{} `json:"calories"`
	Protein       interface{} `json:"protein"`
	Fat           interface{} `json:"fat"`
	Carbohydrates interface{} `json:"carbohydrates"`
	Sugars        interface{} `json:"sugars"`
	IsJunkFood    interface{} `json:"isJunkFood"`
	ImageURL      string      `json:"imageUrl"`
}

// LogMealResponse is returned by POST /log-meal
type LogMealResponse struct {
	Success           bool   `json:"success"`
	MealID            string `json:"mealId"`
	Streak            uint64 `json:"streak"`
	MealsTrackedToday uint64 `json:"mealsTrackedToday"`
}

// UserTokensResponse is returned by GET /user-tokens/{userId}
type UserTokensResponse struct {
	UserID     string                  `json:"userId"`
	Plan       string                  `json:"plan"`
	TokenUsage map[string]FeatureUsage `json:"tokenUsage"`
}

// SubscriptionStatusResponse is returned by GET /subscription/status/{userId}
type SubscriptionStatusResponse struct {
	IsPremium        bool       `json:"isPremium"`
	SubscriptionType *string    `json:"subscriptionType"`
	SubscriptionDate *time.Time `json:"subscriptionDate"`
}

// FeatureUsage is one feature's stored usage
type FeatureUsage struct {
	Period    string `json:"period"`
	Used      uint64 `json:"used"`
	Remaining uint64 `json:"remaining"`
	Limit     uint64 `json:"limit"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string                   `json:"status"`
	Storage  bool                     `json:"storage"`
	Features map[string]FeatureLimits `json:"features"`
}

// FeatureLimits advertises the free allowance of a feature
type FeatureLimits struct {
	FreeTokens uint64 `json:"freeTokens"`
}

// CheckoutRequest is the body of POST /billing/checkout
type CheckoutRequest struct {
	UserID     string `json:"userId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// CheckoutResponse is returned by POST /billing/checkout
type CheckoutResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
