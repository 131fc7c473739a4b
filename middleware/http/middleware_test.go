package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
	"github.com/mihaimyh/fitmeter/storage/memory"
)

// errorStorage is a storage that fails every read
type errorStorage struct {
	*memory.Storage
}

func (s *errorStorage) GetUser(_ context.Context, _ string) (*fitmeter.UserRecord, error) {
	return nil, errors.New("connection refused")
}

// Test helper to create a manager with a small free plan
func setupTestManager(t *testing.T, storage fitmeter.Storage) *fitmeter.Manager {
	t.Helper()

	manager, err := fitmeter.NewManager(storage, fitmeter.Config{
		Plans: map[string]fitmeter.PlanLimits{
			"free":    {PlanGeneration: 10, ImageAnalysis: 10},
			"premium": {PlanGeneration: 1000, ImageAnalysis: 1000},
		},
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	})
}

func serve(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/generate-plan", http.NoBody)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Success(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeaturePlanGeneration, 4); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})(okHandler())

	rec := serve(handler, "user1")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != "success" {
		t.Errorf("Expected 'success', got %s", rec.Body.String())
	}
	if got := rec.Header().Get(HeaderQuotaRemaining); got != "6" {
		t.Errorf("Expected remaining 6, got %q", got)
	}
	if got := rec.Header().Get(HeaderQuotaLimit); got != "10" {
		t.Errorf("Expected limit 10, got %q", got)
	}
}

func TestMiddleware_UnknownUserGetsFullQuota(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeatureImageAnalysis,
	})(okHandler())

	rec := serve(handler, "newcomer")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(HeaderQuotaRemaining); got != "10" {
		t.Errorf("Expected remaining 10, got %q", got)
	}
}

func TestMiddleware_QuotaExhausted(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeaturePlanGeneration, 25); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	called := false
	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := serve(handler, "user1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run when quota is exhausted")
	}
	if got := rec.Header().Get(HeaderQuotaRemaining); got != "0" {
		t.Errorf("Expected remaining 0, got %q", got)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "Quota exhausted" {
		t.Errorf("unexpected body: %v", body)
	}
	if body["used"] != float64(25) {
		t.Errorf("Expected used 25, got %v", body["used"])
	}
}

func TestMiddleware_OtherFeatureUnaffected(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeaturePlanGeneration, 10); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeatureImageAnalysis,
	})(okHandler())

	if rec := serve(handler, "user1"); rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestMiddleware_PremiumPlan(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	ctx := context.Background()
	if _, err := manager.TrackUsage(ctx, "user1", fitmeter.FeaturePlanGeneration, 50); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}
	if err := manager.SetPlan(ctx, "user1", "premium"); err != nil {
		t.Fatalf("SetPlan() error = %v", err)
	}

	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})(okHandler())

	rec := serve(handler, "user1")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get(HeaderQuotaRemaining); got != "950" {
		t.Errorf("Expected remaining 950, got %q", got)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})(okHandler())

	rec := serve(handler, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestMiddleware_StorageError(t *testing.T) {
	manager := setupTestManager(t, &errorStorage{Storage: memory.New()})
	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})(okHandler())

	rec := serve(handler, "user1")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
}

func TestMiddleware_CustomHandlers(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeatureImageAnalysis, 10); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	var exceeded *fitmeter.UsageReport
	handler := Middleware(Config{
		Manager:   manager,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   fitmeter.FeatureImageAnalysis,
		OnQuotaExceeded: func(w http.ResponseWriter, _ *http.Request, report *fitmeter.UsageReport) {
			exceeded = report
			w.WriteHeader(http.StatusPaymentRequired)
		},
		OnUnauthorized: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
	})(okHandler())

	if rec := serve(handler, "user1"); rec.Code != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", rec.Code)
	}
	if exceeded == nil || exceeded.Feature != fitmeter.FeatureImageAnalysis || exceeded.Used != 10 {
		t.Errorf("unexpected report: %+v", exceeded)
	}
	if rec := serve(handler, ""); rec.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rec.Code)
	}
}

func TestMiddleware_PanicsOnMissingConfig(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	tests := []struct {
		name   string
		config Config
	}{
		{"missing manager", Config{GetUserID: FromHeader("X"), Feature: fitmeter.FeaturePlanGeneration}},
		{"missing extractor", Config{Manager: manager, Feature: fitmeter.FeaturePlanGeneration}},
		{"missing feature", Config{Manager: manager, GetUserID: FromHeader("X")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			Middleware(tt.config)
		})
	}
}

type ctxKey struct{}

func TestExtractors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?uid=q-user", http.NoBody)
	req.Header.Set("X-User-ID", "h-user")
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "c-user"))

	if got := FromHeader("X-User-ID")(req); got != "h-user" {
		t.Errorf("FromHeader = %q", got)
	}
	if got := FromQuery("uid")(req); got != "q-user" {
		t.Errorf("FromQuery = %q", got)
	}
	if got := FromContext(ctxKey{})(req); got != "c-user" {
		t.Errorf("FromContext = %q", got)
	}
	if got := FromContext("missing")(req); got != "" {
		t.Errorf("FromContext(missing) = %q", got)
	}
}
