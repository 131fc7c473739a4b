package fiber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
	"github.com/mihaimyh/fitmeter/storage/memory"
)

// errorStorage is a mock storage that always fails on GetUser
type errorStorage struct {
	*memory.Storage
}

func (s *errorStorage) GetUser(_ context.Context, _ string) (*fitmeter.UserRecord, error) {
	return nil, errors.New("connection refused")
}

// Test helper to create a test manager
func setupTestManager(t *testing.T, storage fitmeter.Storage) *fitmeter.Manager {
	t.Helper()

	manager, err := fitmeter.NewManager(storage, fitmeter.Config{
		Plans:    map[string]fitmeter.PlanLimits{"free": {PlanGeneration: 100, ImageAnalysis: 20}},
		Location: time.UTC,
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	return manager
}

func newApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if uid := c.Get("X-Auth-User"); uid != "" {
			c.Locals("UserID", uid)
		}
		return c.Next()
	})
	app.Use(Middleware(cfg))
	app.Post("/api/plan", func(c *fiber.Ctx) error {
		return c.SendString("success")
	})
	return app
}

func request(t *testing.T, app *fiber.App, userID string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/plan", http.NoBody)
	if userID != "" {
		req.Header.Set("X-Auth-User", userID)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestMiddleware_Success(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeaturePlanGeneration, 40); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	app := newApp(Config{
		Manager:   manager,
		GetUserID: FromContext("UserID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})

	resp := request(t, app, "user1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "success" {
		t.Errorf("Expected 'success', got %s", string(body))
	}
	if got := resp.Header.Get(HeaderQuotaRemaining); got != "60" {
		t.Errorf("Expected remaining 60, got %q", got)
	}
	if got := resp.Header.Get(HeaderQuotaLimit); got != "100" {
		t.Errorf("Expected limit 100, got %q", got)
	}
}

func TestMiddleware_QuotaExhausted(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeaturePlanGeneration, 100); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	app := newApp(Config{
		Manager:   manager,
		GetUserID: FromContext("UserID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})

	resp := request(t, app, "user1")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(HeaderQuotaRemaining); got != "0" {
		t.Errorf("Expected remaining 0, got %q", got)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "Quota exhausted" || body["used"] != float64(100) {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestMiddleware_CustomQuotaHandler(t *testing.T) {
	manager := setupTestManager(t, memory.New())
	if _, err := manager.TrackUsage(context.Background(), "user1", fitmeter.FeaturePlanGeneration, 100); err != nil {
		t.Fatalf("TrackUsage() error = %v", err)
	}

	app := newApp(Config{
		Manager:   manager,
		GetUserID: FromContext("UserID"),
		Feature:   fitmeter.FeaturePlanGeneration,
		OnQuotaExceeded: func(c *fiber.Ctx, report *fitmeter.UsageReport) error {
			return c.Status(fiber.StatusPaymentRequired).SendString(report.Feature.String())
		},
	})

	resp := request(t, app, "user1")
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("Expected status 402, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "planGeneration" {
		t.Errorf("Expected feature name, got %s", string(body))
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	app := newApp(Config{
		Manager:   setupTestManager(t, memory.New()),
		GetUserID: FromContext("UserID"),
		Feature:   fitmeter.FeaturePlanGeneration,
	})

	if resp := request(t, app, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestMiddleware_StorageError(t *testing.T) {
	app := newApp(Config{
		Manager:   setupTestManager(t, &errorStorage{Storage: memory.New()}),
		GetUserID: FromContext("UserID"),
		Feature:   fitmeter.FeatureImageAnalysis,
	})

	if resp := request(t, app, "user1"); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", resp.StatusCode)
	}
}

func TestExtractors(t *testing.T) {
	app := fiber.New()
	app.Get("/users/:userId", func(c *fiber.Ctx) error {
		return c.SendString(FromParam("userId")(c) + "|" + FromQuery("q")(c) + "|" + FromHeader("X-User-ID")(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/users/p-user?q=q-user", http.NoBody)
	req.Header.Set("X-User-ID", "h-user")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "p-user|q-user|h-user" {
		t.Errorf("unexpected extractor output: %s", string(body))
	}
}
