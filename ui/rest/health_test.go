package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-crm/domains/health"
	"github.com/gofiber/fiber/v2"
)

// fakeHealthService devuelve estados fijos para la base de datos y Valkey.
type fakeHealthService struct {
	db     health.Status
	valkey health.Status
}

func (f *fakeHealthService) CheckDatabase(ctx context.Context) (health.HealthRecord, error) {
	return health.HealthRecord{EntityType: health.EntityDatabase, EntityID: "primary", Status: f.db}, nil
}

func (f *fakeHealthService) CheckValkey(ctx context.Context) (health.HealthRecord, error) {
	return health.HealthRecord{EntityType: health.EntityValkey, EntityID: "primary", Status: f.valkey}, nil
}

func (f *fakeHealthService) CheckLLMProxy(ctx context.Context) (health.HealthRecord, error) {
	return health.HealthRecord{EntityType: health.EntityLLMProxy, EntityID: "proxy", Status: health.StatusOk}, nil
}

func (f *fakeHealthService) CheckChannel(ctx context.Context, channel string) (health.HealthRecord, error) {
	return health.HealthRecord{EntityType: health.EntityChannel, EntityID: channel, Status: health.StatusOk}, nil
}

func (f *fakeHealthService) CheckAll(ctx context.Context) ([]health.HealthRecord, error) {
	return nil, nil
}

func (f *fakeHealthService) GetStatus(ctx context.Context) ([]health.HealthRecord, error) {
	return nil, nil
}

func (f *fakeHealthService) GetEntityStatus(ctx context.Context, entityType health.EntityType, entityID string) (health.HealthRecord, error) {
	return health.HealthRecord{}, nil
}

func (f *fakeHealthService) ReportFailure(ctx context.Context, entityType health.EntityType, entityID string, message string) {
}

func (f *fakeHealthService) ReportSuccess(ctx context.Context, entityType health.EntityType, entityID string) {
}

func (f *fakeHealthService) StartPeriodicChecks(ctx context.Context) {}

// La sonda pública degrada por Valkey pero solo devuelve 503 cuando la base
// de datos está caída.
func TestHealthLivenessStatuses(t *testing.T) {
	cases := []struct {
		name       string
		db         health.Status
		valkey     health.Status
		wantHTTP   int
		wantStatus string
	}{
		{"all ok", health.StatusOk, health.StatusOk, http.StatusOK, "healthy"},
		{"valkey down", health.StatusOk, health.StatusError, http.StatusOK, "degraded"},
		{"database down", health.StatusError, health.StatusOk, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tc := range cases {
		app := fiber.New()
		InitRestHealth(app, &fakeHealthService{db: tc.db, valkey: tc.valkey})

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error (%s): %v", tc.name, err)
		}

		if resp.StatusCode != tc.wantHTTP {
			resp.Body.Close()
			t.Fatalf("expected status %d, got %d (%s)", tc.wantHTTP, resp.StatusCode, tc.name)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			t.Fatalf("decode error (%s): %v", tc.name, err)
		}
		resp.Body.Close()

		if body["status"] != tc.wantStatus {
			t.Fatalf("expected status %q, got %#v (%s)", tc.wantStatus, body["status"], tc.name)
		}
	}
}

func TestHealthChannelCheckEndpoint(t *testing.T) {
	app := fiber.New()
	InitRestHealth(app, &fakeHealthService{db: health.StatusOk, valkey: health.StatusOk})

	req := httptest.NewRequest(http.MethodPost, "/api/health/channel/whatsapp/check", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var envelope struct {
		Code    string                 `json:"code"`
		Results map[string]interface{} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if envelope.Code != "SUCCESS" {
		t.Fatalf("unexpected code %q", envelope.Code)
	}
	if v, ok := envelope.Results["entity_id"].(string); !ok || v != "whatsapp" {
		t.Fatalf("expected entity_id 'whatsapp', got %#v", envelope.Results["entity_id"])
	}
}
