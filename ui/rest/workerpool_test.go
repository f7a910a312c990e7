package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-crm/pkg/taskpool"
	"github.com/gofiber/fiber/v2"
)

func TestWorkerPoolStatsUninitialized(t *testing.T) {
	app := fiber.New()
	InitRestWorkerPool(app, nil)

	req := httptest.NewRequest(http.MethodGet, "/workers/stats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestWorkerPoolStatsInitialized(t *testing.T) {
	app := fiber.New()

	ctx, cancel := context.WithCancel(context.Background())
	pool := taskpool.NewPool(2, 10)
	pool.Start(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Stop()
	})

	InitRestWorkerPool(app, pool)

	req := httptest.NewRequest(http.MethodGet, "/workers/stats", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}
