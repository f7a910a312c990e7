package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domainRouter "github.com/AzielCF/az-crm/domains/router"
	"github.com/gofiber/fiber/v2"
)

// fakeInboundService implementa IInboundUsecase devolviendo una respuesta fija.
type fakeInboundService struct {
	response domainRouter.RouteResponse
	err      error

	whatsappCalls int
	lastWhatsApp  domainRouter.WhatsAppEventPayload
}

func (f *fakeInboundService) HandleWhatsApp(ctx context.Context, payload domainRouter.WhatsAppEventPayload) (domainRouter.RouteResponse, error) {
	f.whatsappCalls++
	f.lastWhatsApp = payload
	return f.response, f.err
}

func (f *fakeInboundService) HandleTelegram(ctx context.Context, payload domainRouter.TelegramWebhookPayload) (domainRouter.RouteResponse, error) {
	return f.response, f.err
}

func (f *fakeInboundService) HandleEmail(ctx context.Context, payload domainRouter.EmailWebhookPayload) (domainRouter.RouteResponse, error) {
	return f.response, f.err
}

func TestWebhookWhatsAppRouted(t *testing.T) {
	app := fiber.New()
	service := &fakeInboundService{response: domainRouter.RouteResponse{
		Success:   true,
		ChatID:    "chat-1",
		MessageID: "msg-1",
		Channel:   "whatsapp",
		HandledBy: "ai",
	}}
	InitRestWebhook(app, service)

	body := []byte(`{"dataType":"message","sessionId":"acme-1","data":{"message":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var routed domainRouter.RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routed); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if !routed.Success || routed.ChatID != "chat-1" {
		t.Fatalf("unexpected route response: %+v", routed)
	}
	if service.whatsappCalls != 1 {
		t.Fatalf("expected 1 service call, got %d", service.whatsappCalls)
	}
	if service.lastWhatsApp.SessionID != "acme-1" {
		t.Fatalf("expected sessionId 'acme-1', got %q", service.lastWhatsApp.SessionID)
	}
}

// Un cuerpo ilegible responde 200 igualmente: un gateway que recibe un
// 4xx/5xx reintenta la entrega y acaba duplicando el mensaje.
func TestWebhookMalformedBodyStillResponds200(t *testing.T) {
	app := fiber.New()
	service := &fakeInboundService{}
	InitRestWebhook(app, service)

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var routed domainRouter.RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routed); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if routed.Success {
		t.Fatalf("expected success=false, got %+v", routed)
	}
	if routed.Message != "invalid payload" {
		t.Fatalf("expected message 'invalid payload', got %q", routed.Message)
	}
	if service.whatsappCalls != 0 {
		t.Fatalf("service should not be called on malformed body, got %d calls", service.whatsappCalls)
	}
}

func TestWebhookServiceErrorStillResponds200(t *testing.T) {
	app := fiber.New()
	service := &fakeInboundService{
		response: domainRouter.RouteResponse{Success: false, Channel: "telegram"},
		err:      errors.New("no agent configured for bot token"),
	}
	InitRestWebhook(app, service)

	body := []byte(`{"telegram_id":"555","text":"hola"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var routed domainRouter.RouteResponse
	if err := json.NewDecoder(resp.Body).Decode(&routed); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if routed.Success {
		t.Fatalf("expected success=false, got %+v", routed)
	}
	if routed.Message != "no agent configured for bot token" {
		t.Fatalf("expected the service error in message, got %q", routed.Message)
	}
}
