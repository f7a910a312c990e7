package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzielCF/az-crm/domains/crm"
	domainTicket "github.com/AzielCF/az-crm/domains/ticket"
	"github.com/AzielCF/az-crm/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
)

type fakeTicketService struct {
	lastTenantID string
	lastCreate   domainTicket.CreateTicketRequest
}

func (f *fakeTicketService) Create(ctx context.Context, tenantID string, req domainTicket.CreateTicketRequest) (*crm.Ticket, error) {
	f.lastTenantID = tenantID
	f.lastCreate = req
	return &crm.Ticket{
		ID:       "ticket-1",
		TenantID: tenantID,
		Code:     "TKT-000001",
		Subject:  req.Subject,
		Status:   crm.TicketOpen,
	}, nil
}

func (f *fakeTicketService) GetByID(ctx context.Context, tenantID, id string) (*crm.Ticket, error) {
	return nil, crm.ErrTicketNotFound
}

func (f *fakeTicketService) List(ctx context.Context, tenantID string, filter crm.TicketFilter) ([]*crm.Ticket, error) {
	return nil, nil
}

func (f *fakeTicketService) Update(ctx context.Context, tenantID, id string, req domainTicket.UpdateTicketRequest) (*crm.Ticket, error) {
	return nil, crm.ErrTicketNotFound
}

func (f *fakeTicketService) ListActivities(ctx context.Context, tenantID, ticketID string) ([]crm.TicketActivity, error) {
	return nil, nil
}

func TestTicketCreateReturns201(t *testing.T) {
	service := &fakeTicketService{}
	app := fiber.New()
	app.Use(middleware.Recovery())
	InitRestTicket(app, service)

	body := []byte(`{"chat_id":"chat-1","customer_id":"cus-1","subject":"Factura duplicada","priority":"high"}`)
	// El tenant también puede llegar por query, no solo por cabecera.
	req := httptest.NewRequest(http.MethodPost, "/tickets?tenant_id=tenant-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var envelope struct {
		Status  int                    `json:"status"`
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Results map[string]interface{} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	if envelope.Code != "SUCCESS" || envelope.Message != "Ticket created" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
	if v, ok := envelope.Results["code"].(string); !ok || v != "TKT-000001" {
		t.Fatalf("expected ticket code 'TKT-000001', got %#v", envelope.Results["code"])
	}

	if service.lastTenantID != "tenant-1" {
		t.Fatalf("expected tenant 'tenant-1', got %q", service.lastTenantID)
	}
	if service.lastCreate.Subject != "Factura duplicada" {
		t.Fatalf("unexpected subject %q", service.lastCreate.Subject)
	}
	if service.lastCreate.Priority != crm.PriorityHigh {
		t.Fatalf("expected priority 'high', got %q", service.lastCreate.Priority)
	}
}
