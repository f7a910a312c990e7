package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path   string
	header http.Header
	body   map[string]interface{}
}

func newGatewayServer(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.header = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&captured.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestDispatchWhatsAppTextMessage(t *testing.T) {
	srv, captured := newGatewayServer(t, http.StatusOK)
	svc := NewDispatchService(coreconfig.ChannelsConfig{
		WhatsAppBaseURL: srv.URL,
		WhatsAppAPIKey:  "secret-key",
	})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		TenantID: "t1",
		AgentID:  "agent-1",
		Channel:  crm.ChannelWhatsApp,
		ChatID:   "08123456",
		Content:  "Hola, ¿en qué puedo ayudarte?",
	})

	require.True(t, res.Success, res.Detail)
	assert.Equal(t, "/client/sendMessage/agent-1", captured.path)
	assert.Equal(t, "secret-key", captured.header.Get("x-api-key"))
	assert.Equal(t, "AIgent-CRM/1.0", captured.header.Get("User-Agent"))
	assert.Equal(t, "628123456@c.us", captured.body["chatId"])
	assert.Equal(t, "string", captured.body["contentType"])
	assert.Equal(t, "Hola, ¿en qué puedo ayudarte?", captured.body["content"])
}

func TestDispatchWhatsAppMediaWithCaption(t *testing.T) {
	srv, captured := newGatewayServer(t, http.StatusOK)
	svc := NewDispatchService(coreconfig.ChannelsConfig{WhatsAppBaseURL: srv.URL})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		AgentID:  "agent-1",
		Channel:  crm.ChannelWhatsApp,
		ChatID:   "628123456@c.us",
		Content:  "Aquí está tu factura",
		MediaURL: "https://cdn.example.com/factura.pdf",
	})

	require.True(t, res.Success)
	assert.Equal(t, "MessageMediaFromURL", captured.body["contentType"])
	assert.Equal(t, "https://cdn.example.com/factura.pdf", captured.body["content"])
	opts, ok := captured.body["options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Aquí está tu factura", opts["caption"])
}

func TestDispatchWhatsAppGroupMentions(t *testing.T) {
	srv, captured := newGatewayServer(t, http.StatusOK)
	svc := NewDispatchService(coreconfig.ChannelsConfig{WhatsAppBaseURL: srv.URL})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		AgentID:  "agent-1",
		Channel:  crm.ChannelWhatsApp,
		ChatID:   "1203630@g.us",
		Content:  "tu pedido ya salió",
		Mentions: []string{"0811-222-333"},
	})

	require.True(t, res.Success)
	// El id de grupo viaja tal cual, sin normalizar.
	assert.Equal(t, "1203630@g.us", captured.body["chatId"])
	assert.Equal(t, "@62811222333 tu pedido ya salió", captured.body["content"])
	opts, ok := captured.body["options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"62811222333@c.us"}, opts["mentions"])
}

func TestDispatchWhatsAppGatewayError(t *testing.T) {
	srv, _ := newGatewayServer(t, http.StatusInternalServerError)
	svc := NewDispatchService(coreconfig.ChannelsConfig{WhatsAppBaseURL: srv.URL})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		AgentID: "agent-1",
		Channel: crm.ChannelWhatsApp,
		ChatID:  "628123456",
		Content: "hola",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Detail, "500")
}

func TestDispatchTelegram(t *testing.T) {
	srv, captured := newGatewayServer(t, http.StatusOK)
	svc := NewDispatchService(coreconfig.ChannelsConfig{
		TelegramBaseURL:    srv.URL,
		TelegramServiceKey: "svc-key",
	})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		AgentID: "agent-2",
		Channel: crm.ChannelTelegram,
		ChatID:  "987654321",
		Content: "Terima kasih!",
	})

	require.True(t, res.Success)
	assert.Equal(t, "/api/webhook/send", captured.path)
	assert.Equal(t, "svc-key", captured.header.Get("X-Service-Key"))
	assert.Equal(t, "agent-2", captured.body["agent_id"])
	assert.Equal(t, "987654321", captured.body["chat_id"])
	assert.Equal(t, "Terima kasih!", captured.body["text"])
}

func TestDispatchEmailDefaults(t *testing.T) {
	srv, captured := newGatewayServer(t, http.StatusOK)
	svc := NewDispatchService(coreconfig.ChannelsConfig{EmailWebhookURL: srv.URL})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		AgentID:   "agent-3",
		Channel:   crm.ChannelEmail,
		ChatID:    "cliente@example.com",
		Content:   "Gracias por escribirnos.",
		FromEmail: "soporte@acme.com",
	})

	require.True(t, res.Success)
	assert.Equal(t, "cliente@example.com", captured.body["to_email"])
	assert.Equal(t, "soporte@acme.com", captured.body["from_email"])
	assert.Equal(t, "Re: Your inquiry", captured.body["subject"])
	assert.Equal(t, "Gracias por escribirnos.", captured.body["message"])
}

func TestDispatchUnconfiguredGateway(t *testing.T) {
	svc := NewDispatchService(coreconfig.ChannelsConfig{})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{
		Channel: crm.ChannelWhatsApp,
		ChatID:  "628123456",
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Detail, "not configured")
}

func TestDispatchUnsupportedChannel(t *testing.T) {
	svc := NewDispatchService(coreconfig.ChannelsConfig{})

	res := svc.Send(context.Background(), dispatch.OutboundMessage{Channel: crm.Channel("fax")})

	assert.False(t, res.Success)
	assert.Contains(t, res.Detail, "unsupported channel")
}
