package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/pipeline"
	"github.com/AzielCF/az-crm/domains/router"
	"github.com/AzielCF/az-crm/pkg/timeutils"
	"github.com/AzielCF/az-crm/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waAgentNumber = "6287800011122"

type debounceCall struct {
	chatID    string
	messageID string
	priority  string
}

type recordingDebouncer struct {
	mu    sync.Mutex
	calls []debounceCall
}

func (d *recordingDebouncer) Enqueue(_ context.Context, chatID, messageID, priority string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, debounceCall{chatID: chatID, messageID: messageID, priority: priority})
	return nil
}

func (d *recordingDebouncer) Supervise(context.Context) error { return nil }

func (d *recordingDebouncer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *recordingDebouncer) last() debounceCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return debounceCall{}
	}
	return d.calls[len(d.calls)-1]
}

// findAll devuelve los eventos de un tipo en orden de emisión.
func (b *recordingBroadcaster) findAll(kind string) []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastEvent
	for _, e := range b.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type inboundFixture struct {
	repos      *stateRepos
	llm        *fakeLLM
	dispatcher *recordingDispatcher
	broadcast  *recordingBroadcaster
	debounced  *recordingDebouncer
	svc        router.IInboundUsecase
	tenant     *crm.Tenant
	agent      *crm.Agent
}

func newInboundFixture(t *testing.T, channel crm.Channel, identifier string, settings crm.AgentSettings) *inboundFixture {
	t.Helper()
	repos := newStateRepos(t)
	tenant := seedStateTenant(t, repos)

	agent := &crm.Agent{
		TenantID:   tenant.ID,
		Name:       "Syntra Bot",
		Channel:    channel,
		Identifier: identifier,
		IsAI:       true,
		IsActive:   true,
		Settings:   settings,
	}
	require.NoError(t, repos.agents.Create(context.Background(), agent))

	llm := &fakeLLM{}
	dispatcher := &recordingDispatcher{}
	broadcast := &recordingBroadcaster{}
	debounced := &recordingDebouncer{}

	routerUC := NewRouterService(
		repository.NewMemoryLockService(),
		repos.customers, repos.chats, repos.messages,
		coreconfig.RouterConfig{LockTTLSeconds: 5, LockMaxWaitSeconds: 2},
	)
	guard := NewTicketGuardService(llm, coreconfig.LLMConfig{GuardModel: "guard-mini"})
	ticketUC := NewTicketService(repos.tickets, repos.chats, repos.agents, broadcast)

	svc := NewInboundService(
		repos.agents, repos.customers, repos.chats, repos.messages, repos.tickets,
		routerUC, ticketUC, guard, debounced, dispatcher, broadcast,
	)

	return &inboundFixture{
		repos:      repos,
		llm:        llm,
		dispatcher: dispatcher,
		broadcast:  broadcast,
		debounced:  debounced,
		svc:        svc,
		tenant:     tenant,
		agent:      agent,
	}
}

// waEvent arma el payload del gateway con el _data mínimo de un mensaje real.
func waEvent(msgID, body string, overrides map[string]any) router.WhatsAppEventPayload {
	data := map[string]any{
		"id":         map[string]any{"fromMe": false, "id": msgID},
		"from":       "628111222333@c.us",
		"to":         waAgentNumber + "@c.us",
		"body":       body,
		"notifyName": "Rina",
		"t":          float64(1736000000),
		"type":       "chat",
	}
	for k, v := range overrides {
		data[k] = v
	}
	return router.WhatsAppEventPayload{
		DataType:  "message",
		SessionID: "session-1",
		Message:   map[string]any{"_data": data},
	}
}

func TestInboundWhatsAppIgnoresSystemEvents(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	qr, err := f.svc.HandleWhatsApp(ctx, router.WhatsAppEventPayload{QR: "2@abc123", SessionID: "session-1"})
	require.NoError(t, err)
	assert.True(t, qr.Success)
	assert.Equal(t, "ignored", qr.Status)
	assert.Equal(t, "qr_code", qr.Message)

	loading, err := f.svc.HandleWhatsApp(ctx, router.WhatsAppEventPayload{Message: "WhatsApp"})
	require.NoError(t, err)
	assert.Equal(t, "status_update", loading.Message)

	own, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-own", "mi propia respuesta", map[string]any{
		"id": map[string]any{"fromMe": true, "id": "WA-own"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "from_me", own.Message)

	status, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-status", "", map[string]any{"isStatus": true}))
	require.NoError(t, err)
	assert.Equal(t, "status_broadcast", status.Message)

	e2e, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-e2e", "", map[string]any{"type": "e2e_notification"}))
	require.NoError(t, err)
	assert.Equal(t, "status_broadcast", e2e.Message)

	assert.Equal(t, 0, f.debounced.count())
	assert.Equal(t, 0, f.dispatcher.count())
	assert.Empty(t, f.broadcast.kinds())
}

func TestInboundWhatsAppRoutesToAI(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Pesanan saya belum sampai, mohon dicek", nil))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "processed", resp.Status)
	assert.Equal(t, "ai", resp.HandledBy)
	assert.True(t, resp.IsNewChat)
	assert.Equal(t, "whatsapp", resp.Channel)
	assert.Equal(t, "Message processed", resp.Message)
	require.NotEmpty(t, resp.ChatID)
	require.NotEmpty(t, resp.MessageID)
	require.NotEmpty(t, resp.CustomerID)

	require.Equal(t, 1, f.debounced.count())
	assert.Equal(t, resp.ChatID, f.debounced.last().chatID)
	assert.Equal(t, resp.MessageID, f.debounced.last().messageID)

	msg, err := f.repos.messages.GetByID(ctx, resp.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "Pesanan saya belum sampai, mohon dicek", msg.Content)
	assert.Equal(t, "WA-1", msg.ChannelMessageID)
	assert.Equal(t, crm.SenderCustomer, msg.SenderType)
	assert.Equal(t, time.Unix(1736000000, 0).UTC(), msg.CreatedAt.UTC())

	customer, err := f.repos.customers.GetByID(ctx, resp.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "Rina", customer.Meta.GetString("whatsapp_name"))
	assert.Equal(t, 1, customer.Meta.GetInt("message_count"))

	incoming := f.broadcast.find("new_message")
	require.NotNil(t, incoming)
	assert.Equal(t, "customer", incoming.message.SenderType)
	assert.Equal(t, "Rina", incoming.message.CustomerName)
	assert.True(t, incoming.message.IsNewChat)

	// Sin auto-respuestas ni guard en el camino feliz.
	assert.Equal(t, 0, f.dispatcher.count())
	assert.Equal(t, 0, f.llm.callCount())
}

func TestInboundWhatsAppUnknownAgent(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})

	resp, err := f.svc.HandleWhatsApp(context.Background(), waEvent("WA-1", "Halo", map[string]any{
		"to": "628999999999@c.us",
	}))
	assert.ErrorIs(t, err, crm.ErrAgentNotFound)
	assert.False(t, resp.Success)
	assert.Equal(t, 0, f.debounced.count())
}

func TestInboundInactiveAgentDrops(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	f.agent.IsActive = false
	require.NoError(t, f.repos.agents.Update(ctx, f.agent))

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Halo", nil))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, "dropped_inactive", resp.Status)
	assert.Equal(t, "Message dropped (Agent Inactive)", resp.Message)
	assert.Empty(t, resp.ChatID)
	assert.Equal(t, 0, f.debounced.count())
	assert.Empty(t, f.broadcast.kinds())
}

func TestInboundDuplicateDeliveryIgnored(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	first, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-dup", "Cek pesanan saya dong", nil))
	require.NoError(t, err)

	second, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-dup", "Cek pesanan saya dong", nil))
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.Equal(t, "ignored_duplicate", second.Status)
	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Equal(t, "ai", second.HandledBy)

	// La reentrega no dispara IA ni se difunde otra vez.
	assert.Equal(t, 1, f.debounced.count())
	assert.Len(t, f.broadcast.findAll("new_message"), 1)
}

func TestInboundBusyAgentAutoReplies(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{BusyMode: true})
	ctx := context.Background()

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Halo, ada yang bisa bantu?", nil))
	require.NoError(t, err)

	assert.Equal(t, "system_busy", resp.HandledBy)
	assert.Equal(t, "Auto-reply sent (Agent Busy)", resp.Message)
	assert.Equal(t, 0, f.debounced.count())

	require.Equal(t, 1, f.dispatcher.count())
	sent := f.dispatcher.last()
	assert.Equal(t, "Maaf, saat ini kami sedang sibuk.", sent.Content)
	assert.Equal(t, "628111222333@c.us", sent.ChatID)
	assert.Equal(t, crm.ChannelWhatsApp, sent.Channel)

	// ListByChat entrega los más recientes primero.
	msgs, err := f.repos.messages.ListByChat(ctx, resp.ChatID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	reply := msgs[0]
	assert.Equal(t, crm.SenderAI, reply.SenderType)
	assert.Equal(t, f.agent.ID, reply.SenderID)
	assert.Equal(t, "auto_reply", reply.Meta.GetString("type"))

	events := f.broadcast.findAll("new_message")
	require.Len(t, events, 2)
	assert.Equal(t, "AI Agent", events[1].message.CustomerName)
	assert.Equal(t, "ai", events[1].message.SenderType)
	assert.Equal(t, f.agent.ID, events[1].message.SenderID)
}

func TestInboundBusyMessageOverride(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{
		BusyMode:    true,
		BusyMessage: "Kami akan membalas dalam 1 jam.",
	})

	_, err := f.svc.HandleWhatsApp(context.Background(), waEvent("WA-1", "Halo", nil))
	require.NoError(t, err)

	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, "Kami akan membalas dalam 1 jam.", f.dispatcher.last().Content)
}

func TestInboundActiveTicketMutesAI(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	first, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Pesanan saya rusak", nil))
	require.NoError(t, err)
	require.Equal(t, 1, f.debounced.count())

	require.NoError(t, f.repos.tickets.Create(ctx, &crm.Ticket{
		TenantID:   f.tenant.ID,
		ChatID:     first.ChatID,
		CustomerID: first.CustomerID,
		Number:     1,
		Subject:    "Pesanan rusak",
		Status:     crm.TicketOpen,
		Priority:   crm.PriorityHigh,
	}))

	second, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-2", "Ada update?", nil))
	require.NoError(t, err)

	assert.Equal(t, "human_ticket", second.HandledBy)
	assert.Equal(t, 1, f.debounced.count())
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestInboundOutOfScheduleReplies(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{
		// Habilitado pero sin días configurados: siempre fuera de horario.
		Schedule: &timeutils.WorkSchedule{Enabled: true, Days: map[string]timeutils.DayWindow{}},
	})
	ctx := context.Background()

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Halo, masih buka?", nil))
	require.NoError(t, err)

	assert.Equal(t, "ooo_system", resp.HandledBy)
	assert.Equal(t, 0, f.debounced.count())

	require.Equal(t, 1, f.dispatcher.count())
	assert.Equal(t, "Maaf kami sedang tutup saat ini.", f.dispatcher.last().Content)

	chat, err := f.repos.chats.GetByID(ctx, resp.ChatID)
	require.NoError(t, err)
	assert.True(t, chat.Meta.GetBool("out_of_schedule"))

	msgs, err := f.repos.messages.ListByChat(ctx, resp.ChatID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Maaf kami sedang tutup saat ini.", msgs[0].Content)
}

func TestInboundGreetingStopsAI(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{
		Ticketing: crm.TicketingRules{Enabled: true, AutoCreate: true},
	})
	ctx := context.Background()

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Halo", nil))
	require.NoError(t, err)

	assert.Equal(t, "system_greeting", resp.HandledBy)
	assert.Equal(t, 0, f.debounced.count())
	// El fast guard resuelve saludos sin pasar por el clasificador.
	assert.Equal(t, 0, f.llm.callCount())

	require.Equal(t, 1, f.dispatcher.count())
	assert.Contains(t, f.dispatcher.last().Content, "Halo Rina!")
	assert.Contains(t, f.dispatcher.last().Content, "platform Syntra")

	_, terr := f.repos.tickets.FindActiveByCustomer(ctx, resp.CustomerID)
	assert.ErrorIs(t, terr, crm.ErrTicketNotFound)
}

func TestInboundGuardCreatesSilentTicket(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{
		Ticketing: crm.TicketingRules{Enabled: true, AutoCreate: true},
	})
	ctx := context.Background()
	f.llm.responses = []*pipeline.ChatResponse{
		{Text: `{"should_create_ticket": true, "reason": "Billing complaint", "suggested_priority": "high", "suggested_category": "billing", "auto_reply_hint": ""}`},
	}

	body := "Saya ditagih dua kali untuk pesanan yang sama, tolong dicek segera"
	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", body, nil))
	require.NoError(t, err)

	assert.Equal(t, "ai", resp.HandledBy)
	require.Equal(t, 1, f.debounced.count())
	assert.Equal(t, "high", f.debounced.last().priority)
	// El ticket se abre en silencio: nada se entrega al cliente.
	assert.Equal(t, 0, f.dispatcher.count())

	created, terr := f.repos.tickets.FindActiveByCustomer(ctx, resp.CustomerID)
	require.NoError(t, terr)
	assert.Equal(t, crm.PriorityHigh, created.Priority)
	assert.Equal(t, "billing", created.Category)
	assert.Equal(t, "[HIGH] BILLING - Saya ditagih dua kali untuk pesanan yang", created.Subject)
	assert.Equal(t, "Message: "+body, created.Description)

	require.Equal(t, 1, f.llm.callCount())
	assert.Equal(t, "ticket_guard", f.llm.lastRequest().Category)
	assert.NotNil(t, f.broadcast.find("ticket_created"))
}

func TestInboundGuardFallbackCategory(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{
		Ticketing: crm.TicketingRules{Enabled: true, AutoCreate: true},
	})
	ctx := context.Background()
	f.llm.responses = []*pipeline.ChatResponse{
		{Text: `{"should_create_ticket": true, "reason": "Complaint", "suggested_priority": "medium", "suggested_category": "refunds"}`},
	}

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Saya mau komplain soal dana yang belum kembali", nil))
	require.NoError(t, err)
	assert.Equal(t, "ai", resp.HandledBy)

	created, terr := f.repos.tickets.FindActiveByCustomer(ctx, resp.CustomerID)
	require.NoError(t, terr)
	// Una categoría fuera de lista cae en la primera permitida.
	assert.Equal(t, "billing", created.Category)
	assert.Equal(t, crm.PriorityMedium, created.Priority)
	assert.Contains(t, created.Subject, "[MEDIUM] BILLING - ")
}

func TestInboundGuardWithoutAutoCreateSkipsTicket(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{
		Ticketing: crm.TicketingRules{Enabled: true, AutoCreate: false},
	})
	ctx := context.Background()
	f.llm.responses = []*pipeline.ChatResponse{
		{Text: `{"should_create_ticket": true, "reason": "Technical issue", "suggested_priority": "medium", "suggested_category": "technical"}`},
	}

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Aplikasi error terus saat checkout", nil))
	require.NoError(t, err)

	assert.Equal(t, "ai", resp.HandledBy)
	assert.Equal(t, 1, f.debounced.count())
	_, terr := f.repos.tickets.FindActiveByCustomer(ctx, resp.CustomerID)
	assert.ErrorIs(t, terr, crm.ErrTicketNotFound)
}

func TestInboundHumanAgentSkipsAI(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	f.agent.IsAI = false
	require.NoError(t, f.repos.agents.Update(ctx, f.agent))

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-1", "Halo, saya mau tanya", nil))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "human", resp.HandledBy)
	assert.Equal(t, 0, f.debounced.count())
}

func TestInboundWhatsAppGroupUsesParticipant(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelWhatsApp, waAgentNumber, crm.AgentSettings{})
	ctx := context.Background()

	resp, err := f.svc.HandleWhatsApp(ctx, waEvent("WA-g1", "Halo dari grup", map[string]any{
		"from":   "120363000111222333@g.us",
		"author": "628111222333@c.us",
	}))
	require.NoError(t, err)
	assert.True(t, resp.Success)

	chat, err := f.repos.chats.GetByID(ctx, resp.ChatID)
	require.NoError(t, err)
	assert.True(t, chat.IsGroup)
	assert.Equal(t, "120363000111222333@g.us", chat.ChannelChatID)

	msg, err := f.repos.messages.GetByID(ctx, resp.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "628111222333@c.us", msg.Meta.GetString("participant"))
}

func TestInboundTelegramRoutesAndAdoptsPhone(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelTelegram, "syntra_bot", crm.AgentSettings{})
	ctx := context.Background()

	msgID := int64(42)
	resp, err := f.svc.HandleTelegram(ctx, router.TelegramWebhookPayload{
		TelegramID:  "777000123",
		BotUsername: "syntra_bot",
		Username:    "rina_s",
		FirstName:   "Rina",
		ChatID:      "777000123",
		MessageID:   &msgID,
		Message:     "Tagihan saya bulan ini dobel, mohon dicek",
		Timestamp:   "2026-08-25T09:30:00Z",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "ai", resp.HandledBy)
	assert.Equal(t, "telegram", resp.Channel)

	msg, err := f.repos.messages.GetByID(ctx, resp.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "42", msg.ChannelMessageID)
	assert.Equal(t, "@rina_s", msg.SenderName)
	assert.Equal(t, 42, msg.Meta.GetInt("telegram_message_id"))
	assert.Equal(t, time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC), msg.CreatedAt.UTC())

	customer, err := f.repos.customers.GetByID(ctx, resp.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "777000123", customer.Phone)
	assert.Equal(t, "rina_s", customer.Meta.GetString("telegram_username"))
}

func TestInboundEmailRoutesByMailbox(t *testing.T) {
	f := newInboundFixture(t, crm.ChannelEmail, "support@acme.co", crm.AgentSettings{})
	ctx := context.Background()

	resp, err := f.svc.HandleEmail(ctx, router.EmailWebhookPayload{
		Email:      "jane@customer.com",
		ToEmail:    " Support@Acme.co ",
		SenderName: "Jane Smith",
		Subject:    "Order issue",
		Message:    "My order arrived broken, please help",
		MessageID:  "em-1",
		Timestamp:  "2026-08-25T10:00:00Z",
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "ai", resp.HandledBy)
	assert.Equal(t, "email", resp.Channel)

	msg, err := f.repos.messages.GetByID(ctx, resp.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "em-1", msg.ChannelMessageID)
	assert.Equal(t, "Order issue", msg.Meta.GetString("email_subject"))

	customer, err := f.repos.customers.GetByID(ctx, resp.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", customer.Meta.GetString("email_display_name"))

	_, err = f.svc.HandleEmail(ctx, router.EmailWebhookPayload{
		Email:   "ghost@customer.com",
		ToEmail: "ghost@acme.co",
		Message: "hola",
	})
	assert.ErrorIs(t, err, crm.ErrAgentNotFound)
}
