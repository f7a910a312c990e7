package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/pipeline"
	"github.com/AzielCF/az-crm/domains/realtime"
	"github.com/AzielCF/az-crm/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stateRepos agrupa los repositorios reales sobre una base en memoria,
// para probar los casos de uso contra SQL de verdad y no contra mocks.
type stateRepos struct {
	tenants      *repository.TenantGormRepository
	agents       *repository.AgentGormRepository
	customers    *repository.CustomerGormRepository
	chats        *repository.ChatGormRepository
	messages     *repository.MessageGormRepository
	tickets      *repository.TicketGormRepository
	integrations *repository.IntegrationGormRepository
}

func newStateRepos(t *testing.T) *stateRepos {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same :memory: database.
	sqlDB.SetMaxOpenConns(1)

	r := &stateRepos{
		tenants:      repository.NewTenantGormRepository(db),
		agents:       repository.NewAgentGormRepository(db),
		customers:    repository.NewCustomerGormRepository(db),
		chats:        repository.NewChatGormRepository(db),
		messages:     repository.NewMessageGormRepository(db),
		tickets:      repository.NewTicketGormRepository(db),
		integrations: repository.NewIntegrationGormRepository(db),
	}
	ctx := context.Background()
	require.NoError(t, r.tenants.InitSchema(ctx))
	require.NoError(t, r.agents.InitSchema(ctx))
	require.NoError(t, r.customers.InitSchema(ctx))
	require.NoError(t, r.chats.InitSchema(ctx))
	require.NoError(t, r.messages.InitSchema(ctx))
	require.NoError(t, r.tickets.InitSchema(ctx))
	require.NoError(t, r.integrations.InitSchema(ctx))
	return r
}

func seedStateTenant(t *testing.T, r *stateRepos) *crm.Tenant {
	t.Helper()
	tenant := &crm.Tenant{
		Name:     "Acme",
		Slug:     "acme-" + uuid.New().String()[:8],
		Credits:  100,
		IsActive: true,
	}
	require.NoError(t, r.tenants.Create(context.Background(), tenant))
	return tenant
}

func seedStateAgent(t *testing.T, r *stateRepos, tenantID string, channel crm.Channel, settings crm.AgentSettings) *crm.Agent {
	t.Helper()
	agent := &crm.Agent{
		TenantID:   tenantID,
		Name:       "Syntra Bot",
		Channel:    channel,
		Identifier: uuid.New().String()[:12],
		IsAI:       true,
		IsActive:   true,
		Settings:   settings,
	}
	require.NoError(t, r.agents.Create(context.Background(), agent))
	return agent
}

func seedStateCustomer(t *testing.T, r *stateRepos, tenantID, phone, name string) *crm.Customer {
	t.Helper()
	customer, _, err := r.customers.UpsertByChannel(context.Background(), tenantID, crm.ChannelWhatsApp, phone, name)
	require.NoError(t, err)
	return customer
}

func seedStateChat(t *testing.T, r *stateRepos, tenantID, customerID, agentID string) *crm.Chat {
	t.Helper()
	chat := &crm.Chat{
		TenantID:      tenantID,
		CustomerID:    customerID,
		AgentID:       agentID,
		Channel:       crm.ChannelWhatsApp,
		ChannelChatID: uuid.New().String()[:10] + "@c.us",
		Status:        crm.ChatOpen,
		HandledBy:     crm.HandledByAI,
		LastMessageAt: time.Now(),
	}
	require.NoError(t, r.chats.Create(context.Background(), chat))
	return chat
}

// --- Broadcast recorder ---

type broadcastEvent struct {
	tenantID string
	kind     string // new_message o el subtipo de chat_update
	message  realtime.NewMessagePayload
	data     map[string]any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) BroadcastNewMessage(tenantID string, payload realtime.NewMessagePayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{tenantID: tenantID, kind: "new_message", message: payload})
}

func (b *recordingBroadcaster) BroadcastChatUpdate(tenantID string, updateType string, data map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{tenantID: tenantID, kind: updateType, data: data})
}

func (b *recordingBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.kind
	}
	return out
}

func (b *recordingBroadcaster) find(kind string) *broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.events {
		if b.events[i].kind == kind {
			return &b.events[i]
		}
	}
	return nil
}

// --- Scripted LLM client ---

type fakeLLM struct {
	mu        sync.Mutex
	responses []*pipeline.ChatResponse
	err       error
	requests  []pipeline.ChatRequest
}

// Chat devuelve las respuestas en orden y repite la última cuando se agotan.
func (f *fakeLLM) Chat(_ context.Context, req pipeline.ChatRequest) (*pipeline.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &pipeline.ChatResponse{Text: "ok"}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeLLM) lastRequest() pipeline.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return pipeline.ChatRequest{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeLLM) request(i int) pipeline.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.requests) {
		return pipeline.ChatRequest{}
	}
	return f.requests[i]
}
