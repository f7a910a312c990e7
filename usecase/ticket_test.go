package usecase

import (
	"context"
	"testing"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicketFixture(t *testing.T) (*stateRepos, *recordingBroadcaster, ticket.ITicketUsecase, *crm.Tenant, *crm.Chat) {
	t.Helper()
	repos := newStateRepos(t)
	tenant := seedStateTenant(t, repos)
	agent := seedStateAgent(t, repos, tenant.ID, crm.ChannelWhatsApp, crm.AgentSettings{})
	customer := seedStateCustomer(t, repos, tenant.ID, "628111222333", "Ana")
	chat := seedStateChat(t, repos, tenant.ID, customer.ID, agent.ID)

	broadcaster := &recordingBroadcaster{}
	svc := NewTicketService(repos.tickets, repos.chats, repos.agents, broadcaster)
	return repos, broadcaster, svc, tenant, chat
}

func TestTicketCreateAssignsCodeAndLogsActivity(t *testing.T) {
	_, broadcaster, svc, tenant, chat := newTicketFixture(t)

	created, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{
		ChatID:     chat.ID,
		CustomerID: chat.CustomerID,
		Subject:    "[HIGH] Ana - pedido no llegó",
		Priority:   crm.PriorityHigh,
		Category:   "shipping",
		Actor:      "guard",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, created.Number)
	assert.Equal(t, "TKT-000001", created.Code)
	assert.Equal(t, crm.TicketOpen, created.Status)

	activities, err := svc.ListActivities(context.Background(), tenant.ID, created.ID)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "created", activities[0].Action)
	assert.Equal(t, "guard", activities[0].Actor)

	event := broadcaster.find("ticket_created")
	require.NotNil(t, event)
	assert.Equal(t, tenant.ID, event.tenantID)
	assert.Equal(t, "TKT-000001", event.data["ticket_number"])
}

func TestTicketCreateDefaultsInvalidPriority(t *testing.T) {
	_, _, svc, tenant, chat := newTicketFixture(t)

	created, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{
		ChatID:   chat.ID,
		Subject:  "algo raro",
		Priority: crm.TicketPriority("critical"),
	})
	require.NoError(t, err)
	assert.Equal(t, crm.PriorityMedium, created.Priority)
}

func TestTicketCreateRequiresSubject(t *testing.T) {
	_, _, svc, tenant, chat := newTicketFixture(t)

	_, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{ChatID: chat.ID, Subject: "   "})
	assert.Error(t, err)
}

func TestTicketUpdateDropsLowDowngradeKeepsRest(t *testing.T) {
	_, _, svc, tenant, chat := newTicketFixture(t)

	created, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{
		ChatID: chat.ID, Subject: "cobro duplicado", Priority: crm.PriorityHigh,
	})
	require.NoError(t, err)

	// La degradación a low se ignora pero el resto del cambio aplica.
	low := crm.PriorityLow
	inProgress := crm.TicketInProgress
	updated, err := svc.Update(context.Background(), tenant.ID, created.ID, ticket.UpdateTicketRequest{
		Priority: &low,
		Status:   &inProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, crm.PriorityHigh, updated.Priority)
	assert.Equal(t, crm.TicketInProgress, updated.Status)

	// Subir la prioridad sigue permitido.
	urgent := crm.PriorityUrgent
	updated, err = svc.Update(context.Background(), tenant.ID, created.ID, ticket.UpdateTicketRequest{Priority: &urgent})
	require.NoError(t, err)
	assert.Equal(t, crm.PriorityUrgent, updated.Priority)
}

func TestTicketResolveStampsAndReleasesChat(t *testing.T) {
	repos, broadcaster, svc, tenant, chat := newTicketFixture(t)

	// Un operador tomó la conversación por el ticket.
	chat.HandledBy = crm.HandledByHuman
	chat.Status = crm.ChatAssigned
	chat.AssignedTo = "operator-7"
	require.NoError(t, repos.chats.Update(context.Background(), chat))

	created, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{
		ChatID: chat.ID, CustomerID: chat.CustomerID, Subject: "reclamo facturación",
	})
	require.NoError(t, err)

	resolved := crm.TicketResolved
	updated, err := svc.Update(context.Background(), tenant.ID, created.ID, ticket.UpdateTicketRequest{
		Status: &resolved, Actor: "operator-7",
	})
	require.NoError(t, err)
	require.NotNil(t, updated.ResolvedAt)

	// El chat vuelve a la IA porque el agente del canal es is_ai.
	freed, err := repos.chats.GetByID(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.ChatOpen, freed.Status)
	assert.Equal(t, crm.HandledByAI, freed.HandledBy)
	assert.Empty(t, freed.AssignedTo)

	event := broadcaster.find("chat_released")
	require.NotNil(t, event)
	assert.Equal(t, chat.ID, event.data["chat_id"])
}

func TestTicketUpdateWritesActivityTrail(t *testing.T) {
	_, _, svc, tenant, chat := newTicketFixture(t)

	created, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{
		ChatID: chat.ID, Subject: "pantalla rota", Priority: crm.PriorityMedium,
	})
	require.NoError(t, err)

	urgent := crm.PriorityUrgent
	inProgress := crm.TicketInProgress
	_, err = svc.Update(context.Background(), tenant.ID, created.ID, ticket.UpdateTicketRequest{
		Priority: &urgent, Status: &inProgress, Actor: "operator-1",
	})
	require.NoError(t, err)

	activities, err := svc.ListActivities(context.Background(), tenant.ID, created.ID)
	require.NoError(t, err)
	require.Len(t, activities, 3)
	assert.Equal(t, "created", activities[0].Action)
	assert.Equal(t, "priority_changed", activities[1].Action)
	assert.Equal(t, "medium -> urgent", activities[1].Detail)
	assert.Equal(t, "status_changed", activities[2].Action)
	assert.Equal(t, "operator-1", activities[2].Actor)
}

func TestTicketScopedByTenant(t *testing.T) {
	_, _, svc, tenant, chat := newTicketFixture(t)

	created, err := svc.Create(context.Background(), tenant.ID, ticket.CreateTicketRequest{
		ChatID: chat.ID, Subject: "no puedo entrar",
	})
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), "otro-tenant", created.ID)
	assert.ErrorIs(t, err, crm.ErrTicketNotFound)
}
