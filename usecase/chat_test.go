package usecase

import (
	"context"
	"testing"
	"time"

	domainChat "github.com/AzielCF/az-crm/domains/chat"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatFixture struct {
	repos      *stateRepos
	service    domainChat.IChatUsecase
	dispatcher *recordingDispatcher
	broadcast  *recordingBroadcaster
	tenant     *crm.Tenant
	agent      *crm.Agent
	customer   *crm.Customer
	chat       *crm.Chat
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	repos := newStateRepos(t)
	tenant := seedStateTenant(t, repos)
	agent := seedStateAgent(t, repos, tenant.ID, crm.ChannelWhatsApp, crm.AgentSettings{})
	customer := seedStateCustomer(t, repos, tenant.ID, "34600111222", "Marta Ruiz")
	chat := seedStateChat(t, repos, tenant.ID, customer.ID, agent.ID)

	dispatcher := &recordingDispatcher{}
	broadcast := &recordingBroadcaster{}
	service := NewChatService(repos.chats, repos.customers, repos.agents, repos.messages, dispatcher, broadcast)

	return &chatFixture{
		repos:      repos,
		service:    service,
		dispatcher: dispatcher,
		broadcast:  broadcast,
		tenant:     tenant,
		agent:      agent,
		customer:   customer,
		chat:       chat,
	}
}

func (f *chatFixture) appendMessage(t *testing.T, senderType crm.SenderType, content string, at time.Time) *crm.Message {
	t.Helper()
	msg := &crm.Message{
		TenantID:   f.tenant.ID,
		ChatID:     f.chat.ID,
		CustomerID: f.customer.ID,
		SenderType: senderType,
		Content:    content,
		CreatedAt:  at,
	}
	require.NoError(t, f.repos.messages.Append(context.Background(), msg))
	return msg
}

func TestChatServiceListEnriched(t *testing.T) {
	f := newChatFixture(t)
	base := time.Now().Add(-time.Hour)
	f.appendMessage(t, crm.SenderCustomer, "Hola, tengo un problema", base)
	f.appendMessage(t, crm.SenderAI, "Claro, cuéntame", base.Add(time.Minute))

	list, err := f.service.List(context.Background(), f.tenant.ID, crm.ChatFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.Len(t, list.Chats, 1)

	view := list.Chats[0]
	assert.Equal(t, f.chat.ID, view.ID)
	assert.Equal(t, "Marta Ruiz", view.CustomerName)
	assert.Equal(t, f.agent.Name, view.AgentName)
	require.NotNil(t, view.LastMessage)
	assert.Equal(t, "Claro, cuéntame", view.LastMessage.Content)
}

func TestChatServiceGetByIDTenantScoped(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.service.GetByID(context.Background(), "other-tenant", f.chat.ID)
	assert.ErrorIs(t, err, crm.ErrChatNotFound)

	view, err := f.service.GetByID(context.Background(), f.tenant.ID, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, f.chat.ID, view.ID)
}

func TestChatServiceEscalateToHuman(t *testing.T) {
	f := newChatFixture(t)

	handledBy := crm.HandledByHuman
	assignee := "op-7"
	updated, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy:  &handledBy,
		AssignedTo: &assignee,
		Reason:     "customer asked for a person",
	})
	require.NoError(t, err)

	assert.Equal(t, crm.HandledByHuman, updated.HandledBy)
	assert.Equal(t, crm.ChatAssigned, updated.Status)
	assert.Equal(t, "op-7", updated.AssignedTo)
	assert.NotEmpty(t, updated.Meta.GetString("escalated_at"))
	assert.Equal(t, "customer asked for a person", updated.Meta.GetString("escalation_reason"))

	// El cambio quedó persistido, no solo en la copia devuelta.
	stored, err := f.repos.chats.GetByID(context.Background(), f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.HandledByHuman, stored.HandledBy)
	assert.Equal(t, "op-7", stored.AssignedTo)

	event := f.broadcast.find("escalated")
	require.NotNil(t, event)
	assert.Equal(t, f.chat.ID, event.data["chat_id"])
	assert.Equal(t, "op-7", event.data["assigned_to"])
}

func TestChatServiceEscalateRequiresAssignee(t *testing.T) {
	f := newChatFixture(t)

	handledBy := crm.HandledByHuman
	_, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy: &handledBy,
	})
	require.Error(t, err)

	stored, err := f.repos.chats.GetByID(context.Background(), f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.HandledByAI, stored.HandledBy)
}

func TestChatServiceEscalateAlreadyHuman(t *testing.T) {
	f := newChatFixture(t)

	handledBy := crm.HandledByHuman
	assignee := "op-1"
	_, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy:  &handledBy,
		AssignedTo: &assignee,
	})
	require.NoError(t, err)

	other := "op-2"
	_, err = f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy:  &handledBy,
		AssignedTo: &other,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already handled")
}

func TestChatServiceReleaseToAI(t *testing.T) {
	f := newChatFixture(t)

	human := crm.HandledByHuman
	assignee := "op-7"
	_, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy:  &human,
		AssignedTo: &assignee,
	})
	require.NoError(t, err)

	ai := crm.HandledByAI
	released, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy: &ai,
	})
	require.NoError(t, err)

	assert.Equal(t, crm.HandledByAI, released.HandledBy)
	assert.Equal(t, crm.ChatOpen, released.Status)
	assert.Empty(t, released.AssignedTo)

	event := f.broadcast.find("chat_released")
	require.NotNil(t, event)
	assert.Equal(t, "ai", event.data["handled_by"])
}

func TestChatServiceReleaseRejectedForHumanAgent(t *testing.T) {
	f := newChatFixture(t)

	f.agent.IsAI = false
	require.NoError(t, f.repos.agents.Update(context.Background(), f.agent))

	human := crm.HandledByHuman
	assignee := "op-7"
	_, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy:  &human,
		AssignedTo: &assignee,
	})
	require.NoError(t, err)

	ai := crm.HandledByAI
	_, err = f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		HandledBy: &ai,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an AI agent")
}

func TestChatServiceResolveStampsMeta(t *testing.T) {
	f := newChatFixture(t)

	resolved := crm.ChatResolved
	updated, err := f.service.Update(context.Background(), f.tenant.ID, f.chat.ID, domainChat.UpdateChatRequest{
		Status: &resolved,
	})
	require.NoError(t, err)

	assert.Equal(t, crm.ChatResolved, updated.Status)
	assert.NotEmpty(t, updated.Meta.GetString("resolved_at"))

	event := f.broadcast.find("resolved")
	require.NotNil(t, event)
	assert.Equal(t, "resolved", event.data["status"])
}

func TestChatServiceSendMessageDispatchesAndBroadcasts(t *testing.T) {
	f := newChatFixture(t)

	msg, err := f.service.SendMessage(context.Background(), f.tenant.ID, f.chat.ID, domainChat.SendMessageRequest{
		Content:    "Buenas, soy Laura del soporte",
		SenderType: crm.SenderAgent,
		SenderID:   "op-7",
		SenderName: "Laura",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)

	stored, err := f.repos.messages.ListByChat(context.Background(), f.chat.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Laura", stored[0].SenderName)

	require.Equal(t, 1, f.dispatcher.count())
	out := f.dispatcher.last()
	assert.Equal(t, f.chat.ChannelChatID, out.ChatID)
	assert.Equal(t, f.agent.ID, out.AgentID)
	assert.Equal(t, crm.ChannelWhatsApp, out.Channel)
	assert.Equal(t, "Buenas, soy Laura del soporte", out.Content)

	event := f.broadcast.find("new_message")
	require.NotNil(t, event)
	assert.Equal(t, "agent", event.message.SenderType)
	assert.Equal(t, "Marta Ruiz", event.message.CustomerName)

	stamped, err := f.repos.chats.GetByID(context.Background(), f.chat.ID)
	require.NoError(t, err)
	assert.False(t, stamped.LastMessageAt.Before(msg.CreatedAt.Add(-time.Second)))
}

func TestChatServiceSystemNoteStaysInternal(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.service.SendMessage(context.Background(), f.tenant.ID, f.chat.ID, domainChat.SendMessageRequest{
		Content:    "Ticket TKT-000001 vinculado",
		SenderType: crm.SenderSystem,
	})
	require.NoError(t, err)

	// Las notas internas nunca salen por el gateway del canal.
	assert.Equal(t, 0, f.dispatcher.count())
	assert.NotNil(t, f.broadcast.find("new_message"))
}

func TestChatServiceSendMessageRequiresContent(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.service.SendMessage(context.Background(), f.tenant.ID, f.chat.ID, domainChat.SendMessageRequest{
		SenderType: crm.SenderAgent,
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.dispatcher.count())
}

func TestChatServiceListMessagesChronologicalWithNames(t *testing.T) {
	f := newChatFixture(t)
	base := time.Now().Add(-time.Hour)
	f.appendMessage(t, crm.SenderCustomer, "Primero", base)
	f.appendMessage(t, crm.SenderAI, "Segundo", base.Add(time.Minute))
	f.appendMessage(t, crm.SenderAgent, "Tercero", base.Add(2*time.Minute))

	msgs, err := f.service.ListMessages(context.Background(), f.tenant.ID, f.chat.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "Primero", msgs[0].Content)
	assert.Equal(t, "Tercero", msgs[2].Content)

	assert.Equal(t, "Marta Ruiz", msgs[0].SenderName)
	assert.Equal(t, f.agent.Name, msgs[1].SenderName)
	assert.Equal(t, "Human Agent", msgs[2].SenderName)
}
