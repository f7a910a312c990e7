package chat

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
)

// ChatView is one chat enriched with the fields the operator console lists:
// the latest message plus the resolved customer and agent names.
type ChatView struct {
	*crm.Chat
	LastMessage  *crm.Message `json:"last_message,omitempty"`
	CustomerName string       `json:"customer_name,omitempty"`
	AgentName    string       `json:"agent_name,omitempty"`
}

// ChatList pairs a page of enriched chats with the page size.
type ChatList struct {
	Chats []ChatView `json:"chats"`
	Total int        `json:"total"`
}

// UpdateChatRequest carries partial updates; nil fields stay untouched.
// Switching HandledBy to human escalates the chat and requires AssignedTo.
type UpdateChatRequest struct {
	Status     *crm.ChatStatus `json:"status,omitempty"`
	HandledBy  *crm.HandledBy  `json:"handled_by,omitempty"`
	AssignedTo *string         `json:"assigned_to,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// SendMessageRequest appends one outbound message to a chat. Messages sent
// by an agent or the AI are also dispatched to the customer's channel.
type SendMessageRequest struct {
	Content    string         `json:"content"`
	SenderType crm.SenderType `json:"sender_type"`
	SenderID   string         `json:"sender_id,omitempty"`
	SenderName string         `json:"sender_name,omitempty"`
	TicketID   string         `json:"ticket_id,omitempty"`
	Meta       crm.Meta       `json:"metadata,omitempty"`
}

// IChatUsecase owns the operator-facing chat surface.
type IChatUsecase interface {
	List(ctx context.Context, tenantID string, filter crm.ChatFilter) (*ChatList, error)
	GetByID(ctx context.Context, tenantID, id string) (*ChatView, error)
	// Update applies the request. Escalations stamp escalated_at and the
	// reason into the chat meta; resolving stamps resolved_at.
	Update(ctx context.Context, tenantID, id string, req UpdateChatRequest) (*crm.Chat, error)
	ListMessages(ctx context.Context, tenantID, chatID string, limit int) ([]crm.Message, error)
	SendMessage(ctx context.Context, tenantID, chatID string, req SendMessageRequest) (*crm.Message, error)
}
