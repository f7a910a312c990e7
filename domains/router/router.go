package router

import (
	"context"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
)

// InboundMessage is a channel-normalized inbound event, ready for routing.
type InboundMessage struct {
	Channel          crm.Channel `json:"channel"`
	Contact          string      `json:"contact"` // normalized customer identity (phone digits, telegram id, email)
	SenderName       string      `json:"sender_name,omitempty"`
	Content          string      `json:"content"`
	ContentType      string      `json:"content_type,omitempty"`
	MediaURL         string      `json:"media_url,omitempty"`
	Caption          string      `json:"caption,omitempty"`
	ChannelMessageID string      `json:"channel_message_id,omitempty"`
	IsGroup          bool        `json:"is_group"`
	GroupID          string      `json:"group_id,omitempty"`
	GroupSubject     string      `json:"group_subject,omitempty"`
	ParticipantID    string      `json:"participant_id,omitempty"` // real sender inside a group
	Timestamp        time.Time   `json:"timestamp"`
	MessageMeta      crm.Meta    `json:"message_metadata,omitempty"`
	CustomerMeta     crm.Meta    `json:"customer_metadata,omitempty"`
}

// RouteResult describes where an inbound message landed.
type RouteResult struct {
	Chat        *crm.Chat     `json:"chat,omitempty"`
	Customer    *crm.Customer `json:"customer,omitempty"`
	Message     *crm.Message  `json:"message,omitempty"`
	IsNewChat   bool          `json:"is_new_chat"`
	WasReopened bool          `json:"was_reopened"`
	// Merged is true when the message deduplicated into an existing row;
	// callers must not trigger any further processing for it.
	Merged    bool          `json:"merged"`
	HandledBy crm.HandledBy `json:"handled_by"`
}

// RouteResponse is the wire response every webhook returns.
type RouteResponse struct {
	Success     bool   `json:"success"`
	ChatID      string `json:"chat_id,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	IsNewChat   bool   `json:"is_new_chat"`
	WasReopened bool   `json:"was_reopened"`
	HandledBy   string `json:"handled_by,omitempty"`
	Status      string `json:"status,omitempty"`
	Channel     string `json:"channel,omitempty"`
	Message     string `json:"message,omitempty"`
}

// WhatsAppEventPayload mirrors the gateway container's webhook body:
// { "dataType": "message", "data": { "message": { "_data": {...} } }, "sessionId": "..." }
// System events arrive on the same endpoint with qr / status fields instead.
type WhatsAppEventPayload struct {
	DataType  string         `json:"dataType,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Message   any            `json:"message,omitempty"`
	QR        string         `json:"qr,omitempty"`
	Percent   *int           `json:"percent,omitempty"`
}

// TelegramWebhookPayload is the bot relay's inbound body.
type TelegramWebhookPayload struct {
	TelegramID  string         `json:"telegram_id"`
	BotToken    string         `json:"bot_token,omitempty"`
	BotUsername string         `json:"bot_username,omitempty"`
	Username    string         `json:"username,omitempty"`
	FirstName   string         `json:"first_name,omitempty"`
	LastName    string         `json:"last_name,omitempty"`
	ChatID      string         `json:"chat_id,omitempty"`
	MessageID   *int64         `json:"message_id,omitempty"`
	MessageType string         `json:"message_type,omitempty"`
	PhotoURL    string         `json:"photo_url,omitempty"`
	DocumentURL string         `json:"document_url,omitempty"`
	Message     string         `json:"message"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// EmailWebhookPayload is the mail bridge's inbound body.
type EmailWebhookPayload struct {
	Email       string         `json:"email"`    // sender address
	ToEmail     string         `json:"to_email"` // mailbox that identifies the agent
	SenderName  string         `json:"sender_name,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	Message     string         `json:"message"`
	MessageID   string         `json:"message_id,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Attachments []any          `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// IRouterUsecase serializes and persists one inbound message under the
// per-contact router lock.
type IRouterUsecase interface {
	Route(ctx context.Context, agent *crm.Agent, msg InboundMessage) (RouteResult, error)
}

// IInboundUsecase is the full webhook path: agent resolution, routing and
// the post-route gates (busy, ticket, schedule, guard, AI trigger).
type IInboundUsecase interface {
	HandleWhatsApp(ctx context.Context, payload WhatsAppEventPayload) (RouteResponse, error)
	HandleTelegram(ctx context.Context, payload TelegramWebhookPayload) (RouteResponse, error)
	HandleEmail(ctx context.Context, payload EmailWebhookPayload) (RouteResponse, error)
}
