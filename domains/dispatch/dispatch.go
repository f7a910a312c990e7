package dispatch

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
)

// ContentType variants understood by the WhatsApp gateway.
const (
	ContentString       = "string"
	ContentMedia        = "MessageMedia"
	ContentMediaFromURL = "MessageMediaFromURL"
)

// OutboundMessage is a channel-agnostic reply to deliver.
type OutboundMessage struct {
	TenantID  string      `json:"tenant_id"`
	AgentID   string      `json:"agent_id"`
	Channel   crm.Channel `json:"channel"`
	ChatID    string      `json:"chat_id"` // channel-native id: 628xx@c.us, telegram chat id, email address
	Content   string      `json:"content"`
	MediaURL  string      `json:"media_url,omitempty"`
	Mentions  []string    `json:"mentions,omitempty"` // group mentions, real numbers
	ToEmail   string      `json:"to_email,omitempty"`
	FromEmail string      `json:"from_email,omitempty"`
	Subject   string      `json:"subject,omitempty"`
	Meta      crm.Meta    `json:"metadata,omitempty"`
}

// Result is always returned, never an error: delivery failures surface as
// Success=false so a channel outage can never break the pipeline.
type Result struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// IDispatchUsecase pushes replies out through the channel gateways.
type IDispatchUsecase interface {
	Send(ctx context.Context, msg OutboundMessage) Result
}
