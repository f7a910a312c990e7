package realtime

// NewMessagePayload is the data block of a new_message broadcast.
type NewMessagePayload struct {
	ChatID         string `json:"chat_id"`
	MessageID      string `json:"message_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	MessageContent string `json:"message_content"`
	Channel        string `json:"channel"`
	HandledBy      string `json:"handled_by,omitempty"`
	SenderType     string `json:"sender_type"`
	SenderID       string `json:"sender_id,omitempty"`
	IsNewChat      bool   `json:"is_new_chat"`
	WasReopened    bool   `json:"was_reopened"`
}

// IBroadcaster fans events out to every dashboard connection of a tenant.
// Implementations must never block or fail the caller; a dead connection is
// detached, not reported.
type IBroadcaster interface {
	BroadcastNewMessage(tenantID string, payload NewMessagePayload)
	BroadcastChatUpdate(tenantID string, updateType string, data map[string]any)
}

// NopBroadcaster is used when the websocket hub is disabled.
type NopBroadcaster struct{}

func (NopBroadcaster) BroadcastNewMessage(string, NewMessagePayload)      {}
func (NopBroadcaster) BroadcastChatUpdate(string, string, map[string]any) {}
