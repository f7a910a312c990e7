package ticket

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
)

// GuardVerdict is the guard's classification of one inbound message.
type GuardVerdict struct {
	ShouldCreateTicket bool   `json:"should_create_ticket"`
	Reason             string `json:"reason"`
	SuggestedPriority  string `json:"suggested_priority"`
	SuggestedCategory  string `json:"suggested_category"`
	AutoReplyHint      string `json:"auto_reply_hint,omitempty"`
}

// CreateTicketRequest is the operator/system-facing creation payload.
type CreateTicketRequest struct {
	ChatID      string             `json:"chat_id"`
	CustomerID  string             `json:"customer_id"`
	Subject     string             `json:"subject"`
	Description string             `json:"description,omitempty"`
	Priority    crm.TicketPriority `json:"priority,omitempty"`
	Category    string             `json:"category,omitempty"`
	Actor       string             `json:"actor,omitempty"` // "system", "guard" or an operator id
}

// UpdateTicketRequest carries partial updates; nil fields stay untouched.
type UpdateTicketRequest struct {
	Subject     *string             `json:"subject,omitempty"`
	Description *string             `json:"description,omitempty"`
	Status      *crm.TicketStatus   `json:"status,omitempty"`
	Priority    *crm.TicketPriority `json:"priority,omitempty"`
	Category    *string             `json:"category,omitempty"`
	AssignedTo  *string             `json:"assigned_to,omitempty"`
	Actor       string              `json:"actor,omitempty"`
}

// ITicketUsecase owns ticket lifecycle and the activity trail.
type ITicketUsecase interface {
	Create(ctx context.Context, tenantID string, req CreateTicketRequest) (*crm.Ticket, error)
	GetByID(ctx context.Context, tenantID, id string) (*crm.Ticket, error)
	List(ctx context.Context, tenantID string, filter crm.TicketFilter) ([]*crm.Ticket, error)
	// Update applies the request, logging one activity entry per change.
	// Priority downgrades to low are rejected for open tickets.
	Update(ctx context.Context, tenantID, id string, req UpdateTicketRequest) (*crm.Ticket, error)
	ListActivities(ctx context.Context, tenantID, ticketID string) ([]crm.TicketActivity, error)
}

// ITicketGuardUsecase decides whether an inbound message warrants a ticket.
type ITicketGuardUsecase interface {
	// Evaluate runs the fast guard first and falls through to the LLM
	// classifier. It never errors: classifier failures yield a low-priority
	// non-creating verdict.
	Evaluate(ctx context.Context, agent *crm.Agent, text, customerName string, messageCount int) GuardVerdict
}
