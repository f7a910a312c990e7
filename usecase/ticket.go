package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/realtime"
	"github.com/AzielCF/az-crm/domains/ticket"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ticketService struct {
	tickets     crm.TicketRepository
	chats       crm.ChatRepository
	agents      crm.AgentRepository
	broadcaster realtime.IBroadcaster
}

// NewTicketService owns the ticket lifecycle, its activity trail and the
// dashboard notifications that go with it.
func NewTicketService(tickets crm.TicketRepository, chats crm.ChatRepository, agents crm.AgentRepository, broadcaster realtime.IBroadcaster) ticket.ITicketUsecase {
	return &ticketService{tickets: tickets, chats: chats, agents: agents, broadcaster: broadcaster}
}

func (s *ticketService) Create(ctx context.Context, tenantID string, req ticket.CreateTicketRequest) (*crm.Ticket, error) {
	if strings.TrimSpace(req.Subject) == "" {
		return nil, pkgError.ValidationError("ticket subject is required")
	}

	priority := req.Priority
	if !validTicketPriority(priority) {
		priority = crm.PriorityMedium
	}

	number, err := s.tickets.NextNumber(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &crm.Ticket{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		ChatID:      req.ChatID,
		CustomerID:  req.CustomerID,
		Number:      number,
		Subject:     req.Subject,
		Description: req.Description,
		Status:      crm.TicketOpen,
		Priority:    priority,
		Category:    req.Category,
		Meta:        crm.Meta{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logActivity(ctx, t, "created", req.Actor, fmt.Sprintf("Ticket %s opened: %s", t.Code, t.Subject))
	s.broadcaster.BroadcastChatUpdate(tenantID, "ticket_created", map[string]any{
		"ticket_id":     t.ID,
		"ticket_number": t.Code,
		"chat_id":       t.ChatID,
		"status":        string(t.Status),
		"priority":      string(t.Priority),
	})

	logrus.Infof("[Ticket] %s created (tenant %s, priority %s)", t.Code, tenantID, t.Priority)
	return t, nil
}

func (s *ticketService) GetByID(ctx context.Context, tenantID, id string) (*crm.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.TenantID != tenantID {
		return nil, crm.ErrTicketNotFound
	}
	return t, nil
}

func (s *ticketService) List(ctx context.Context, tenantID string, filter crm.TicketFilter) ([]*crm.Ticket, error) {
	return s.tickets.List(ctx, tenantID, filter)
}

// Update applies partial changes, one activity entry per mutation. Resolving
// or closing a ticket stamps its timestamp and releases the bound chat.
func (s *ticketService) Update(ctx context.Context, tenantID, id string, req ticket.UpdateTicketRequest) (*crm.Ticket, error) {
	t, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	type entry struct{ action, detail string }
	var trail []entry

	if req.Subject != nil && *req.Subject != t.Subject {
		t.Subject = *req.Subject
		trail = append(trail, entry{"note", "Subject updated"})
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Category != nil && *req.Category != t.Category {
		trail = append(trail, entry{"note", fmt.Sprintf("Category changed to %s", *req.Category)})
		t.Category = *req.Category
	}
	if req.AssignedTo != nil && *req.AssignedTo != t.AssignedTo {
		trail = append(trail, entry{"assigned", fmt.Sprintf("Assigned to %s", *req.AssignedTo)})
		t.AssignedTo = *req.AssignedTo
	}

	if req.Priority != nil && *req.Priority != t.Priority {
		if !validTicketPriority(*req.Priority) {
			return nil, pkgError.ValidationError(fmt.Sprintf("invalid priority %q", *req.Priority))
		}
		// Bajar a low se descarta sin tumbar el resto del cambio: la
		// degradación tardía escondía casos reales ya priorizados.
		if *req.Priority == crm.PriorityLow {
			logrus.Warnf("[Ticket] Priority downgrade blocked on %s (%s -> low)", t.Code, t.Priority)
		} else {
			trail = append(trail, entry{"priority_changed", fmt.Sprintf("%s -> %s", t.Priority, *req.Priority)})
			t.Priority = *req.Priority
		}
	}

	released := false
	if req.Status != nil && *req.Status != t.Status {
		if !validTicketStatus(*req.Status) {
			return nil, pkgError.ValidationError(fmt.Sprintf("invalid status %q", *req.Status))
		}
		trail = append(trail, entry{"status_changed", fmt.Sprintf("%s -> %s", t.Status, *req.Status)})
		t.Status = *req.Status

		now := time.Now()
		switch t.Status {
		case crm.TicketResolved:
			t.ResolvedAt = &now
			released = true
		case crm.TicketClosed:
			t.ClosedAt = &now
			released = true
		}
	}

	t.UpdatedAt = time.Now()
	if err := s.tickets.Update(ctx, t); err != nil {
		return nil, err
	}
	for _, e := range trail {
		s.logActivity(ctx, t, e.action, req.Actor, e.detail)
	}
	if len(trail) > 0 {
		s.broadcaster.BroadcastChatUpdate(tenantID, "ticket_updated", map[string]any{
			"ticket_id":     t.ID,
			"ticket_number": t.Code,
			"chat_id":       t.ChatID,
			"status":        string(t.Status),
			"priority":      string(t.Priority),
		})
	}

	if released {
		s.releaseChat(ctx, t)
	}
	return t, nil
}

func (s *ticketService) ListActivities(ctx context.Context, tenantID, ticketID string) ([]crm.TicketActivity, error) {
	if _, err := s.GetByID(ctx, tenantID, ticketID); err != nil {
		return nil, err
	}
	return s.tickets.ListActivities(ctx, ticketID)
}

// releaseChat devuelve la conversación al agente cuando el ticket humano
// termina: sin ticket activo no hay motivo para mantener la IA en silencio.
func (s *ticketService) releaseChat(ctx context.Context, t *crm.Ticket) {
	if t.ChatID == "" {
		return
	}
	chat, err := s.chats.GetByID(ctx, t.ChatID)
	if err != nil {
		logrus.Debugf("[Ticket] Release skipped, chat %s not found: %v", t.ChatID, err)
		return
	}
	if chat.HandledBy != crm.HandledByHuman {
		return
	}

	handled := crm.HandledByHuman
	if agent, err := s.agents.GetByID(ctx, chat.AgentID); err == nil && agent.IsAI {
		handled = crm.HandledByAI
	}

	chat.Status = crm.ChatOpen
	chat.HandledBy = handled
	chat.AssignedTo = ""
	chat.UpdatedAt = time.Now()
	if err := s.chats.Update(ctx, chat); err != nil {
		logrus.Warnf("[Ticket] Could not release chat %s: %v", chat.ID, err)
		return
	}

	s.broadcaster.BroadcastChatUpdate(t.TenantID, "chat_released", map[string]any{
		"chat_id":    chat.ID,
		"ticket_id":  t.ID,
		"handled_by": string(handled),
	})
	logrus.Infof("[Ticket] Chat %s released back to %s after %s", chat.ID, handled, t.Code)
}

func (s *ticketService) logActivity(ctx context.Context, t *crm.Ticket, action, actor, detail string) {
	if actor == "" {
		actor = "system"
	}
	activity := &crm.TicketActivity{
		TenantID: t.TenantID,
		TicketID: t.ID,
		Action:   action,
		Actor:    actor,
		Detail:   detail,
	}
	if err := s.tickets.AddActivity(ctx, activity); err != nil {
		// El historial es best-effort, nunca tumba la operación principal
		logrus.Warnf("[Ticket] Could not log %s activity for %s: %v", action, t.Code, err)
	}
}

func validTicketPriority(p crm.TicketPriority) bool {
	switch p {
	case crm.PriorityLow, crm.PriorityMedium, crm.PriorityHigh, crm.PriorityUrgent:
		return true
	}
	return false
}

func validTicketStatus(st crm.TicketStatus) bool {
	switch st {
	case crm.TicketOpen, crm.TicketInProgress, crm.TicketResolved, crm.TicketClosed:
		return true
	}
	return false
}
