package usecase

import (
	"context"
	"time"

	domainChat "github.com/AzielCF/az-crm/domains/chat"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/dispatch"
	"github.com/AzielCF/az-crm/domains/realtime"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/AzielCF/az-crm/validations"
	"github.com/sirupsen/logrus"
)

type chatService struct {
	chats       crm.ChatRepository
	customers   crm.CustomerRepository
	agents      crm.AgentRepository
	messages    crm.MessageRepository
	dispatcher  dispatch.IDispatchUsecase
	broadcaster realtime.IBroadcaster
}

// NewChatService es la cara del dashboard sobre las conversaciones: listado
// enriquecido, escalado a humano, liberación a la IA y envío manual.
func NewChatService(chats crm.ChatRepository, customers crm.CustomerRepository, agents crm.AgentRepository, messages crm.MessageRepository, dispatcher dispatch.IDispatchUsecase, broadcaster realtime.IBroadcaster) domainChat.IChatUsecase {
	return &chatService{
		chats:       chats,
		customers:   customers,
		agents:      agents,
		messages:    messages,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
	}
}

func (s *chatService) List(ctx context.Context, tenantID string, filter crm.ChatFilter) (*domainChat.ChatList, error) {
	chats, err := s.chats.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}

	customerNames := map[string]string{}
	agentNames := map[string]string{}
	views := make([]domainChat.ChatView, 0, len(chats))
	for _, c := range chats {
		views = append(views, s.enrich(ctx, c, customerNames, agentNames))
	}
	return &domainChat.ChatList{Chats: views, Total: len(views)}, nil
}

func (s *chatService) GetByID(ctx context.Context, tenantID, id string) (*domainChat.ChatView, error) {
	c, err := s.getTenantChat(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	view := s.enrich(ctx, c, map[string]string{}, map[string]string{})
	return &view, nil
}

// Update aplica un parche parcial. Pasar a handled_by=human escala la
// conversación a un operador; volver a ai la libera y reabre; resolver
// sella resolved_at en los metadatos.
func (s *chatService) Update(ctx context.Context, tenantID, id string, req domainChat.UpdateChatRequest) (*crm.Chat, error) {
	if err := validations.ValidateUpdateChat(ctx, req); err != nil {
		return nil, err
	}
	c, err := s.getTenantChat(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var escalated, released, resolved bool

	if req.HandledBy != nil && *req.HandledBy != c.HandledBy {
		switch *req.HandledBy {
		case crm.HandledByHuman:
			c.HandledBy = crm.HandledByHuman
			c.Status = crm.ChatAssigned
			c.AssignedTo = *req.AssignedTo
			c.Meta = c.Meta.Merge(crm.Meta{"escalated_at": time.Now().UTC().Format(time.RFC3339)})
			if req.Reason != "" {
				c.Meta["escalation_reason"] = req.Reason
			}
			escalated = true
		case crm.HandledByAI:
			// Solo el agente IA del canal puede retomar la conversación.
			agent, err := s.agents.GetByID(ctx, c.AgentID)
			if err != nil || !agent.IsAI {
				return nil, pkgError.ValidationError("channel agent is not an AI agent, chat cannot be released")
			}
			c.HandledBy = crm.HandledByAI
			c.Status = crm.ChatOpen
			c.AssignedTo = ""
			released = true
		}
	} else if req.HandledBy != nil && *req.HandledBy == crm.HandledByHuman {
		return nil, pkgError.ValidationError("chat is already handled by a human operator")
	}

	if req.Status != nil && *req.Status != c.Status {
		c.Status = *req.Status
		if c.Status == crm.ChatResolved {
			c.Meta = c.Meta.Merge(crm.Meta{"resolved_at": time.Now().UTC().Format(time.RFC3339)})
			resolved = true
		}
	}

	if !escalated && !released && !resolved && req.Status == nil {
		return c, nil
	}

	c.UpdatedAt = time.Now()
	if err := s.chats.Update(ctx, c); err != nil {
		return nil, err
	}

	switch {
	case escalated:
		s.broadcaster.BroadcastChatUpdate(tenantID, "escalated", map[string]any{
			"chat_id":     c.ID,
			"assigned_to": c.AssignedTo,
			"reason":      req.Reason,
		})
		logrus.Infof("[Chat] %s escalated to operator %s (tenant %s)", c.ID, c.AssignedTo, tenantID)
	case released:
		s.broadcaster.BroadcastChatUpdate(tenantID, "chat_released", map[string]any{
			"chat_id":    c.ID,
			"handled_by": string(crm.HandledByAI),
		})
		logrus.Infof("[Chat] %s released back to the AI agent (tenant %s)", c.ID, tenantID)
	}
	if resolved {
		s.broadcaster.BroadcastChatUpdate(tenantID, "resolved", map[string]any{
			"chat_id": c.ID,
			"status":  string(crm.ChatResolved),
		})
		logrus.Infof("[Chat] %s resolved (tenant %s)", c.ID, tenantID)
	}
	return c, nil
}

func (s *chatService) ListMessages(ctx context.Context, tenantID, chatID string, limit int) ([]crm.Message, error) {
	c, err := s.getTenantChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByChat(ctx, chatID, limit, 0)
	if err != nil {
		return nil, err
	}
	// El repositorio devuelve los más recientes primero; el panel los
	// muestra en orden cronológico.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	s.fillSenderNames(ctx, c, msgs)
	return msgs, nil
}

func (s *chatService) SendMessage(ctx context.Context, tenantID, chatID string, req domainChat.SendMessageRequest) (*crm.Message, error) {
	if err := validations.ValidateSendMessage(ctx, req); err != nil {
		return nil, err
	}
	c, err := s.getTenantChat(ctx, tenantID, chatID)
	if err != nil {
		return nil, err
	}

	senderType := req.SenderType
	if senderType == "" {
		senderType = crm.SenderAgent
	}

	meta := req.Meta.Clone()
	if req.TicketID != "" {
		meta["ticket_id"] = req.TicketID
	}

	msg := &crm.Message{
		TenantID:   tenantID,
		ChatID:     c.ID,
		CustomerID: c.CustomerID,
		SenderType: senderType,
		SenderID:   req.SenderID,
		SenderName: req.SenderName,
		Content:    req.Content,
		MediaURL:   meta.GetString("media_url"),
		Meta:       meta,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.chats.TouchLastMessage(ctx, c.ID, msg.CreatedAt); err != nil {
		logrus.Warnf("[Chat] Could not update last_message_at for %s: %v", c.ID, err)
	}

	// Lo que escribe un operador o la IA sale también por el canal del
	// cliente; las notas de sistema se quedan en el historial.
	if senderType == crm.SenderAgent || senderType == crm.SenderAI {
		result := s.dispatcher.Send(ctx, dispatch.OutboundMessage{
			TenantID: tenantID,
			AgentID:  c.AgentID,
			Channel:  c.Channel,
			ChatID:   c.ChannelChatID,
			Content:  req.Content,
			MediaURL: msg.MediaURL,
			Meta:     meta,
		})
		if !result.Success {
			logrus.Warnf("[Chat] Outbound delivery failed for chat %s: %s", c.ID, result.Detail)
		}
	}

	customerName := ""
	if customer, err := s.customers.GetByID(ctx, c.CustomerID); err == nil {
		customerName = customer.DisplayName()
	}
	s.broadcaster.BroadcastNewMessage(tenantID, realtime.NewMessagePayload{
		ChatID:         c.ID,
		MessageID:      msg.ID,
		CustomerID:     c.CustomerID,
		CustomerName:   customerName,
		MessageContent: msg.Content,
		Channel:        string(c.Channel),
		HandledBy:      string(c.HandledBy),
		SenderType:     string(senderType),
		SenderID:       msg.SenderID,
	})
	return msg, nil
}

func (s *chatService) getTenantChat(ctx context.Context, tenantID, id string) (*crm.Chat, error) {
	c, err := s.chats.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, crm.ErrChatNotFound
	}
	return c, nil
}

// enrich completa la vista de panel con el último mensaje y los nombres
// resueltos. Los mapas amortiguan las búsquedas repetidas en un listado.
func (s *chatService) enrich(ctx context.Context, c *crm.Chat, customerNames, agentNames map[string]string) domainChat.ChatView {
	view := domainChat.ChatView{Chat: c}
	if msgs, err := s.messages.ListByChat(ctx, c.ID, 1, 0); err == nil && len(msgs) > 0 {
		last := msgs[0]
		view.LastMessage = &last
	}
	view.CustomerName = s.customerName(ctx, c.CustomerID, customerNames)
	view.AgentName = s.agentName(ctx, c.AgentID, agentNames)
	return view
}

func (s *chatService) customerName(ctx context.Context, id string, cache map[string]string) string {
	if id == "" {
		return ""
	}
	if name, ok := cache[id]; ok {
		return name
	}
	name := ""
	if customer, err := s.customers.GetByID(ctx, id); err == nil {
		name = customer.DisplayName()
	}
	cache[id] = name
	return name
}

func (s *chatService) agentName(ctx context.Context, id string, cache map[string]string) string {
	if id == "" {
		return ""
	}
	if name, ok := cache[id]; ok {
		return name
	}
	name := ""
	if agent, err := s.agents.GetByID(ctx, id); err == nil {
		name = agent.Name
	}
	cache[id] = name
	return name
}

// fillSenderNames repone nombres presentables en mensajes antiguos que se
// guardaron sin emisor identificado.
func (s *chatService) fillSenderNames(ctx context.Context, c *crm.Chat, msgs []crm.Message) {
	var customerName, aiName string
	for i := range msgs {
		if msgs[i].SenderName != "" {
			continue
		}
		switch msgs[i].SenderType {
		case crm.SenderCustomer:
			if customerName == "" {
				customerName = "Customer"
				if customer, err := s.customers.GetByID(ctx, c.CustomerID); err == nil {
					customerName = customer.DisplayName()
				}
			}
			msgs[i].SenderName = customerName
		case crm.SenderAI:
			if aiName == "" {
				aiName = "AI Assistant"
				if agent, err := s.agents.GetByID(ctx, c.AgentID); err == nil && agent.Name != "" {
					aiName = agent.Name
				}
			}
			msgs[i].SenderName = aiName
		case crm.SenderAgent:
			msgs[i].SenderName = "Human Agent"
		case crm.SenderSystem:
			msgs[i].SenderName = "System"
		}
	}
}
