package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/lock"
	"github.com/AzielCF/az-crm/domains/router"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/sirupsen/logrus"
)

type routerService struct {
	locks     lock.ILockService
	customers crm.CustomerRepository
	chats     crm.ChatRepository
	messages  crm.MessageRepository
	cfg       coreconfig.RouterConfig
}

// NewRouterService serializa la entrada por contacto: bajo el lock resuelve
// cliente, conversación y mensaje de forma idempotente.
func NewRouterService(locks lock.ILockService, customers crm.CustomerRepository, chats crm.ChatRepository, messages crm.MessageRepository, cfg coreconfig.RouterConfig) router.IRouterUsecase {
	return &routerService{locks: locks, customers: customers, chats: chats, messages: messages, cfg: cfg}
}

func (s *routerService) Route(ctx context.Context, agent *crm.Agent, msg router.InboundMessage) (router.RouteResult, error) {
	contact := strings.TrimSpace(msg.Contact)
	if contact == "" || strings.EqualFold(contact, "none") {
		return router.RouteResult{}, crm.ErrInvalidContact
	}

	// Identity swap: en grupos el cliente es el participante, nunca el grupo.
	// Un participante LID no expone su número real, se guarda como referencia.
	isLID := false
	participantLID := ""
	if msg.IsGroup && msg.ParticipantID != "" {
		if strings.HasSuffix(msg.ParticipantID, "@lid") {
			isLID = true
			participantLID = msg.ParticipantID
		}
		contact = msg.ParticipantID
	}

	identity := routeIdentity(msg.Channel, contact)
	if identity == "" {
		return router.RouteResult{}, crm.ErrInvalidContact
	}

	lockKey := fmt.Sprintf("router:%s:%s:%t", agent.TenantID, identity, msg.IsGroup)
	lease, err := s.locks.Acquire(ctx, lockKey,
		time.Duration(s.cfg.LockTTLSeconds)*time.Second,
		time.Duration(s.cfg.LockMaxWaitSeconds)*time.Second)
	if err != nil {
		return router.RouteResult{}, err
	}
	defer func() {
		if err := s.locks.Release(ctx, lease); err != nil {
			logrus.Debugf("[Router] Lock release for %s: %v", lockKey, err)
		}
	}()

	customer, created, err := s.customers.UpsertByChannel(ctx, agent.TenantID, msg.Channel, contact, msg.SenderName)
	if err != nil {
		return router.RouteResult{}, err
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	chatKey := channelChatKey(msg, identity)

	chat, err := s.chats.FindActive(ctx, agent.TenantID, msg.Channel, chatKey)
	isNew := false
	if err != nil {
		if !errors.Is(err, crm.ErrChatNotFound) {
			return router.RouteResult{}, err
		}
		// Sin conversación enrutable (las closed no reabren): se crea una nueva.
		handled := crm.HandledByHuman
		if agent.IsAI {
			handled = crm.HandledByAI
		}
		chat = &crm.Chat{
			TenantID:      agent.TenantID,
			CustomerID:    customer.ID,
			AgentID:       agent.ID,
			Channel:       msg.Channel,
			ChannelChatID: chatKey,
			Status:        crm.ChatOpen,
			HandledBy:     handled,
			IsGroup:       msg.IsGroup,
			GroupSubject:  msg.GroupSubject,
			LastMessageAt: ts,
			Meta:          crm.Meta{},
		}
		if err := s.chats.Create(ctx, chat); err != nil {
			return router.RouteResult{}, err
		}
		isNew = true
		logrus.Infof("[Router] New %s chat %s for customer %s (handled_by %s)", msg.Channel, chat.ID, customer.ID, handled)
	}

	message := buildInboundMessage(chat, customer, msg, ts)
	merged, err := s.messages.InsertOrMerge(ctx, message)
	if err != nil {
		return router.RouteResult{}, err
	}
	if merged {
		logrus.Debugf("[Router] Duplicate delivery merged into message %s (chat %s)", message.ID, chat.ID)
		return router.RouteResult{
			Chat:      chat,
			Customer:  customer,
			Message:   message,
			Merged:    true,
			HandledBy: chat.HandledBy,
		}, nil
	}

	wasReopened := false
	if !isNew {
		if chat.Status == crm.ChatResolved {
			chat.Status = crm.ChatOpen
			wasReopened = true
			logrus.Infof("[Router] Chat %s reopened by inbound message", chat.ID)
		}
		// Un chat asignado sin operador quedó huérfano: vuelve a la IA.
		if chat.Status == crm.ChatAssigned && chat.AssignedTo == "" {
			chat.Status = crm.ChatOpen
			chat.HandledBy = crm.HandledByAI
			logrus.Warnf("[Router] Chat %s was assigned with no operator, healed to AI", chat.ID)
		}
		if msg.IsGroup && msg.GroupSubject != "" {
			chat.GroupSubject = msg.GroupSubject
		}
		chat.LastMessageAt = ts
		chat.UpdatedAt = time.Now()
		if err := s.chats.Update(ctx, chat); err != nil {
			return router.RouteResult{}, err
		}
	}

	s.recordContact(ctx, customer, msg, ts, created, isLID, participantLID)

	return router.RouteResult{
		Chat:        chat,
		Customer:    customer,
		Message:     message,
		IsNewChat:   isNew,
		WasReopened: wasReopened,
		HandledBy:   chat.HandledBy,
	}, nil
}

// recordContact actualiza la contabilidad del cliente en cada mensaje:
// recencia, conteo, canales usados y primera vista.
func (s *routerService) recordContact(ctx context.Context, customer *crm.Customer, msg router.InboundMessage, ts time.Time, created, isLID bool, participantLID string) {
	meta := customer.Meta.Clone().Merge(msg.CustomerMeta)
	meta["last_contact_at"] = ts.Format(time.RFC3339)
	meta["message_count"] = customer.Meta.GetInt("message_count") + 1
	meta["preferred_channel"] = string(msg.Channel)
	appendChannelUsed(meta, string(msg.Channel))
	if created {
		meta["first_contact_at"] = ts.Format(time.RFC3339)
		meta["first_contact_channel"] = string(msg.Channel)
	}
	if msg.IsGroup && msg.GroupID != "" {
		meta["last_seen_in_group"] = msg.GroupID
	}
	if isLID {
		meta["is_lid_user"] = true
		meta["whatsapp_lid"] = participantLID
	}

	if err := s.customers.UpdateMeta(ctx, customer.ID, meta); err != nil {
		logrus.Warnf("[Router] Could not update metadata for customer %s: %v", customer.ID, err)
		return
	}
	customer.Meta = meta
}

func buildInboundMessage(chat *crm.Chat, customer *crm.Customer, msg router.InboundMessage, ts time.Time) *crm.Message {
	content := msg.Content
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}

	meta := msg.MessageMeta.Clone()
	if msg.IsGroup && msg.GroupID != "" {
		meta["target_group_id"] = msg.GroupID
	}
	if msg.ParticipantID != "" {
		meta["participant"] = msg.ParticipantID
	}

	return &crm.Message{
		TenantID:         chat.TenantID,
		ChatID:           chat.ID,
		CustomerID:       customer.ID,
		SenderType:       crm.SenderCustomer,
		SenderID:         customer.ID,
		SenderName:       msg.SenderName,
		Content:          content,
		ContentType:      msg.ContentType,
		MediaURL:         msg.MediaURL,
		ChannelMessageID: msg.ChannelMessageID,
		Meta:             meta,
		CreatedAt:        ts,
	}
}

// routeIdentity normaliza el contacto a su identidad de canal, la misma que
// usa el repositorio de clientes, para que el lock serialice variantes del
// mismo número.
func routeIdentity(channel crm.Channel, contact string) string {
	switch channel {
	case crm.ChannelWhatsApp:
		utils.SanitizePhone(&contact)
		return utils.NormalizePhone(contact)
	case crm.ChannelEmail:
		return strings.ToLower(strings.TrimSpace(contact))
	}
	return strings.TrimSpace(contact)
}

// channelChatKey decide el channel_chat_id de la conversación: el grupo si
// lo hay, si no la identidad nativa del canal.
func channelChatKey(msg router.InboundMessage, identity string) string {
	if msg.IsGroup && msg.GroupID != "" {
		return msg.GroupID
	}
	if msg.Channel == crm.ChannelWhatsApp {
		return utils.WhatsAppChatID(identity)
	}
	return identity
}

func appendChannelUsed(meta crm.Meta, channel string) {
	var used []string
	switch v := meta["channels_used"].(type) {
	case []string:
		used = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				used = append(used, s)
			}
		}
	}
	for _, c := range used {
		if c == channel {
			meta["channels_used"] = used
			return
		}
	}
	meta["channels_used"] = append(used, channel)
}
