package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/debounce"
	"github.com/AzielCF/az-crm/domains/dispatch"
	"github.com/AzielCF/az-crm/domains/realtime"
	"github.com/AzielCF/az-crm/domains/router"
	"github.com/AzielCF/az-crm/domains/ticket"
	"github.com/AzielCF/az-crm/pkg/pipemonitor"
	"github.com/AzielCF/az-crm/pkg/timeutils"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Respuestas fijas de los webhooks, en el idioma de los despliegues actuales.
const (
	busyReply   = "Maaf, saat ini kami sedang sibuk."
	closedReply = "Maaf kami sedang tutup saat ini."
)

// validTicketCategories acota la categoría que sugiere el guard; una
// predicción fuera de lista cae en la primera.
var validTicketCategories = []string{"billing", "technical", "inquiry", "other"}

type inboundService struct {
	agents      crm.AgentRepository
	customers   crm.CustomerRepository
	chats       crm.ChatRepository
	messages    crm.MessageRepository
	tickets     crm.TicketRepository
	router      router.IRouterUsecase
	ticketing   ticket.ITicketUsecase
	guard       ticket.ITicketGuardUsecase
	debouncer   debounce.IDebounceUsecase
	dispatcher  dispatch.IDispatchUsecase
	broadcaster realtime.IBroadcaster
}

// NewInboundService es el camino completo de un webhook entrante: normaliza
// el payload del canal, resuelve el agente destinatario, enruta el mensaje y
// aplica las puertas posteriores (ocupado, ticket activo, horario, guard)
// antes de encolar la respuesta de la IA.
func NewInboundService(
	agents crm.AgentRepository,
	customers crm.CustomerRepository,
	chats crm.ChatRepository,
	messages crm.MessageRepository,
	tickets crm.TicketRepository,
	routerUC router.IRouterUsecase,
	ticketUC ticket.ITicketUsecase,
	guard ticket.ITicketGuardUsecase,
	debouncer debounce.IDebounceUsecase,
	dispatcher dispatch.IDispatchUsecase,
	broadcaster realtime.IBroadcaster,
) router.IInboundUsecase {
	if broadcaster == nil {
		broadcaster = realtime.NopBroadcaster{}
	}
	return &inboundService{
		agents:      agents,
		customers:   customers,
		chats:       chats,
		messages:    messages,
		tickets:     tickets,
		router:      routerUC,
		ticketing:   ticketUC,
		guard:       guard,
		debouncer:   debouncer,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
	}
}

func (s *inboundService) HandleWhatsApp(ctx context.Context, payload router.WhatsAppEventPayload) (router.RouteResponse, error) {
	if payload.QR != "" {
		logrus.Debugf("[Inbound] WhatsApp session %s emitted a QR event, ignoring", payload.SessionID)
		return ignoredResponse(crm.ChannelWhatsApp, "qr_code"), nil
	}

	raw := payload.Message
	if raw == nil && payload.Data != nil {
		raw = payload.Data["message"]
	}
	// El gateway manda textos de estado ("WhatsApp", "loading...") en el
	// mismo campo que los mensajes reales.
	if _, isText := raw.(string); isText {
		return ignoredResponse(crm.ChannelWhatsApp, "status_update"), nil
	}
	msgObj, ok := raw.(map[string]any)
	if !ok {
		return ignoredResponse(crm.ChannelWhatsApp, "no_message_data"), nil
	}
	msgData := msgObj
	if inner, ok := msgObj["_data"].(map[string]any); ok {
		msgData = inner
	}

	if boolValue(msgData, "isStatus") || stringValue(msgData, "type") == "e2e_notification" {
		return ignoredResponse(crm.ChannelWhatsApp, "status_broadcast"), nil
	}
	if whatsAppFromMe(msgData) {
		logrus.Debugf("[Inbound] Ignoring own WhatsApp message (fromMe)")
		return ignoredResponse(crm.ChannelWhatsApp, "from_me"), nil
	}

	rawFrom := stringValue(msgData, "from")
	rawTo := stringValue(msgData, "to")
	contact := rawFrom
	utils.SanitizePhone(&contact)
	toNumber := rawTo
	utils.SanitizePhone(&toNumber)
	if contact == "" {
		return router.RouteResponse{Success: false, Channel: string(crm.ChannelWhatsApp)}, crm.ErrInvalidContact
	}

	senderName := stringValue(msgData, "notifyName")
	if senderName == "" {
		senderName = "User " + contact
	}

	messageID := ""
	if id, ok := msgData["id"].(map[string]any); ok {
		messageID = stringValue(id, "id")
	}

	in := router.InboundMessage{
		Channel:          crm.ChannelWhatsApp,
		Contact:          contact,
		SenderName:       senderName,
		Content:          stringValue(msgData, "body"),
		ChannelMessageID: messageID,
		MessageMeta: crm.Meta{
			"whatsapp_message_id": messageID,
			"original_from":       rawFrom,
		},
		CustomerMeta: crm.Meta{"whatsapp_name": senderName},
	}
	if unix := numberValue(msgData, "t"); unix > 0 {
		in.Timestamp = time.Unix(int64(unix), 0)
		in.MessageMeta["timestamp"] = int64(unix)
	}
	if strings.HasSuffix(rawFrom, "@g.us") {
		in.IsGroup = true
		in.GroupID = rawFrom
		in.ParticipantID = stringValue(msgData, "author")
	}
	if stringValue(msgData, "type") == "image" {
		in.ContentType = "image"
		in.MediaURL = stringValue(msgData, "mediaUrl")
		if in.MediaURL == "" {
			in.MediaURL = stringValue(msgData, "deprecatedMms3Url")
		}
		in.Caption = stringValue(msgData, "caption")
	}

	agent, err := s.agents.GetByChannelIdentifier(ctx, crm.ChannelWhatsApp, toNumber)
	if errors.Is(err, crm.ErrAgentNotFound) && rawTo != toNumber {
		agent, err = s.agents.GetByChannelIdentifier(ctx, crm.ChannelWhatsApp, rawTo)
	}
	if err != nil {
		logrus.Errorf("[Inbound] No WhatsApp agent for %s: %v", rawTo, err)
		return router.RouteResponse{Success: false, Channel: string(crm.ChannelWhatsApp)}, err
	}

	return s.process(ctx, agent, in)
}

func (s *inboundService) HandleTelegram(ctx context.Context, payload router.TelegramWebhookPayload) (router.RouteResponse, error) {
	identifier := payload.BotUsername
	if identifier == "" {
		identifier = payload.BotToken
	}
	agent, err := s.agents.GetByChannelIdentifier(ctx, crm.ChannelTelegram, identifier)
	if errors.Is(err, crm.ErrAgentNotFound) && payload.BotToken != "" && payload.BotToken != identifier {
		agent, err = s.agents.GetByChannelIdentifier(ctx, crm.ChannelTelegram, payload.BotToken)
	}
	if err != nil {
		logrus.Errorf("[Inbound] No Telegram agent for bot %q: %v", identifier, err)
		return router.RouteResponse{Success: false, Channel: string(crm.ChannelTelegram)}, err
	}

	name := payload.FirstName
	if payload.Username != "" {
		name = "@" + payload.Username
	}

	msgMeta := crm.Meta(payload.Metadata).Clone()
	channelMessageID := ""
	if payload.MessageID != nil {
		channelMessageID = strconv.FormatInt(*payload.MessageID, 10)
		msgMeta["telegram_message_id"] = *payload.MessageID
	}
	if payload.ChatID != "" {
		msgMeta["telegram_chat_id"] = payload.ChatID
	}
	if payload.Timestamp != "" {
		msgMeta["timestamp"] = payload.Timestamp
	}

	// El teléfono hereda el id de Telegram: es el identificador estable que
	// el equipo ve en el dashboard para contactar fuera del bot.
	custMeta := crm.Meta{"phone": payload.TelegramID}
	if payload.Username != "" {
		custMeta["telegram_username"] = payload.Username
	}
	if payload.FirstName != "" {
		custMeta["telegram_first_name"] = payload.FirstName
	}

	in := router.InboundMessage{
		Channel:          crm.ChannelTelegram,
		Contact:          payload.TelegramID,
		SenderName:       name,
		Content:          payload.Message,
		ChannelMessageID: channelMessageID,
		Timestamp:        parseWebhookTime(payload.Timestamp),
		MessageMeta:      msgMeta,
		CustomerMeta:     custMeta,
	}
	switch payload.MessageType {
	case "photo":
		in.ContentType = "image"
		in.MediaURL = payload.PhotoURL
	case "document":
		in.ContentType = "document"
		in.MediaURL = payload.DocumentURL
	}

	return s.process(ctx, agent, in)
}

func (s *inboundService) HandleEmail(ctx context.Context, payload router.EmailWebhookPayload) (router.RouteResponse, error) {
	mailbox := strings.ToLower(strings.TrimSpace(payload.ToEmail))
	agent, err := s.agents.GetByChannelIdentifier(ctx, crm.ChannelEmail, mailbox)
	if err != nil {
		logrus.Errorf("[Inbound] No email agent for %s: %v", mailbox, err)
		return router.RouteResponse{Success: false, Channel: string(crm.ChannelEmail)}, err
	}

	msgMeta := crm.Meta(payload.Metadata).Clone()
	if payload.MessageID != "" {
		msgMeta["email_message_id"] = payload.MessageID
	}
	if payload.Subject != "" {
		msgMeta["email_subject"] = payload.Subject
	}
	if len(payload.Attachments) > 0 {
		msgMeta["attachments"] = payload.Attachments
	}
	if payload.Timestamp != "" {
		msgMeta["timestamp"] = payload.Timestamp
	}

	custMeta := crm.Meta{}
	if payload.SenderName != "" {
		custMeta["email_display_name"] = payload.SenderName
	}

	in := router.InboundMessage{
		Channel:          crm.ChannelEmail,
		Contact:          payload.Email,
		SenderName:       payload.SenderName,
		Content:          payload.Message,
		ChannelMessageID: payload.MessageID,
		Timestamp:        parseWebhookTime(payload.Timestamp),
		MessageMeta:      msgMeta,
		CustomerMeta:     custMeta,
	}

	return s.process(ctx, agent, in)
}

// process aplica las puertas comunes a todos los canales, en el orden del
// flujo original: inactivo, ruteo, ocupado, ticket activo, horario, guard y
// por último el disparo de la IA.
func (s *inboundService) process(ctx context.Context, agent *crm.Agent, in router.InboundMessage) (router.RouteResponse, error) {
	channel := string(in.Channel)

	if !agent.IsActive {
		logrus.Infof("[Inbound] Agent %s is inactive, dropping %s message", agent.ID, channel)
		return router.RouteResponse{
			Success: false,
			Status:  "dropped_inactive",
			Channel: channel,
			Message: "Message dropped (Agent Inactive)",
		}, nil
	}

	res, err := s.router.Route(ctx, agent, in)
	if err != nil {
		pipemonitor.Record(pipemonitor.Event{
			TenantID: agent.TenantID,
			Channel:  channel,
			Stage:    "inbound",
			Kind:     "text",
			Status:   "error",
			Error:    err.Error(),
		})
		return router.RouteResponse{Success: false, Channel: channel}, err
	}
	chat, customer, message := res.Chat, res.Customer, res.Message

	if res.Merged {
		logrus.Debugf("[Inbound] Duplicate %s delivery for chat %s ignored", channel, chat.ID)
		resp := buildRouteResponse(res, channel, string(res.HandledBy))
		resp.Status = "ignored_duplicate"
		return resp, nil
	}

	// El canal puede traer un teléfono más fiable que el identificador de ruta.
	if phone := in.CustomerMeta.GetString("phone"); phone != "" && phone != customer.Phone {
		customer.Phone = phone
		if err := s.customers.Update(ctx, customer); err != nil {
			logrus.Warnf("[Inbound] Phone update for customer %s: %v", customer.ID, err)
		}
	}

	senderName := in.SenderName
	if senderName == "" {
		senderName = "Unknown"
	}
	s.broadcaster.BroadcastNewMessage(agent.TenantID, realtime.NewMessagePayload{
		ChatID:         chat.ID,
		MessageID:      message.ID,
		CustomerID:     customer.ID,
		CustomerName:   senderName,
		MessageContent: message.Content,
		Channel:        channel,
		HandledBy:      string(chat.HandledBy),
		SenderType:     string(crm.SenderCustomer),
		SenderID:       customer.ID,
		IsNewChat:      res.IsNewChat,
		WasReopened:    res.WasReopened,
	})
	pipemonitor.Record(pipemonitor.Event{
		TraceID:  message.ID,
		TenantID: agent.TenantID,
		ChatID:   chat.ID,
		Channel:  channel,
		Stage:    "inbound",
		Kind:     message.ContentType,
		Status:   "ok",
	})

	if agent.Settings.BusyMode {
		reply := agent.Settings.BusyMessage
		if reply == "" {
			reply = busyReply
		}
		logrus.Infof("[Inbound] Agent %s is busy, auto-replying on chat %s", agent.ID, chat.ID)
		s.sendSystemReply(ctx, agent, chat, reply)
		return buildRouteResponse(res, channel, "system_busy"), nil
	}

	if _, terr := s.tickets.FindActiveByCustomer(ctx, customer.ID); terr == nil {
		logrus.Infof("[Inbound] Customer %s has an active ticket, muting AI on chat %s", customer.ID, chat.ID)
		return buildRouteResponse(res, channel, "human_ticket"), nil
	} else if !errors.Is(terr, crm.ErrTicketNotFound) {
		logrus.Warnf("[Inbound] Ticket lookup for customer %s: %v", customer.ID, terr)
	}

	if ok, reason := timeutils.WithinSchedule(agent.Settings.Schedule, time.Now()); !ok {
		logrus.Infof("[Inbound] Chat %s is outside working hours: %s", chat.ID, reason)
		if chat.Meta == nil {
			chat.Meta = crm.Meta{}
		}
		chat.Meta["out_of_schedule"] = true
		if err := s.chats.Update(ctx, chat); err != nil {
			logrus.Warnf("[Inbound] Could not stamp out_of_schedule on chat %s: %v", chat.ID, err)
		}
		s.sendSystemReply(ctx, agent, chat, closedReply)
		return buildRouteResponse(res, channel, "ooo_system"), nil
	}

	priority := ""
	if agent.Settings.Ticketing.Enabled {
		verdict := s.guard.Evaluate(ctx, agent, message.Content, in.SenderName, customer.Meta.GetInt("message_count"))
		priority = verdict.SuggestedPriority
		if verdict.ShouldCreateTicket && verdict.SuggestedPriority == string(crm.PriorityLow) {
			logrus.Infof("[Inbound] Guard verdict for chat %s: %s. Greeting and stopping AI", chat.ID, verdict.Reason)
			s.sendSystemReply(ctx, agent, chat, greetingReply(in.SenderName))
			return buildRouteResponse(res, channel, "system_greeting"), nil
		}
		if verdict.ShouldCreateTicket && agent.Settings.Ticketing.AutoCreate {
			s.createGuardTicket(ctx, agent, chat, customer, message.Content, verdict)
			// El ticket queda en cola para el equipo; la IA sigue la conversación.
		}
	}

	if chat.HandledBy != crm.HandledByAI {
		return buildRouteResponse(res, channel, string(chat.HandledBy)), nil
	}
	if err := s.debouncer.Enqueue(ctx, chat.ID, message.ID, priority); err != nil {
		logrus.Errorf("[Inbound] Debounce enqueue for chat %s: %v", chat.ID, err)
	}
	return buildRouteResponse(res, channel, "ai"), nil
}

// sendSystemReply persiste una respuesta automática como mensaje de la IA,
// la difunde al dashboard y la entrega por el canal del chat.
func (s *inboundService) sendSystemReply(ctx context.Context, agent *crm.Agent, chat *crm.Chat, content string) {
	m := &crm.Message{
		TenantID:   chat.TenantID,
		ChatID:     chat.ID,
		CustomerID: chat.CustomerID,
		SenderType: crm.SenderAI,
		SenderID:   agent.ID,
		SenderName: agent.Name,
		Content:    content,
		Meta:       crm.Meta{"type": "auto_reply"},
	}
	if err := s.messages.Append(ctx, m); err != nil {
		logrus.Errorf("[Inbound] Could not persist auto-reply for chat %s: %v", chat.ID, err)
	} else {
		if err := s.chats.TouchLastMessage(ctx, chat.ID, m.CreatedAt); err != nil {
			logrus.Warnf("[Inbound] Could not touch chat %s: %v", chat.ID, err)
		}
		s.broadcaster.BroadcastNewMessage(chat.TenantID, realtime.NewMessagePayload{
			ChatID:         chat.ID,
			MessageID:      m.ID,
			CustomerID:     chat.CustomerID,
			CustomerName:   "AI Agent",
			MessageContent: content,
			Channel:        string(chat.Channel),
			HandledBy:      string(crm.HandledByAI),
			SenderType:     string(crm.SenderAI),
			SenderID:       agent.ID,
		})
	}
	if res := s.dispatcher.Send(ctx, dispatch.OutboundMessage{
		TenantID: chat.TenantID,
		AgentID:  agent.ID,
		Channel:  chat.Channel,
		ChatID:   chat.ChannelChatID,
		Content:  content,
	}); !res.Success {
		logrus.Errorf("[Inbound] Auto-reply delivery for chat %s failed: %s", chat.ID, res.Detail)
	}
}

// createGuardTicket abre un ticket silencioso con el veredicto del guard.
func (s *inboundService) createGuardTicket(ctx context.Context, agent *crm.Agent, chat *crm.Chat, customer *crm.Customer, content string, verdict ticket.GuardVerdict) {
	category := verdict.SuggestedCategory
	if !containsCategory(validTicketCategories, category) {
		category = validTicketCategories[0]
	}
	priority := crm.TicketPriority(verdict.SuggestedPriority)
	if !validTicketPriority(priority) {
		priority = crm.PriorityMedium
	}

	req := ticket.CreateTicketRequest{
		ChatID:      chat.ID,
		CustomerID:  customer.ID,
		Subject:     fmt.Sprintf("[%s] %s - %s", strings.ToUpper(string(priority)), strings.ToUpper(category), truncateChars(content, 40)),
		Description: "Message: " + content,
		Priority:    priority,
		Category:    category,
		Actor:       "system",
	}
	if _, err := s.ticketing.Create(ctx, agent.TenantID, req); err != nil {
		logrus.Errorf("[Inbound] Auto-ticket for chat %s: %v", chat.ID, err)
		return
	}
	logrus.Infof("[Inbound] Auto-ticket created for chat %s (%s, %s)", chat.ID, category, priority)
}

// greetingReply pide más detalle ante saludos y mensajes triviales, en lugar
// de gastar una llamada al modelo.
func greetingReply(customerName string) string {
	name := strings.TrimSpace(customerName)
	if name == "" {
		name = "Kak"
	}
	return fmt.Sprintf("Halo %s! 👋\n\nPesan Anda telah kami terima melalui platform Syntra.\nSilakan jelaskan permasalahan yang Anda alami secara lebih rinci agar kami dapat membantu Anda dengan lebih baik.", name)
}

func buildRouteResponse(res router.RouteResult, channel, handledBy string) router.RouteResponse {
	resp := router.RouteResponse{
		Success:     true,
		IsNewChat:   res.IsNewChat,
		WasReopened: res.WasReopened,
		HandledBy:   handledBy,
		Status:      "processed",
		Channel:     channel,
	}
	if res.Chat != nil {
		resp.ChatID = res.Chat.ID
	}
	if res.Customer != nil {
		resp.CustomerID = res.Customer.ID
	}
	if res.Message != nil {
		resp.MessageID = res.Message.ID
	}
	resp.Message = statusMessage(resp.Status, handledBy)
	return resp
}

// ignoredResponse reconoce eventos de sistema del gateway sin procesarlos.
func ignoredResponse(channel crm.Channel, reason string) router.RouteResponse {
	return router.RouteResponse{Success: true, Status: "ignored", Channel: string(channel), Message: reason}
}

// statusMessage es el texto humano que acompaña cada respuesta de webhook.
func statusMessage(status, handledBy string) string {
	switch {
	case status == "dropped_inactive":
		return "Message dropped (Agent Inactive)"
	case handledBy == "system_busy":
		return "Auto-reply sent (Agent Busy)"
	}
	return "Message processed"
}

// whatsAppFromMe detecta ecos de mensajes propios en cualquiera de las tres
// variantes que emite el gateway: id.fromMe, key.fromMe o el flag suelto.
func whatsAppFromMe(msgData map[string]any) bool {
	if id, ok := msgData["id"].(map[string]any); ok && boolValue(id, "fromMe") {
		return true
	}
	if key, ok := msgData["key"].(map[string]any); ok && boolValue(key, "fromMe") {
		return true
	}
	return boolValue(msgData, "fromMe")
}

func parseWebhookTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	return time.Time{}
}

func containsCategory(list []string, category string) bool {
	for _, c := range list {
		if c == category {
			return true
		}
	}
	return false
}

func stringValue(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func boolValue(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func numberValue(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
