package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/dispatch"
	"github.com/AzielCF/az-crm/domains/knowledge"
	"github.com/AzielCF/az-crm/domains/pipeline"
	"github.com/AzielCF/az-crm/domains/realtime"
	"github.com/AzielCF/az-crm/pkg/alertgate"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/AzielCF/az-crm/pkg/mediacache"
	"github.com/AzielCF/az-crm/pkg/pipemonitor"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/sirupsen/logrus"
)

const (
	defaultHistoryLimit    = 5
	defaultMaxToolTurns    = 5
	defaultApologyCooldown = 15 * time.Second

	// historyImageLookback limita cuántos adjuntos previos se re-adjuntan.
	historyImageLookback = 2

	defaultProxyCategory = "inquiry"

	apologyMessage = "Maaf, sistem kami sedang mengalami gangguan. Silakan coba beberapa saat lagi. 🙏"
)

type pipelineService struct {
	tenants     crm.TenantRepository
	agents      crm.AgentRepository
	customers   crm.CustomerRepository
	chats       crm.ChatRepository
	messages    crm.MessageRepository
	tickets     crm.TicketRepository
	knowledge   knowledge.IKnowledgeUsecase
	llm         pipeline.ILLMClient
	tools       pipeline.IToolExecutor
	dispatcher  dispatch.IDispatchUsecase
	broadcaster realtime.IBroadcaster
	prompter    *prompter
	cfg         coreconfig.PipelineConfig
	llmCfg      coreconfig.LLMConfig
}

// NewPipelineService orquesta la respuesta de IA de un chat: contexto,
// visión, RAG, bucle de herramientas, persistencia y entrega.
func NewPipelineService(
	tenants crm.TenantRepository,
	agents crm.AgentRepository,
	customers crm.CustomerRepository,
	chats crm.ChatRepository,
	messages crm.MessageRepository,
	tickets crm.TicketRepository,
	knowledgeUC knowledge.IKnowledgeUsecase,
	llm pipeline.ILLMClient,
	tools pipeline.IToolExecutor,
	dispatcher dispatch.IDispatchUsecase,
	broadcaster realtime.IBroadcaster,
	cfg coreconfig.PipelineConfig,
	llmCfg coreconfig.LLMConfig,
) pipeline.IPipelineUsecase {
	if broadcaster == nil {
		broadcaster = realtime.NopBroadcaster{}
	}
	return &pipelineService{
		tenants:     tenants,
		agents:      agents,
		customers:   customers,
		chats:       chats,
		messages:    messages,
		tickets:     tickets,
		knowledge:   knowledgeUC,
		llm:         llm,
		tools:       tools,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		prompter:    newPrompter(),
		cfg:         cfg,
		llmCfg:      llmCfg,
	}
}

func (s *pipelineService) ProcessChat(ctx context.Context, chatID, messageID, priority string) error {
	started := time.Now()

	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if chat.HandledBy != crm.HandledByAI {
		logrus.Debugf("[Pipeline] Chat %s handled by %s, skipping AI reply", chatID, chat.HandledBy)
		return nil
	}

	agent, err := s.agents.GetByID(ctx, chat.AgentID)
	if err != nil {
		return err
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	customerName := "Customer"
	customerPhone := ""
	if chat.CustomerID != "" {
		if customer, cerr := s.customers.GetByID(ctx, chat.CustomerID); cerr != nil {
			logrus.Warnf("[Pipeline] Customer %s lookup: %v", chat.CustomerID, cerr)
		} else {
			customerName = customer.DisplayName()
			customerPhone = customer.Phone
		}
	}

	// El proxy enruta por categoría: la del ticket activo si existe
	category := defaultProxyCategory
	ticketID := ""
	if ticket, terr := s.tickets.FindActiveByChat(ctx, chatID); terr != nil {
		if !errors.Is(terr, crm.ErrTicketNotFound) {
			logrus.Warnf("[Pipeline] Active ticket lookup for chat %s: %v", chatID, terr)
		}
	} else {
		ticketID = ticket.ID
		if ticket.Category != "" {
			category = ticket.Category
		}
	}

	history, err := s.messages.FetchHistory(ctx, chatID, s.historyLimit())
	if err != nil {
		return err
	}
	// El mensaje disparador no forma parte del contexto previo
	previous := make([]crm.Message, 0, len(history))
	for _, h := range history {
		if h.ID == messageID {
			continue
		}
		previous = append(previous, h)
	}

	files := s.collectImages(chat.TenantID, *msg, previous)

	visionContext := ""
	if len(files) > 0 {
		visionContext = s.describeImages(ctx, chat, customerName, msg.Content, files)
	}

	ragQuery := strings.TrimSpace(msg.Content + " " + visionContext)
	ragContext, err := s.knowledge.Search(ctx, chat.TenantID, ragQuery, 0)
	if err != nil {
		logrus.Warnf("[Pipeline] Knowledge search for chat %s: %v", chatID, err)
		ragContext = ""
	}

	var toolDefs []pipeline.ToolDef
	if s.tools != nil {
		toolDefs = s.tools.Tools(ctx, agent)
	}

	system := s.prompter.BuildSystemInstructions(agent, customerName, ragContext, toolDefs, len(files) > 0)

	turns := make([]pipeline.ChatTurn, 0, len(previous)+2)
	turns = append(turns, pipeline.ChatTurn{Role: pipeline.RoleSystem, Text: system})
	for _, h := range previous {
		if h.SenderType == crm.SenderSystem || strings.TrimSpace(h.Content) == "" {
			continue
		}
		role := pipeline.RoleUser
		if h.SenderType == crm.SenderAI || h.SenderType == crm.SenderAgent {
			role = pipeline.RoleAssistant
		}
		turns = append(turns, pipeline.ChatTurn{Role: role, Text: h.Content})
	}
	userText := msg.Content
	if visionContext != "" {
		userText = strings.TrimSpace(userText + "\n\n[Image Description]: " + visionContext)
	}
	turns = append(turns, pipeline.ChatTurn{Role: pipeline.RoleUser, Text: userText})

	model := strings.TrimSpace(agent.Settings.Model)
	if model == "" {
		model = s.llmCfg.ChatModel
	}
	req := pipeline.ChatRequest{
		Messages:       turns,
		Files:          files,
		Category:       category,
		NameUser:       customerName,
		Temperature:    agent.Settings.Temperature(),
		OrganizationID: chat.TenantID,
		TicketID:       ticketID,
		Tools:          toolDefs,
		Model:          model,
	}
	if len(toolDefs) > 0 {
		req.ToolChoice = "auto"
	}

	var resp *pipeline.ChatResponse
	toolTurns := 0
	maxTurns := s.maxToolTurns()

	// Bucle de herramientas (máximo maxTurns llamadas al proxy)
	for i := 0; i < maxTurns; i++ {
		// La última vuelta fuerza respuesta en texto
		if i == maxTurns-1 && len(toolDefs) > 0 {
			req.Tools = nil
			req.ToolChoice = "none"
		}

		pipemonitor.Record(pipemonitor.Event{
			TraceID:  messageID,
			TenantID: chat.TenantID,
			ChatID:   chat.ID,
			Channel:  string(chat.Channel),
			Stage:    "ai_request",
			Kind:     "chat",
			Status:   "ok",
		})
		resp, err = s.llm.Chat(ctx, req)
		if err != nil {
			return s.failClosed(ctx, chat, agent, err)
		}
		if resp.IsError {
			detail := resp.Detail
			if detail == "" {
				detail = resp.Text
			}
			return s.failClosed(ctx, chat, agent, pkgError.TransientUpstreamError{Message: detail})
		}
		if len(resp.ToolCalls) == 0 || s.tools == nil {
			break
		}

		toolTurns++
		req.Messages = append(req.Messages, pipeline.ChatTurn{
			Role:      pipeline.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		// Todas las respuestas de herramientas del turno van agrupadas
		responses := make([]pipeline.ToolResponse, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			logrus.Infof("[Pipeline] Executing tool %s for chat %s", call.Name, chatID)
			responses = append(responses, s.tools.Execute(ctx, agent, call))
		}
		req.Messages = append(req.Messages, pipeline.ChatTurn{
			Role:          pipeline.RoleTool,
			ToolResponses: responses,
		})
	}

	text := utils.SanitizeMarkdown(resp.Text)
	if text == "" {
		return s.failClosed(ctx, chat, agent, pkgError.TransientUpstreamError{Message: "proxy returned an empty reply"})
	}
	pipemonitor.Record(pipemonitor.Event{
		TraceID:    messageID,
		TenantID:   chat.TenantID,
		ChatID:     chat.ID,
		Channel:    string(chat.Channel),
		Stage:      "ai_response",
		Kind:       "chat",
		Status:     "ok",
		DurationMs: time.Since(started).Milliseconds(),
	})

	aiMsg := &crm.Message{
		TenantID:    chat.TenantID,
		ChatID:      chat.ID,
		SenderType:  crm.SenderAI,
		SenderID:    agent.ID,
		SenderName:  agent.Name,
		Content:     text,
		ContentType: "text",
		Meta: crm.Meta{
			"proxy_category": category,
			"rag_enabled":    ragContext != "",
			"tool_turns":     toolTurns,
		},
	}
	if resp.Usage != nil {
		aiMsg.Meta["model"] = resp.Usage.Model
	}
	if visionContext != "" {
		aiMsg.Meta["vision"] = true
	}
	if err := s.messages.Append(ctx, aiMsg); err != nil {
		return err
	}
	if err := s.chats.TouchLastMessage(ctx, chat.ID, time.Now()); err != nil {
		logrus.Warnf("[Pipeline] Touch last message for chat %s: %v", chat.ID, err)
	}

	// Difusión al dashboard y entrega al canal en paralelo
	var wg sync.WaitGroup
	var delivery dispatch.Result
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.broadcaster.BroadcastNewMessage(chat.TenantID, realtime.NewMessagePayload{
			ChatID:         chat.ID,
			MessageID:      aiMsg.ID,
			CustomerID:     chat.CustomerID,
			CustomerName:   "AI Agent",
			MessageContent: text,
			Channel:        string(chat.Channel),
			HandledBy:      string(chat.HandledBy),
			SenderType:     string(crm.SenderAI),
			SenderID:       agent.ID,
		})
	}()
	go func() {
		defer wg.Done()
		outMsg := dispatch.OutboundMessage{
			TenantID: chat.TenantID,
			AgentID:  agent.ID,
			Channel:  chat.Channel,
			ChatID:   chat.ChannelChatID,
			Content:  text,
		}
		// En grupos la respuesta menciona al participante que escribió,
		// si no WhatsApp no le notifica.
		if gid, _ := msg.Meta["target_group_id"].(string); gid != "" && customerPhone != "" {
			outMsg.Mentions = []string{customerPhone}
		}
		delivery = s.dispatcher.Send(ctx, outMsg)
	}()
	wg.Wait()
	outbound := pipemonitor.Event{
		TraceID:  aiMsg.ID,
		TenantID: chat.TenantID,
		ChatID:   chat.ID,
		Channel:  string(chat.Channel),
		Stage:    "outbound",
		Kind:     "text",
		Status:   "ok",
	}
	if !delivery.Success {
		logrus.Errorf("[Pipeline] Delivery failed for chat %s: %s", chat.ID, delivery.Detail)
		outbound.Status = "error"
		outbound.Error = delivery.Detail
	}
	pipemonitor.Record(outbound)

	// Solo las respuestas reales del upstream consumen créditos
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
		if cost := float64(tokens) * agent.Settings.CreditRate; cost > 0 {
			if cerr := s.tenants.AddCredits(ctx, chat.TenantID, -cost); cerr != nil {
				logrus.Warnf("[Pipeline] Credit charge for tenant %s: %v", chat.TenantID, cerr)
			}
		}
	}

	alertgate.Clear(chat.TenantID, chat.ID)
	logrus.Infof("[Pipeline] Reply for chat %s in %s (priority=%s tools=%d tokens=%d)",
		chat.ID, time.Since(started).Round(time.Millisecond), priority, toolTurns, tokens)
	return nil
}

// failClosed responde la disculpa estándar como máximo una vez por chat dentro
// de la ventana de enfriamiento. La llamada al LLM nunca se reintenta.
func (s *pipelineService) failClosed(ctx context.Context, chat *crm.Chat, agent *crm.Agent, cause error) error {
	logrus.Errorf("[Pipeline] Upstream failure for chat %s: %v", chat.ID, cause)
	pipemonitor.Record(pipemonitor.Event{
		TenantID: chat.TenantID,
		ChatID:   chat.ID,
		Channel:  string(chat.Channel),
		Stage:    "ai_response",
		Kind:     "chat",
		Status:   "error",
		Error:    cause.Error(),
	})

	if !alertgate.Allow(chat.TenantID, chat.ID, s.apologyCooldown()) {
		logrus.Debugf("[Pipeline] Apology suppressed for chat %s (cooldown)", chat.ID)
		return cause
	}

	apology := &crm.Message{
		TenantID:    chat.TenantID,
		ChatID:      chat.ID,
		SenderType:  crm.SenderAI,
		SenderID:    agent.ID,
		SenderName:  agent.Name,
		Content:     apologyMessage,
		ContentType: "text",
		Meta:        crm.Meta{"type": "system_apology"},
	}
	if err := s.messages.Append(ctx, apology); err != nil {
		logrus.Errorf("[Pipeline] Persisting apology for chat %s: %v", chat.ID, err)
		return cause
	}

	s.broadcaster.BroadcastNewMessage(chat.TenantID, realtime.NewMessagePayload{
		ChatID:         chat.ID,
		MessageID:      apology.ID,
		CustomerID:     chat.CustomerID,
		CustomerName:   "AI Agent",
		MessageContent: apologyMessage,
		Channel:        string(chat.Channel),
		HandledBy:      string(chat.HandledBy),
		SenderType:     string(crm.SenderAI),
		SenderID:       agent.ID,
	})
	if res := s.dispatcher.Send(ctx, dispatch.OutboundMessage{
		TenantID: chat.TenantID,
		AgentID:  agent.ID,
		Channel:  chat.Channel,
		ChatID:   chat.ChannelChatID,
		Content:  apologyMessage,
	}); !res.Success {
		logrus.Errorf("[Pipeline] Apology delivery for chat %s: %s", chat.ID, res.Detail)
	}
	return cause
}

// collectImages materializa los adjuntos de imagen del mensaje actual más los
// últimos del historial a rutas locales vía el cache de medios.
func (s *pipelineService) collectImages(tenantID string, current crm.Message, history []crm.Message) []pipeline.FileRef {
	refs := make([]pipeline.FileRef, 0, historyImageLookback+1)
	if isImageMessage(current) {
		if ref, ok := fetchImageRef(tenantID, current); ok {
			refs = append(refs, ref)
		}
	}

	found := 0
	for i := len(history) - 1; i >= 0 && found < historyImageLookback; i-- {
		if !isImageMessage(history[i]) {
			continue
		}
		if ref, ok := fetchImageRef(tenantID, history[i]); ok {
			refs = append(refs, ref)
			found++
		}
	}
	return refs
}

// describeImages hace una única llamada al modelo de visión. Si falla, el
// pipeline continúa sin contexto visual.
func (s *pipelineService) describeImages(ctx context.Context, chat *crm.Chat, customerName, content string, files []pipeline.FileRef) string {
	prompt := "Describe the attached image(s) so a support agent can respond: include any visible text, codes, product or order details."
	if strings.TrimSpace(content) != "" {
		prompt = fmt.Sprintf("Customer message: %q.\n%s", content, prompt)
	}

	pipemonitor.Record(pipemonitor.Event{
		TenantID: chat.TenantID,
		ChatID:   chat.ID,
		Channel:  string(chat.Channel),
		Stage:    "ai_request",
		Kind:     "vision",
		Status:   "ok",
	})
	resp, err := s.llm.Chat(ctx, pipeline.ChatRequest{
		Messages:       []pipeline.ChatTurn{{Role: pipeline.RoleUser, Text: prompt}},
		Files:          files,
		Category:       "vision",
		NameUser:       customerName,
		Temperature:    0.2,
		OrganizationID: chat.TenantID,
		Model:          s.llmCfg.VisionModel,
	})
	if err != nil {
		logrus.Warnf("[Pipeline] Vision call for chat %s: %v", chat.ID, err)
		return ""
	}
	if resp.IsError {
		logrus.Warnf("[Pipeline] Vision call for chat %s: %s", chat.ID, resp.Detail)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

func isImageMessage(m crm.Message) bool {
	return m.MediaURL != "" && m.ContentType == "image"
}

func fetchImageRef(tenantID string, m crm.Message) (pipeline.FileRef, bool) {
	item, err := mediacache.Fetch(tenantID, m.MediaURL, m.Content)
	if err != nil {
		logrus.Warnf("[Pipeline] Media fetch %s: %v", m.MediaURL, err)
		return pipeline.FileRef{}, false
	}
	if item.Kind != "image" {
		return pipeline.FileRef{}, false
	}
	return pipeline.FileRef{Type: "image", URL: item.Path}, true
}

func (s *pipelineService) historyLimit() int {
	if s.cfg.HistoryLimit > 0 {
		return s.cfg.HistoryLimit
	}
	return defaultHistoryLimit
}

func (s *pipelineService) maxToolTurns() int {
	if s.cfg.MaxToolTurns > 0 {
		return s.cfg.MaxToolTurns
	}
	return defaultMaxToolTurns
}

func (s *pipelineService) apologyCooldown() time.Duration {
	if s.cfg.ApologyCooldownSeconds > 0 {
		return time.Duration(s.cfg.ApologyCooldownSeconds) * time.Second
	}
	return defaultApologyCooldown
}
