package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/domains/pipeline"
	"github.com/AzielCF/az-crm/domains/ticket"
	"github.com/sirupsen/logrus"
)

const guardFastReason = "Initial Greeting (Fast Guard)"

// Saludos frecuentes ya normalizados (minúsculas, solo alfanumérico).
var guardGreetings = map[string]bool{
	"hi": true, "hello": true, "halo": true, "hai": true, "hey": true,
	"hola": true, "test": true, "tes": true, "ping": true, "p": true,
	"pagi": true, "siang": true, "sore": true, "malam": true,
	"selamatpagi": true, "selamatsiang": true, "selamatsore": true,
	"selamatmalam": true, "assalamualaikum": true,
}

var guardShortSpam = map[string]bool{
	"p": true, "y": true, "ya": true, "ok": true, "oke": true, "tes": true,
	"gan": true, "min": true, "bro": true, "sis": true, "oi": true,
	"woi": true, "hm": true, "hmm": true, "up": true,
}

type ticketGuardService struct {
	llm    pipeline.ILLMClient
	llmCfg coreconfig.LLMConfig
}

// NewTicketGuardService builds the two-layer triage: a set-based fast guard
// for greetings and spam, then the LLM classifier for everything else.
func NewTicketGuardService(llm pipeline.ILLMClient, llmCfg coreconfig.LLMConfig) ticket.ITicketGuardUsecase {
	return &ticketGuardService{llm: llm, llmCfg: llmCfg}
}

func (s *ticketGuardService) Evaluate(ctx context.Context, agent *crm.Agent, text, customerName string, messageCount int) ticket.GuardVerdict {
	if verdict, handled := fastGuard(text, messageCount); handled {
		logrus.Debugf("[TicketGuard] Fast guard verdict for %q: greeting", text)
		return verdict
	}
	return s.smartGuard(ctx, agent, text, customerName)
}

// fastGuard detecta saludos y spam corto de clientes nuevos sin gastar una
// llamada al clasificador.
func fastGuard(text string, messageCount int) (ticket.GuardVerdict, bool) {
	if messageCount > 5 {
		return ticket.GuardVerdict{}, false
	}
	norm := normalizeGuardText(text)
	if norm == "" {
		return ticket.GuardVerdict{}, false
	}
	if !guardGreetings[norm] && !(len(norm) < 4 && guardShortSpam[norm]) {
		return ticket.GuardVerdict{}, false
	}
	return ticket.GuardVerdict{
		ShouldCreateTicket: true,
		Reason:             guardFastReason,
		SuggestedPriority:  string(crm.PriorityLow),
		SuggestedCategory:  "other",
		AutoReplyHint:      "Silakan jelaskan permasalahan Anda secara lebih rinci.",
	}, true
}

func (s *ticketGuardService) smartGuard(ctx context.Context, agent *crm.Agent, text, customerName string) ticket.GuardVerdict {
	fallback := ticket.GuardVerdict{
		ShouldCreateTicket: false,
		SuggestedPriority:  string(crm.PriorityLow),
		SuggestedCategory:  "other",
	}

	name := customerName
	if name == "" {
		name = "Unknown"
	}

	resp, err := s.llm.Chat(ctx, pipeline.ChatRequest{
		Messages: []pipeline.ChatTurn{
			{Role: pipeline.RoleSystem, Text: buildGuardPrompt(agent.Settings.Ticketing)},
			{Role: pipeline.RoleUser, Text: fmt.Sprintf("Customer: %s\nMessage: %s", name, text)},
		},
		Category:       "ticket_guard",
		NameUser:       name,
		Temperature:    0.1,
		OrganizationID: agent.TenantID,
		Model:          s.llmCfg.GuardModel,
	})
	if err != nil || resp.IsError {
		logrus.Warnf("[TicketGuard] Classifier unavailable, defaulting to no ticket: %v", err)
		fallback.Reason = "Classifier unavailable"
		return fallback
	}

	verdict, err := parseGuardVerdict(resp.Text)
	if err != nil {
		logrus.Warnf("[TicketGuard] Unparseable classifier output %q: %v", truncateChars(resp.Text, 120), err)
		fallback.Reason = "Unparseable classifier output"
		return fallback
	}
	return verdict
}

func buildGuardPrompt(rules crm.TicketingRules) string {
	var b strings.Builder
	b.WriteString("You are the ticket triage classifier of a customer support desk. ")
	b.WriteString("Decide whether the customer message warrants opening a support ticket.\n\n")

	if len(rules.NegativeIntents) > 0 {
		b.WriteString("Intents that SHOULD open a ticket (complaints, failures): ")
		b.WriteString(strings.Join(rules.NegativeIntents, ", "))
		b.WriteString("\n")
	}
	if len(rules.PositiveIntents) > 0 {
		b.WriteString("Intents that should NOT open a ticket (greetings, thanks, smalltalk): ")
		b.WriteString(strings.Join(rules.PositiveIntents, ", "))
		b.WriteString("\n")
	}
	if len(rules.PriorityKeywords) > 0 {
		b.WriteString("Keywords that raise priority to high or urgent: ")
		b.WriteString(strings.Join(rules.PriorityKeywords, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nAnswer with STRICT JSON only, no prose and no markdown fences:\n")
	b.WriteString(`{"should_create_ticket": true|false, "reason": "...", "suggested_priority": "low"|"medium"|"high"|"urgent", "suggested_category": "...", "auto_reply_hint": "..."}`)
	return b.String()
}

// parseGuardVerdict tolera fences de markdown y texto alrededor del JSON,
// pero exige el objeto completo y enums válidos.
func parseGuardVerdict(raw string) (ticket.GuardVerdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ticket.GuardVerdict{}, fmt.Errorf("no JSON object in classifier output")
	}

	var verdict ticket.GuardVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &verdict); err != nil {
		return ticket.GuardVerdict{}, err
	}

	switch crm.TicketPriority(verdict.SuggestedPriority) {
	case crm.PriorityLow, crm.PriorityMedium, crm.PriorityHigh, crm.PriorityUrgent:
	default:
		verdict.SuggestedPriority = string(crm.PriorityLow)
	}
	if verdict.SuggestedCategory == "" {
		verdict.SuggestedCategory = "other"
	}
	return verdict, nil
}

func normalizeGuardText(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
