package crm

import (
	"strings"
	"time"

	"github.com/AzielCF/az-crm/pkg/timeutils"
)

// Channel representa el canal de origen de un mensaje o agente
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWebChat  Channel = "webchat"
)

// ChatStatus es el ciclo de vida de una conversación
type ChatStatus string

const (
	ChatOpen     ChatStatus = "open"
	ChatAssigned ChatStatus = "assigned"
	ChatResolved ChatStatus = "resolved"
	ChatClosed   ChatStatus = "closed"
)

// HandledBy indica quién responde la conversación actualmente
type HandledBy string

const (
	HandledByAI    HandledBy = "ai"
	HandledByHuman HandledBy = "human"
)

// SenderType clasifica el emisor de un mensaje persistido
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAgent    SenderType = "agent"
	SenderAI       SenderType = "ai"
	SenderSystem   SenderType = "system"
)

// TicketStatus / TicketPriority
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

type TicketPriority string

const (
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// Meta es un mapa JSON flexible para metadatos de entidades
type Meta map[string]any

// GetString devuelve el valor string de una clave, o "" si no existe
func (m Meta) GetString(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetBool devuelve el valor bool de una clave
func (m Meta) GetBool(key string) bool {
	if m == nil {
		return false
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// GetInt devuelve el valor numérico de una clave como int
func (m Meta) GetInt(key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Merge combina los pares de other sobre m sin perder claves existentes
// que other no menciona. Devuelve el mapa resultante.
func (m Meta) Merge(other Meta) Meta {
	if m == nil {
		m = Meta{}
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Clone copia superficialmente el mapa
func (m Meta) Clone() Meta {
	out := Meta{}
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Tenant es una organización aislada dentro del sistema
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Plan      string    `json:"plan,omitempty"`
	Credits   float64   `json:"credits"`
	IsActive  bool      `json:"is_active"`
	Meta      Meta      `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MCPServerConfig describe un servidor de herramientas externo del agente
type MCPServerConfig struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`
}

// TicketingRules controla la creación automática de tickets por agente
type TicketingRules struct {
	Enabled          bool     `json:"enabled"`
	AutoCreate       bool     `json:"auto_create"`
	NegativeIntents  []string `json:"negative_intents,omitempty"`
	PositiveIntents  []string `json:"positive_intents,omitempty"`
	PriorityKeywords []string `json:"priority_keywords,omitempty"`
}

// AgentSettings es la configuración JSON del agente: persona de la IA,
// horarios, reglas de ticketing y servidores de herramientas.
type AgentSettings struct {
	Persona            string                  `json:"persona,omitempty"`
	CustomInstructions string                  `json:"custom_instructions,omitempty"`
	ResponseStyle      string                  `json:"response_style,omitempty"` // consistent | balanced | creative
	BusyMode           bool                    `json:"busy_mode"`
	BusyMessage        string                  `json:"busy_message,omitempty"`
	Schedule           *timeutils.WorkSchedule `json:"schedule,omitempty"`
	Ticketing          TicketingRules          `json:"ticketing"`
	CreditRate         float64                 `json:"credit_rate,omitempty"`
	Model              string                  `json:"model,omitempty"`
	MCPServers         []MCPServerConfig       `json:"mcp_servers,omitempty"`
}

// Temperature traduce el estilo de respuesta configurado a la temperatura
// del modelo. Un estilo desconocido usa el punto medio.
func (s AgentSettings) Temperature() float64 {
	switch strings.ToLower(strings.TrimSpace(s.ResponseStyle)) {
	case "consistent":
		return 0.3
	case "creative":
		return 1.0
	case "balanced", "":
		return 0.7
	}
	return 0.7
}

// Agent es un punto de entrada de canal (línea de WhatsApp, bot de Telegram,
// buzón de email) con su persona de IA asociada.
type Agent struct {
	ID         string        `json:"id"`
	TenantID   string        `json:"tenant_id"`
	Name       string        `json:"name"`
	Channel    Channel       `json:"channel"`
	Identifier string        `json:"identifier"` // número (whatsapp), bot username (telegram), dirección (email)
	IsAI       bool          `json:"is_ai"`
	IsActive   bool          `json:"is_active"`
	Settings   AgentSettings `json:"settings"`
	Meta       Meta          `json:"metadata,omitempty"` // bot_token, from_email, etc.
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Customer es un contacto final normalizado por canal
type Customer struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone,omitempty"`
	Email      string     `json:"email,omitempty"`
	TelegramID string     `json:"telegram_id,omitempty"`
	Tags       []string   `json:"tags"`
	Meta       Meta       `json:"metadata,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Chat es una conversación activa entre un cliente y un agente de canal
type Chat struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	CustomerID    string     `json:"customer_id"`
	AgentID       string     `json:"agent_id"`
	Channel       Channel    `json:"channel"`
	ChannelChatID string     `json:"channel_chat_id"` // 628xx@c.us, chat numérico de telegram, dirección email
	Status        ChatStatus `json:"status"`
	HandledBy     HandledBy  `json:"handled_by"`
	AssignedTo    string     `json:"assigned_to,omitempty"` // operador humano
	IsGroup       bool       `json:"is_group"`
	GroupSubject  string     `json:"group_subject,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
	Meta          Meta       `json:"metadata,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Message es un mensaje persistido dentro de un chat
type Message struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	ChatID           string     `json:"chat_id"`
	CustomerID       string     `json:"customer_id,omitempty"`
	SenderType       SenderType `json:"sender_type"`
	SenderID         string     `json:"sender_id,omitempty"`
	SenderName       string     `json:"sender_name,omitempty"`
	Content          string     `json:"content"`
	ContentType      string     `json:"content_type"` // text | image | audio | video | document
	MediaURL         string     `json:"media_url,omitempty"`
	ChannelMessageID string     `json:"channel_message_id,omitempty"` // id del mensaje en el canal de origen, clave de dedupe
	Meta             Meta       `json:"metadata,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Ticket es un caso de soporte ligado a un chat
type Ticket struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	ChatID      string         `json:"chat_id"`
	CustomerID  string         `json:"customer_id"`
	Number      int            `json:"number"`
	Code        string         `json:"code"` // TKT-000042
	Subject     string         `json:"subject"`
	Description string         `json:"description,omitempty"`
	Status      TicketStatus   `json:"status"`
	Priority    TicketPriority `json:"priority"`
	Category    string         `json:"category,omitempty"`
	AssignedTo  string         `json:"assigned_to,omitempty"`
	Meta        Meta           `json:"metadata,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TicketActivity es una entrada del historial de un ticket
type TicketActivity struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	TicketID  string    `json:"ticket_id"`
	Action    string    `json:"action"` // created | status_changed | priority_changed | assigned | note
	Actor     string    `json:"actor"`  // "system", "guard", id de operador
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Integration guarda la configuración de un canal externo por tenant.
// Los secretos dentro de Config se cifran en reposo.
type Integration struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Channel   Channel   `json:"channel"`
	Name      string    `json:"name"`
	Config    Meta      `json:"config,omitempty"`
	IsEnabled bool      `json:"is_enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTag verifica si el cliente tiene un tag específico
func (c *Customer) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DisplayName devuelve un nombre presentable del cliente
func (c *Customer) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	if c.Phone != "" {
		return c.Phone
	}
	if c.Email != "" {
		return c.Email
	}
	return "Customer"
}

// IsActive indica si el chat sigue recibiendo mensajes enrutados
func (ch *Chat) IsActive() bool {
	return ch.Status == ChatOpen || ch.Status == ChatAssigned || ch.Status == ChatResolved
}
