package crm

import (
	"context"
	"time"
)

// ChatFilter define los criterios de listado de conversaciones
type ChatFilter struct {
	Status    *ChatStatus
	Channel   *Channel
	HandledBy *HandledBy
	AgentID   string
	Search    string
	Limit     int
	Offset    int
}

// TicketFilter define los criterios de listado de tickets
type TicketFilter struct {
	Status   *TicketStatus
	Priority *TicketPriority
	Category string
	Limit    int
	Offset   int
}

// TenantRepository persiste organizaciones
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
	Update(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id string) error
	// AddCredits suma (o resta, con delta negativo) créditos de forma atómica
	AddCredits(ctx context.Context, id string, delta float64) error
}

// AgentRepository persiste agentes de canal
type AgentRepository interface {
	Create(ctx context.Context, agent *Agent) error
	GetByID(ctx context.Context, id string) (*Agent, error)
	// GetByChannelIdentifier resuelve el agente destinatario de un webhook
	// entrante (número de WhatsApp, username del bot, dirección de email).
	GetByChannelIdentifier(ctx context.Context, channel Channel, identifier string) (*Agent, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Agent, error)
	Update(ctx context.Context, agent *Agent) error
	Delete(ctx context.Context, id string) error
}

// CustomerRepository persiste contactos finales
type CustomerRepository interface {
	// UpsertByChannel busca el cliente por su identidad normalizada de canal
	// y lo crea si no existe. Devuelve created=true cuando se insertó.
	UpsertByChannel(ctx context.Context, tenantID string, channel Channel, identifier, name string) (customer *Customer, created bool, err error)
	GetByID(ctx context.Context, id string) (*Customer, error)
	List(ctx context.Context, tenantID string, search string, limit, offset int) ([]*Customer, error)
	Update(ctx context.Context, customer *Customer) error
	// UpdateMeta reemplaza los metadatos completos y sella last_seen_at.
	// El router la invoca en cada mensaje entrante.
	UpdateMeta(ctx context.Context, id string, meta Meta) error
	Delete(ctx context.Context, id string) error
}

// ChatRepository persiste conversaciones
type ChatRepository interface {
	Create(ctx context.Context, chat *Chat) error
	GetByID(ctx context.Context, id string) (*Chat, error)
	// FindActive devuelve la conversación más reciente aún enrutable
	// (open, assigned o resolved) para un canal/chat dado.
	FindActive(ctx context.Context, tenantID string, channel Channel, channelChatID string) (*Chat, error)
	List(ctx context.Context, tenantID string, filter ChatFilter) ([]*Chat, error)
	Update(ctx context.Context, chat *Chat) error
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// MessageRepository persiste mensajes
type MessageRepository interface {
	// InsertOrMerge deduplica por (tenant, channel_message_id): si el mensaje
	// ya existe fusiona los metadatos y devuelve merged=true.
	InsertOrMerge(ctx context.Context, message *Message) (merged bool, err error)
	Append(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// FetchHistory devuelve hasta limit mensajes en orden cronológico,
	// deduplicando repeticiones consecutivas del mismo emisor y contenido.
	FetchHistory(ctx context.Context, chatID string, limit int) ([]Message, error)
	ListByChat(ctx context.Context, chatID string, limit, offset int) ([]Message, error)
}

// TicketRepository persiste tickets y su historial
type TicketRepository interface {
	// NextNumber entrega el siguiente número monotónico del tenant
	NextNumber(ctx context.Context, tenantID string) (int, error)
	Create(ctx context.Context, ticket *Ticket) error
	GetByID(ctx context.Context, id string) (*Ticket, error)
	GetByCode(ctx context.Context, tenantID, code string) (*Ticket, error)
	// FindActiveByChat devuelve el ticket open/in_progress del chat, si existe
	FindActiveByChat(ctx context.Context, chatID string) (*Ticket, error)
	// FindActiveByCustomer devuelve el ticket open/in_progress más reciente del cliente
	FindActiveByCustomer(ctx context.Context, customerID string) (*Ticket, error)
	List(ctx context.Context, tenantID string, filter TicketFilter) ([]*Ticket, error)
	Update(ctx context.Context, ticket *Ticket) error
	AddActivity(ctx context.Context, activity *TicketActivity) error
	ListActivities(ctx context.Context, ticketID string) ([]TicketActivity, error)
}

// IntegrationRepository persiste configuraciones de canal por tenant
type IntegrationRepository interface {
	Create(ctx context.Context, integration *Integration) error
	GetByID(ctx context.Context, id string) (*Integration, error)
	GetByChannel(ctx context.Context, tenantID string, channel Channel) (*Integration, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Integration, error)
	Update(ctx context.Context, integration *Integration) error
	Delete(ctx context.Context, id string) error
}
