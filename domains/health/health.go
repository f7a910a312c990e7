package health

import (
	"context"
	"time"
)

type EntityType string

const (
	EntityDatabase EntityType = "database"
	EntityValkey   EntityType = "valkey"
	EntityLLMProxy EntityType = "llm_proxy"
	EntityChannel  EntityType = "channel_gateway"
	EntityMCP      EntityType = "mcp_server"
)

type Status string

const (
	StatusOk      Status = "OK"
	StatusError   Status = "ERROR"
	StatusUnknown Status = "UNKNOWN"
)

type HealthRecord struct {
	ID          string     `json:"id"`
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Status      Status     `json:"status"`
	LastMessage string     `json:"last_message"`
	LastChecked time.Time  `json:"last_checked"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// IHealthRepository persiste el último estado conocido de cada dependencia.
type IHealthRepository interface {
	// Upsert reemplaza el registro de (entity_type, entity_id); un estado OK
	// sella también last_success.
	Upsert(ctx context.Context, record *HealthRecord) error
	List(ctx context.Context) ([]HealthRecord, error)
	// Get devuelve nil sin error cuando la entidad nunca fue verificada.
	Get(ctx context.Context, entityType EntityType, entityID string) (*HealthRecord, error)
}

type IHealthUsecase interface {
	CheckDatabase(ctx context.Context) (HealthRecord, error)
	CheckValkey(ctx context.Context) (HealthRecord, error)
	CheckLLMProxy(ctx context.Context) (HealthRecord, error)
	CheckChannel(ctx context.Context, channel string) (HealthRecord, error)
	CheckAll(ctx context.Context) ([]HealthRecord, error)
	GetStatus(ctx context.Context) ([]HealthRecord, error)
	GetEntityStatus(ctx context.Context, entityType EntityType, entityID string) (HealthRecord, error)
	ReportFailure(ctx context.Context, entityType EntityType, entityID string, message string)
	ReportSuccess(ctx context.Context, entityType EntityType, entityID string)
	StartPeriodicChecks(ctx context.Context)
}
