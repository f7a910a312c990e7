package integration

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
)

// CreateIntegrationRequest registra la configuración de un canal externo.
type CreateIntegrationRequest struct {
	Channel   crm.Channel `json:"channel"`
	Name      string      `json:"name"`
	Config    crm.Meta    `json:"config,omitempty"`
	IsEnabled *bool       `json:"is_enabled,omitempty"`
}

// UpdateIntegrationRequest aplica cambios parciales; Config reemplaza el
// mapa completo cuando no es nil.
type UpdateIntegrationRequest struct {
	Name      *string  `json:"name,omitempty"`
	Config    crm.Meta `json:"config,omitempty"`
	IsEnabled *bool    `json:"is_enabled,omitempty"`
}

// IIntegrationUsecase gestiona la configuración de canales por tenant.
// Los valores sensibles de Config se cifran antes de persistir y se
// devuelven descifrados al leer.
type IIntegrationUsecase interface {
	Create(ctx context.Context, tenantID string, req CreateIntegrationRequest) (*crm.Integration, error)
	GetByID(ctx context.Context, tenantID, id string) (*crm.Integration, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*crm.Integration, error)
	Update(ctx context.Context, tenantID, id string, req UpdateIntegrationRequest) (*crm.Integration, error)
	Delete(ctx context.Context, tenantID, id string) error
}
