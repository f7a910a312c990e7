package customer

import (
	"context"

	"github.com/AzielCF/az-crm/domains/crm"
)

// UpdateCustomerRequest aplica cambios parciales; Meta se fusiona sobre los
// metadatos existentes en lugar de reemplazarlos.
type UpdateCustomerRequest struct {
	Name  *string  `json:"name,omitempty"`
	Phone *string  `json:"phone,omitempty"`
	Email *string  `json:"email,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Meta  crm.Meta `json:"metadata,omitempty"`
}

// ICustomerUsecase expone el directorio de contactos del tenant.
type ICustomerUsecase interface {
	List(ctx context.Context, tenantID, search string, limit, offset int) ([]*crm.Customer, error)
	GetByID(ctx context.Context, tenantID, id string) (*crm.Customer, error)
	Update(ctx context.Context, tenantID, id string, req UpdateCustomerRequest) (*crm.Customer, error)
}
