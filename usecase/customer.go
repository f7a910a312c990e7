package usecase

import (
	"context"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	domainCustomer "github.com/AzielCF/az-crm/domains/customer"
)

type customerService struct {
	customers crm.CustomerRepository
}

// NewCustomerService expone el directorio de contactos al panel.
func NewCustomerService(customers crm.CustomerRepository) domainCustomer.ICustomerUsecase {
	return &customerService{customers: customers}
}

func (s *customerService) List(ctx context.Context, tenantID, search string, limit, offset int) ([]*crm.Customer, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.customers.List(ctx, tenantID, search, limit, offset)
}

func (s *customerService) GetByID(ctx context.Context, tenantID, id string) (*crm.Customer, error) {
	customer, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if customer.TenantID != tenantID {
		return nil, crm.ErrCustomerNotFound
	}
	return customer, nil
}

func (s *customerService) Update(ctx context.Context, tenantID, id string, req domainCustomer.UpdateCustomerRequest) (*crm.Customer, error) {
	customer, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		customer.Name = *req.Name
	}
	if req.Phone != nil {
		customer.Phone = *req.Phone
	}
	if req.Email != nil {
		customer.Email = *req.Email
	}
	if req.Tags != nil {
		customer.Tags = req.Tags
	}
	if req.Meta != nil {
		customer.Meta = customer.Meta.Merge(req.Meta)
	}
	customer.UpdatedAt = time.Now()

	if err := s.customers.Update(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}
