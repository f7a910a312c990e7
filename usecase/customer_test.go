package usecase

import (
	"context"
	"testing"

	"github.com/AzielCF/az-crm/domains/crm"
	domainCustomer "github.com/AzielCF/az-crm/domains/customer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerServiceUpdateMergesMeta(t *testing.T) {
	repos := newStateRepos(t)
	tenant := seedStateTenant(t, repos)
	customer := seedStateCustomer(t, repos, tenant.ID, "34600111222", "Marta")
	require.NoError(t, repos.customers.UpdateMeta(context.Background(), customer.ID, crm.Meta{"vip": true}))

	service := NewCustomerService(repos.customers)

	name := "Marta Ruiz"
	updated, err := service.Update(context.Background(), tenant.ID, customer.ID, domainCustomer.UpdateCustomerRequest{
		Name: &name,
		Tags: []string{"premium"},
		Meta: crm.Meta{"segment": "b2b"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Marta Ruiz", updated.Name)
	assert.Equal(t, []string{"premium"}, updated.Tags)
	// Los metadatos se fusionan, las claves previas sobreviven.
	assert.True(t, updated.Meta.GetBool("vip"))
	assert.Equal(t, "b2b", updated.Meta.GetString("segment"))
}

func TestCustomerServiceTenantScoped(t *testing.T) {
	repos := newStateRepos(t)
	tenant := seedStateTenant(t, repos)
	customer := seedStateCustomer(t, repos, tenant.ID, "34600111222", "Marta")

	service := NewCustomerService(repos.customers)

	_, err := service.GetByID(context.Background(), "other-tenant", customer.ID)
	assert.ErrorIs(t, err, crm.ErrCustomerNotFound)

	list, err := service.List(context.Background(), tenant.ID, "Marta", 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
