package usecase

import (
	"context"
	"testing"

	"github.com/AzielCF/az-crm/domains/crm"
	domainIntegration "github.com/AzielCF/az-crm/domains/integration"
	"github.com/AzielCF/az-crm/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIntegrationFixture(t *testing.T) (*stateRepos, *crm.Tenant, domainIntegration.IIntegrationUsecase) {
	t.Helper()
	require.NoError(t, crypto.SetEncryptionKey("unit-test-master-key"))
	repos := newStateRepos(t)
	tenant := seedStateTenant(t, repos)
	return repos, tenant, NewIntegrationService(repos.integrations)
}

func TestIntegrationServiceEncryptsSecretsAtRest(t *testing.T) {
	repos, tenant, service := newIntegrationFixture(t)

	created, err := service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.ChannelWhatsApp,
		Name:    "Linea principal",
		Config: crm.Meta{
			"api_key":  "wa-secret-123",
			"base_url": "http://gateway:3001",
		},
	})
	require.NoError(t, err)
	// La respuesta del API conserva el secreto en claro.
	assert.Equal(t, "wa-secret-123", created.Config.GetString("api_key"))

	raw, err := repos.integrations.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "wa-secret-123", raw.Config.GetString("api_key"))
	assert.NotEmpty(t, raw.Config.GetString("api_key"))
	assert.Equal(t, "http://gateway:3001", raw.Config.GetString("base_url"))

	fetched, err := service.GetByID(context.Background(), tenant.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "wa-secret-123", fetched.Config.GetString("api_key"))
}

func TestIntegrationServiceDuplicateChannel(t *testing.T) {
	_, tenant, service := newIntegrationFixture(t)

	_, err := service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.ChannelTelegram,
		Name:    "Bot soporte",
	})
	require.NoError(t, err)

	_, err = service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.ChannelTelegram,
		Name:    "Bot duplicado",
	})
	assert.ErrorIs(t, err, crm.ErrDuplicateIntegration)
}

func TestIntegrationServiceValidation(t *testing.T) {
	_, tenant, service := newIntegrationFixture(t)

	_, err := service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.ChannelEmail,
	})
	require.Error(t, err)

	_, err = service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.Channel("fax"),
		Name:    "Fax corporativo",
	})
	require.Error(t, err)
}

func TestIntegrationServiceUpdate(t *testing.T) {
	_, tenant, service := newIntegrationFixture(t)

	created, err := service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.ChannelEmail,
		Name:    "Buzon ventas",
		Config:  crm.Meta{"smtp_password": "old-pass"},
	})
	require.NoError(t, err)

	name := "Buzon soporte"
	disabled := false
	updated, err := service.Update(context.Background(), tenant.ID, created.ID, domainIntegration.UpdateIntegrationRequest{
		Name:      &name,
		Config:    crm.Meta{"smtp_password": "new-pass"},
		IsEnabled: &disabled,
	})
	require.NoError(t, err)

	assert.Equal(t, "Buzon soporte", updated.Name)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, "new-pass", updated.Config.GetString("smtp_password"))
}

func TestIntegrationServiceTenantScoped(t *testing.T) {
	_, tenant, service := newIntegrationFixture(t)

	created, err := service.Create(context.Background(), tenant.ID, domainIntegration.CreateIntegrationRequest{
		Channel: crm.ChannelWhatsApp,
		Name:    "Linea",
	})
	require.NoError(t, err)

	_, err = service.GetByID(context.Background(), "other-tenant", created.ID)
	assert.ErrorIs(t, err, crm.ErrIntegrationNotFound)

	err = service.Delete(context.Background(), "other-tenant", created.ID)
	assert.ErrorIs(t, err, crm.ErrIntegrationNotFound)

	list, err := service.ListByTenant(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
