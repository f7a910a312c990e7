package usecase

import (
	"context"
	"strings"

	"github.com/AzielCF/az-crm/domains/crm"
	domainIntegration "github.com/AzielCF/az-crm/domains/integration"
	"github.com/AzielCF/az-crm/pkg/crypto"
	"github.com/AzielCF/az-crm/validations"
	"github.com/sirupsen/logrus"
)

type integrationService struct {
	integrations crm.IntegrationRepository
}

// NewIntegrationService administra la configuración de canal de cada tenant.
// Los valores sensibles del config viajan cifrados a la base y vuelven en
// claro hacia el API.
func NewIntegrationService(integrations crm.IntegrationRepository) domainIntegration.IIntegrationUsecase {
	return &integrationService{integrations: integrations}
}

func (s *integrationService) Create(ctx context.Context, tenantID string, req domainIntegration.CreateIntegrationRequest) (*crm.Integration, error) {
	if err := validations.ValidateCreateIntegration(ctx, req); err != nil {
		return nil, err
	}

	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	integration := &crm.Integration{
		TenantID:  tenantID,
		Channel:   req.Channel,
		Name:      req.Name,
		Config:    encryptConfig(req.Config),
		IsEnabled: enabled,
	}
	if err := s.integrations.Create(ctx, integration); err != nil {
		return nil, err
	}
	logrus.Infof("[Integration] %s configured for tenant %s (%s)", req.Channel, tenantID, req.Name)

	integration.Config = req.Config
	return integration, nil
}

func (s *integrationService) GetByID(ctx context.Context, tenantID, id string) (*crm.Integration, error) {
	integration, err := s.getTenantIntegration(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	integration.Config = decryptConfig(integration.Config)
	return integration, nil
}

func (s *integrationService) ListByTenant(ctx context.Context, tenantID string) ([]*crm.Integration, error) {
	integrations, err := s.integrations.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, integration := range integrations {
		integration.Config = decryptConfig(integration.Config)
	}
	return integrations, nil
}

func (s *integrationService) Update(ctx context.Context, tenantID, id string, req domainIntegration.UpdateIntegrationRequest) (*crm.Integration, error) {
	integration, err := s.getTenantIntegration(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		integration.Name = *req.Name
	}
	if req.Config != nil {
		integration.Config = encryptConfig(req.Config)
	}
	if req.IsEnabled != nil {
		integration.IsEnabled = *req.IsEnabled
	}
	if err := s.integrations.Update(ctx, integration); err != nil {
		return nil, err
	}

	integration.Config = decryptConfig(integration.Config)
	return integration, nil
}

func (s *integrationService) Delete(ctx context.Context, tenantID, id string) error {
	if _, err := s.getTenantIntegration(ctx, tenantID, id); err != nil {
		return err
	}
	return s.integrations.Delete(ctx, id)
}

func (s *integrationService) getTenantIntegration(ctx context.Context, tenantID, id string) (*crm.Integration, error) {
	integration, err := s.integrations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if integration.TenantID != tenantID {
		return nil, crm.ErrIntegrationNotFound
	}
	return integration, nil
}

// isSecretConfigKey marca las claves del config que se guardan cifradas.
func isSecretConfigKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range []string{"key", "token", "secret", "password"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

func encryptConfig(config crm.Meta) crm.Meta {
	if config == nil {
		return nil
	}
	out := crm.Meta{}
	for k, v := range config {
		value, ok := v.(string)
		if !ok || !isSecretConfigKey(k) {
			out[k] = v
			continue
		}
		encrypted, err := crypto.Encrypt(value)
		if err != nil {
			logrus.Warnf("[Integration] Could not encrypt config key %q: %v", k, err)
			out[k] = v
			continue
		}
		out[k] = encrypted
	}
	return out
}

func decryptConfig(config crm.Meta) crm.Meta {
	if config == nil {
		return nil
	}
	out := crm.Meta{}
	for k, v := range config {
		value, ok := v.(string)
		if !ok || !isSecretConfigKey(k) {
			out[k] = v
			continue
		}
		plain, err := crypto.Decrypt(value)
		if err != nil {
			out[k] = v
			continue
		}
		out[k] = plain
	}
	return out
}
