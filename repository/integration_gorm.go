package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type integrationModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"uniqueIndex:idx_integrations_channel,priority:1;not null"`
	Channel   string `gorm:"uniqueIndex:idx_integrations_channel,priority:2;not null"`
	Name      string
	Config    string    `gorm:"type:text;default:'{}'"` // JSON, secretos cifrados
	IsEnabled bool      `gorm:"default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (integrationModel) TableName() string {
	return "integrations"
}

// --- Repository Implementation ---

type IntegrationGormRepository struct {
	db *gorm.DB
}

func NewIntegrationGormRepository(db *gorm.DB) *IntegrationGormRepository {
	return &IntegrationGormRepository{db: db}
}

func (r *IntegrationGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&integrationModel{})
}

func (r *IntegrationGormRepository) Create(ctx context.Context, integration *crm.Integration) error {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}
	now := time.Now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}
	integration.UpdatedAt = now

	model, err := toIntegrationModel(integration)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if isDuplicateErr(result.Error) {
			return crm.ErrDuplicateIntegration
		}
		return result.Error
	}
	return nil
}

func (r *IntegrationGormRepository) GetByID(ctx context.Context, id string) (*crm.Integration, error) {
	var m integrationModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrIntegrationNotFound
		}
		return nil, err
	}
	return fromIntegrationModel(m)
}

func (r *IntegrationGormRepository) GetByChannel(ctx context.Context, tenantID string, channel crm.Channel) (*crm.Integration, error) {
	var m integrationModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND channel = ?", tenantID, string(channel)).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrIntegrationNotFound
		}
		return nil, err
	}
	return fromIntegrationModel(m)
}

func (r *IntegrationGormRepository) ListByTenant(ctx context.Context, tenantID string) ([]*crm.Integration, error) {
	var models []integrationModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	integrations := make([]*crm.Integration, len(models))
	for i, m := range models {
		in, err := fromIntegrationModel(m)
		if err != nil {
			return nil, err
		}
		integrations[i] = in
	}
	return integrations, nil
}

func (r *IntegrationGormRepository) Update(ctx context.Context, integration *crm.Integration) error {
	integration.UpdatedAt = time.Now()
	model, err := toIntegrationModel(integration)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&integrationModel{ID: integration.ID}).Select("*").Updates(&model)
	if result.Error != nil {
		if isDuplicateErr(result.Error) {
			return crm.ErrDuplicateIntegration
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrIntegrationNotFound
	}
	return nil
}

func (r *IntegrationGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&integrationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrIntegrationNotFound
	}
	return nil
}

// --- Mappers ---

func toIntegrationModel(i *crm.Integration) (integrationModel, error) {
	config := i.Config
	if config == nil {
		config = crm.Meta{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return integrationModel{}, fmt.Errorf("marshal integration config: %w", err)
	}

	return integrationModel{
		ID:        i.ID,
		TenantID:  i.TenantID,
		Channel:   string(i.Channel),
		Name:      i.Name,
		Config:    string(configJSON),
		IsEnabled: i.IsEnabled,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}, nil
}

func fromIntegrationModel(m integrationModel) (*crm.Integration, error) {
	config := crm.Meta{}
	if m.Config != "" {
		if err := json.Unmarshal([]byte(m.Config), &config); err != nil {
			return nil, fmt.Errorf("unmarshal integration config: %w", err)
		}
	}

	return &crm.Integration{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Channel:   crm.Channel(m.Channel),
		Name:      m.Name,
		Config:    config,
		IsEnabled: m.IsEnabled,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}
