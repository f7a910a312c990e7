package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type agentModel struct {
	ID         string    `gorm:"primaryKey"`
	TenantID   string    `gorm:"index:idx_agents_tenant;not null"`
	Name       string    `gorm:"not null"`
	Channel    string    `gorm:"uniqueIndex:idx_agents_channel_identifier,priority:1;not null"`
	Identifier string    `gorm:"uniqueIndex:idx_agents_channel_identifier,priority:2;not null"`
	IsAI       bool      `gorm:"column:is_ai;default:false"`
	IsActive   bool      `gorm:"default:true"`
	Settings   string    `gorm:"type:text;default:'{}'"` // JSON
	Metadata   string    `gorm:"type:text;default:'{}'"` // JSON
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (agentModel) TableName() string {
	return "agents"
}

// --- Repository Implementation ---

type AgentGormRepository struct {
	db *gorm.DB
}

func NewAgentGormRepository(db *gorm.DB) *AgentGormRepository {
	return &AgentGormRepository{db: db}
}

func (r *AgentGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&agentModel{})
}

func (r *AgentGormRepository) Create(ctx context.Context, agent *crm.Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	now := time.Now()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	model, err := toAgentModel(agent)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if isDuplicateErr(result.Error) {
			return crm.ErrDuplicateAgent
		}
		return result.Error
	}
	return nil
}

func (r *AgentGormRepository) GetByID(ctx context.Context, id string) (*crm.Agent, error) {
	var m agentModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrAgentNotFound
		}
		return nil, err
	}
	return fromAgentModel(m)
}

// GetByChannelIdentifier resuelve el agente destino de un webhook. Para
// WhatsApp reintenta con el número normalizado porque el gateway a veces
// manda "+62..." o el id con sufijo "@c.us".
func (r *AgentGormRepository) GetByChannelIdentifier(ctx context.Context, channel crm.Channel, identifier string) (*crm.Agent, error) {
	var m agentModel
	err := r.db.WithContext(ctx).Where("channel = ? AND identifier = ?", string(channel), identifier).First(&m).Error
	if err == gorm.ErrRecordNotFound && channel == crm.ChannelWhatsApp {
		normalized := identifier
		utils.SanitizePhone(&normalized)
		normalized = utils.NormalizePhone(normalized)
		if normalized != identifier && normalized != "" {
			err = r.db.WithContext(ctx).Where("channel = ? AND identifier = ?", string(channel), normalized).First(&m).Error
		}
	}
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrAgentNotFound
		}
		return nil, err
	}
	return fromAgentModel(m)
}

func (r *AgentGormRepository) ListByTenant(ctx context.Context, tenantID string) ([]*crm.Agent, error) {
	var models []agentModel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	agents := make([]*crm.Agent, len(models))
	for i, m := range models {
		a, err := fromAgentModel(m)
		if err != nil {
			return nil, err
		}
		agents[i] = a
	}
	return agents, nil
}

func (r *AgentGormRepository) Update(ctx context.Context, agent *crm.Agent) error {
	agent.UpdatedAt = time.Now()
	model, err := toAgentModel(agent)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&agentModel{ID: agent.ID}).Select("*").Updates(&model)
	if result.Error != nil {
		if isDuplicateErr(result.Error) {
			return crm.ErrDuplicateAgent
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrAgentNotFound
	}
	return nil
}

func (r *AgentGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&agentModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrAgentNotFound
	}
	return nil
}

// --- Mappers ---

func toAgentModel(a *crm.Agent) (agentModel, error) {
	settingsJSON, err := json.Marshal(a.Settings)
	if err != nil {
		return agentModel{}, fmt.Errorf("marshal agent settings: %w", err)
	}

	meta := a.Meta
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return agentModel{}, fmt.Errorf("marshal agent metadata: %w", err)
	}

	return agentModel{
		ID:         a.ID,
		TenantID:   a.TenantID,
		Name:       a.Name,
		Channel:    string(a.Channel),
		Identifier: a.Identifier,
		IsAI:       a.IsAI,
		IsActive:   a.IsActive,
		Settings:   string(settingsJSON),
		Metadata:   string(metaJSON),
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}, nil
}

func fromAgentModel(m agentModel) (*crm.Agent, error) {
	var settings crm.AgentSettings
	if m.Settings != "" {
		if err := json.Unmarshal([]byte(m.Settings), &settings); err != nil {
			return nil, fmt.Errorf("unmarshal agent settings: %w", err)
		}
	}

	meta := crm.Meta{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal agent metadata: %w", err)
		}
	}

	return &crm.Agent{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Name:       m.Name,
		Channel:    crm.Channel(m.Channel),
		Identifier: m.Identifier,
		IsAI:       m.IsAI,
		IsActive:   m.IsActive,
		Settings:   settings,
		Meta:       meta,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
