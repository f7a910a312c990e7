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

type chatModel struct {
	ID            string `gorm:"primaryKey"`
	TenantID      string `gorm:"index:idx_chats_routing,priority:1;not null"`
	CustomerID    string `gorm:"index:idx_chats_customer;not null"`
	AgentID       string `gorm:"index:idx_chats_agent"`
	Channel       string `gorm:"index:idx_chats_routing,priority:2;not null"`
	ChannelChatID string `gorm:"index:idx_chats_routing,priority:3;not null"`
	Status        string `gorm:"index:idx_chats_status;default:'open'"`
	HandledBy     string `gorm:"default:'ai'"`
	AssignedTo    string `gorm:"index:idx_chats_assigned"`
	IsGroup       bool   `gorm:"default:false"`
	GroupSubject  string
	LastMessageAt time.Time `gorm:"index:idx_chats_last_message"`
	Metadata      string    `gorm:"type:text;default:'{}'"` // JSON
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (chatModel) TableName() string {
	return "chats"
}

// --- Repository Implementation ---

type ChatGormRepository struct {
	db *gorm.DB
}

func NewChatGormRepository(db *gorm.DB) *ChatGormRepository {
	return &ChatGormRepository{db: db}
}

func (r *ChatGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&chatModel{})
}

func (r *ChatGormRepository) Create(ctx context.Context, chat *crm.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	now := time.Now()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	if chat.LastMessageAt.IsZero() {
		chat.LastMessageAt = now
	}

	model, err := toChatModel(chat)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ChatGormRepository) GetByID(ctx context.Context, id string) (*crm.Chat, error) {
	var m chatModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrChatNotFound
		}
		return nil, err
	}
	return fromChatModel(m)
}

// FindActive busca la conversación enrutable más reciente del canal. Las
// resolved siguen siendo enrutables: un mensaje nuevo las reabre en lugar
// de duplicar el hilo.
func (r *ChatGormRepository) FindActive(ctx context.Context, tenantID string, channel crm.Channel, channelChatID string) (*crm.Chat, error) {
	var m chatModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel = ? AND channel_chat_id = ?", tenantID, string(channel), channelChatID).
		Where("status IN ?", []string{string(crm.ChatOpen), string(crm.ChatAssigned), string(crm.ChatResolved)}).
		Order("last_message_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrChatNotFound
		}
		return nil, err
	}
	return fromChatModel(m)
}

func (r *ChatGormRepository) List(ctx context.Context, tenantID string, filter crm.ChatFilter) ([]*crm.Chat, error) {
	var models []chatModel
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Channel != nil {
		query = query.Where("channel = ?", string(*filter.Channel))
	}
	if filter.HandledBy != nil {
		query = query.Where("handled_by = ?", string(*filter.HandledBy))
	}
	if filter.AgentID != "" {
		query = query.Where("agent_id = ?", filter.AgentID)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("channel_chat_id LIKE ? OR group_subject LIKE ?", pattern, pattern)
	}

	query = query.Order("last_message_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	chats := make([]*crm.Chat, len(models))
	for i, m := range models {
		c, err := fromChatModel(m)
		if err != nil {
			return nil, err
		}
		chats[i] = c
	}
	return chats, nil
}

func (r *ChatGormRepository) Update(ctx context.Context, chat *crm.Chat) error {
	chat.UpdatedAt = time.Now()
	model, err := toChatModel(chat)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&chatModel{ID: chat.ID}).Select("*").Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrChatNotFound
	}
	return nil
}

func (r *ChatGormRepository) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&chatModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_message_at": at,
		"updated_at":      time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrChatNotFound
	}
	return nil
}

func (r *ChatGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&chatModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrChatNotFound
	}
	return nil
}

// --- Mappers ---

func toChatModel(c *crm.Chat) (chatModel, error) {
	meta := c.Meta
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return chatModel{}, fmt.Errorf("marshal chat metadata: %w", err)
	}

	return chatModel{
		ID:            c.ID,
		TenantID:      c.TenantID,
		CustomerID:    c.CustomerID,
		AgentID:       c.AgentID,
		Channel:       string(c.Channel),
		ChannelChatID: c.ChannelChatID,
		Status:        string(c.Status),
		HandledBy:     string(c.HandledBy),
		AssignedTo:    c.AssignedTo,
		IsGroup:       c.IsGroup,
		GroupSubject:  c.GroupSubject,
		LastMessageAt: c.LastMessageAt,
		Metadata:      string(metaJSON),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}, nil
}

func fromChatModel(m chatModel) (*crm.Chat, error) {
	meta := crm.Meta{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal chat metadata: %w", err)
		}
	}

	return &crm.Chat{
		ID:            m.ID,
		TenantID:      m.TenantID,
		CustomerID:    m.CustomerID,
		AgentID:       m.AgentID,
		Channel:       crm.Channel(m.Channel),
		ChannelChatID: m.ChannelChatID,
		Status:        crm.ChatStatus(m.Status),
		HandledBy:     crm.HandledBy(m.HandledBy),
		AssignedTo:    m.AssignedTo,
		IsGroup:       m.IsGroup,
		GroupSubject:  m.GroupSubject,
		LastMessageAt: m.LastMessageAt,
		Meta:          meta,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}
