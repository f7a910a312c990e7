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

type messageModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"uniqueIndex:idx_messages_dedupe,priority:1;not null"`
	ChatID     string `gorm:"index:idx_messages_chat;not null"`
	CustomerID string
	SenderType string `gorm:"not null"`
	SenderID   string
	SenderName string
	Content    string `gorm:"type:text"`
	// NULL cuando el mensaje no vino de un canal externo: el índice único
	// solo deduplica webhooks, no mensajes generados internamente.
	ChannelMessageID *string `gorm:"uniqueIndex:idx_messages_dedupe,priority:2"`
	ContentType      string  `gorm:"default:'text'"`
	MediaURL         string
	Metadata         string    `gorm:"type:text;default:'{}'"` // JSON
	CreatedAt        time.Time `gorm:"index:idx_messages_created;not null"`
}

func (messageModel) TableName() string {
	return "messages"
}

// --- Repository Implementation ---

type MessageGormRepository struct {
	db *gorm.DB
}

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

// InsertOrMerge deduplica por (tenant, channel_message_id). Los gateways de
// canal reenvían webhooks ante timeouts, así que el mismo mensaje puede
// llegar dos veces: la segunda pasada solo fusiona metadatos, ganando los
// que ya estaban persistidos.
func (r *MessageGormRepository) InsertOrMerge(ctx context.Context, message *crm.Message) (bool, error) {
	if message.ChannelMessageID != "" {
		var existing messageModel
		err := r.db.WithContext(ctx).
			Where("tenant_id = ? AND channel_message_id = ?", message.TenantID, message.ChannelMessageID).
			First(&existing).Error
		if err == nil {
			return true, r.mergeInto(ctx, &existing, message)
		}
		if err != gorm.ErrRecordNotFound {
			return false, err
		}
	}

	if err := r.insert(ctx, message); err != nil {
		// Carrera entre webhooks duplicados: el otro insert ganó, fusionamos.
		if isDuplicateErr(err) && message.ChannelMessageID != "" {
			var existing messageModel
			if ferr := r.db.WithContext(ctx).
				Where("tenant_id = ? AND channel_message_id = ?", message.TenantID, message.ChannelMessageID).
				First(&existing).Error; ferr == nil {
				return true, r.mergeInto(ctx, &existing, message)
			}
		}
		return false, err
	}
	return false, nil
}

func (r *MessageGormRepository) Append(ctx context.Context, message *crm.Message) error {
	return r.insert(ctx, message)
}

func (r *MessageGormRepository) GetByID(ctx context.Context, id string) (*crm.Message, error) {
	var m messageModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrMessageNotFound
		}
		return nil, err
	}
	msg, err := fromMessageModel(m)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FetchHistory arma el contexto conversacional: trae el doble de filas en
// orden inverso, las vuelve cronológicas y descarta repeticiones
// consecutivas del mismo emisor con el mismo texto antes de cortar a limit.
func (r *MessageGormRepository) FetchHistory(ctx context.Context, chatID string, limit int) ([]crm.Message, error) {
	if limit <= 0 {
		return []crm.Message{}, nil
	}

	var models []messageModel
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit * 2).
		Find(&models).Error; err != nil {
		return nil, err
	}

	// Reverse: newest-first -> chronological
	for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
		models[i], models[j] = models[j], models[i]
	}

	out := make([]crm.Message, 0, len(models))
	for _, m := range models {
		msg, err := fromMessageModel(m)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].SenderType == msg.SenderType && out[n-1].Content == msg.Content {
			continue
		}
		out = append(out, msg)
	}

	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *MessageGormRepository) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]crm.Message, error) {
	var models []messageModel
	query := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	messages := make([]crm.Message, len(models))
	for i, m := range models {
		msg, err := fromMessageModel(m)
		if err != nil {
			return nil, err
		}
		messages[i] = msg
	}
	return messages, nil
}

// --- Internals ---

func (r *MessageGormRepository) insert(ctx context.Context, message *crm.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if message.ContentType == "" {
		message.ContentType = "text"
	}

	model, err := toMessageModel(message)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// mergeInto conserva la fila existente y copia sus datos canónicos de vuelta
// al mensaje entrante, fusionando metadatos con prioridad para lo persistido.
// Un reintento puede rellenar contenido que llegó vacío la primera vez.
func (r *MessageGormRepository) mergeInto(ctx context.Context, existing *messageModel, incoming *crm.Message) error {
	stored, err := fromMessageModel(*existing)
	if err != nil {
		return err
	}

	merged := incoming.Meta.Clone().Merge(stored.Meta)
	metaJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal merged metadata: %w", err)
	}

	updates := map[string]interface{}{"metadata": string(metaJSON)}
	if stored.Content == "" && incoming.Content != "" {
		updates["content"] = incoming.Content
		stored.Content = incoming.Content
	}

	if err := r.db.WithContext(ctx).Model(&messageModel{}).Where("id = ?", existing.ID).
		Updates(updates).Error; err != nil {
		return err
	}

	stored.Meta = merged
	*incoming = stored
	return nil
}

// --- Mappers ---

func toMessageModel(m *crm.Message) (messageModel, error) {
	meta := m.Meta
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return messageModel{}, fmt.Errorf("marshal message metadata: %w", err)
	}

	model := messageModel{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ChatID:      m.ChatID,
		CustomerID:  m.CustomerID,
		SenderType:  string(m.SenderType),
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Content:     m.Content,
		ContentType: m.ContentType,
		MediaURL:    m.MediaURL,
		Metadata:    string(metaJSON),
		CreatedAt:   m.CreatedAt,
	}
	if m.ChannelMessageID != "" {
		id := m.ChannelMessageID
		model.ChannelMessageID = &id
	}
	return model, nil
}

func fromMessageModel(m messageModel) (crm.Message, error) {
	meta := crm.Meta{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return crm.Message{}, fmt.Errorf("unmarshal message metadata: %w", err)
		}
	}

	msg := crm.Message{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ChatID:      m.ChatID,
		CustomerID:  m.CustomerID,
		SenderType:  crm.SenderType(m.SenderType),
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Content:     m.Content,
		ContentType: m.ContentType,
		MediaURL:    m.MediaURL,
		Meta:        meta,
		CreatedAt:   m.CreatedAt,
	}
	if m.ChannelMessageID != nil {
		msg.ChannelMessageID = *m.ChannelMessageID
	}
	return msg, nil
}
