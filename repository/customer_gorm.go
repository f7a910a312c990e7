package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type customerModel struct {
	ID         string     `gorm:"primaryKey"`
	TenantID   string     `gorm:"index:idx_customers_tenant;not null"`
	Name       string     `gorm:"index:idx_customers_name"`
	Phone      string     `gorm:"index:idx_customers_phone"`
	Email      string     `gorm:"index:idx_customers_email"`
	TelegramID string     `gorm:"index:idx_customers_telegram"`
	Tags       string     `gorm:"type:text;default:'[]'"` // JSON
	Metadata   string     `gorm:"type:text;default:'{}'"` // JSON
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time  `gorm:"not null"`
}

func (customerModel) TableName() string {
	return "customers"
}

// --- Repository Implementation ---

type CustomerGormRepository struct {
	db *gorm.DB
}

func NewCustomerGormRepository(db *gorm.DB) *CustomerGormRepository {
	return &CustomerGormRepository{db: db}
}

func (r *CustomerGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&customerModel{})
}

// UpsertByChannel localiza al cliente por su identidad normalizada de canal
// y lo crea si no existe. Los nombres vacíos o "Unknown" se actualizan de
// forma oportunista cuando el canal trae uno mejor.
func (r *CustomerGormRepository) UpsertByChannel(ctx context.Context, tenantID string, channel crm.Channel, identifier, name string) (*crm.Customer, bool, error) {
	column, value, err := channelIdentity(channel, identifier)
	if err != nil {
		return nil, false, err
	}

	name = strings.TrimSpace(name)

	var m customerModel
	findErr := r.db.WithContext(ctx).
		Where("tenant_id = ? AND "+column+" = ?", tenantID, value).
		Order("created_at ASC").
		First(&m).Error

	if findErr == nil {
		if shouldReplaceName(m.Name, name) {
			update := r.db.WithContext(ctx).Model(&customerModel{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
				"name":       name,
				"updated_at": time.Now(),
			})
			if update.Error != nil {
				return nil, false, update.Error
			}
			m.Name = name
		}
		customer, err := fromCustomerModel(m)
		return customer, false, err
	}
	if findErr != gorm.ErrRecordNotFound {
		return nil, false, findErr
	}

	if name == "" {
		name = "Unknown"
	}
	now := time.Now()
	customer := &crm.Customer{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Tags:      []string{},
		Meta:      crm.Meta{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch column {
	case "phone":
		customer.Phone = value
	case "email":
		customer.Email = value
	case "telegram_id":
		customer.TelegramID = value
	}

	model, err := toCustomerModel(customer)
	if err != nil {
		return nil, false, err
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, false, err
	}
	return customer, true, nil
}

func (r *CustomerGormRepository) GetByID(ctx context.Context, id string) (*crm.Customer, error) {
	var m customerModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrCustomerNotFound
		}
		return nil, err
	}
	return fromCustomerModel(m)
}

func (r *CustomerGormRepository) List(ctx context.Context, tenantID string, search string, limit, offset int) ([]*crm.Customer, error) {
	var models []customerModel
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR phone LIKE ? OR email LIKE ?", pattern, pattern, pattern)
	}

	query = query.Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	customers := make([]*crm.Customer, len(models))
	for i, m := range models {
		c, err := fromCustomerModel(m)
		if err != nil {
			return nil, err
		}
		customers[i] = c
	}
	return customers, nil
}

func (r *CustomerGormRepository) Update(ctx context.Context, customer *crm.Customer) error {
	customer.UpdatedAt = time.Now()
	model, err := toCustomerModel(customer)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&customerModel{ID: customer.ID}).Select("*").Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrCustomerNotFound
	}
	return nil
}

func (r *CustomerGormRepository) UpdateMeta(ctx context.Context, id string, meta crm.Meta) error {
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal customer metadata: %w", err)
	}

	result := r.db.WithContext(ctx).Model(&customerModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"metadata":     string(metaJSON),
		"last_seen_at": time.Now(),
		"updated_at":   time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrCustomerNotFound
	}
	return nil
}

func (r *CustomerGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&customerModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrCustomerNotFound
	}
	return nil
}

// --- Helpers ---

// channelIdentity normaliza el identificador entrante y devuelve la columna
// donde vive esa identidad: whatsapp usa el teléfono en dígitos con código
// de país, telegram el id numérico tal cual, email en minúsculas.
func channelIdentity(channel crm.Channel, identifier string) (column, value string, err error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.EqualFold(identifier, "none") {
		return "", "", crm.ErrInvalidContact
	}

	switch channel {
	case crm.ChannelWhatsApp:
		utils.SanitizePhone(&identifier)
		normalized := utils.NormalizePhone(identifier)
		if normalized == "" {
			return "", "", crm.ErrInvalidContact
		}
		return "phone", normalized, nil
	case crm.ChannelTelegram:
		return "telegram_id", identifier, nil
	case crm.ChannelEmail:
		return "email", strings.ToLower(identifier), nil
	}
	return "", "", fmt.Errorf("channel %s has no customer identity column", channel)
}

func shouldReplaceName(current, incoming string) bool {
	if incoming == "" || incoming == "Unknown" {
		return false
	}
	return current == "" || current == "Unknown"
}

// --- Mappers ---

func toCustomerModel(c *crm.Customer) (customerModel, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return customerModel{}, fmt.Errorf("marshal customer tags: %w", err)
	}

	meta := c.Meta
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return customerModel{}, fmt.Errorf("marshal customer metadata: %w", err)
	}

	return customerModel{
		ID:         c.ID,
		TenantID:   c.TenantID,
		Name:       c.Name,
		Phone:      c.Phone,
		Email:      c.Email,
		TelegramID: c.TelegramID,
		Tags:       string(tagsJSON),
		Metadata:   string(metaJSON),
		LastSeenAt: c.LastSeenAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}, nil
}

func fromCustomerModel(m customerModel) (*crm.Customer, error) {
	var tags []string
	if m.Tags != "" {
		if err := json.Unmarshal([]byte(m.Tags), &tags); err != nil {
			return nil, fmt.Errorf("unmarshal customer tags: %w", err)
		}
	}
	if tags == nil {
		tags = []string{}
	}

	meta := crm.Meta{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal customer metadata: %w", err)
		}
	}

	return &crm.Customer{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Name:       m.Name,
		Phone:      m.Phone,
		Email:      m.Email,
		TelegramID: m.TelegramID,
		Tags:       tags,
		Meta:       meta,
		LastSeenAt: m.LastSeenAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
