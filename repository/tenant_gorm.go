package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type tenantModel struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	Slug      string    `gorm:"uniqueIndex:idx_tenants_slug;not null"`
	Plan      string    `gorm:"default:'free'"`
	Credits   float64   `gorm:"default:0"`
	IsActive  bool      `gorm:"default:true"`
	Metadata  string    `gorm:"type:text;default:'{}'"` // JSON
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (tenantModel) TableName() string {
	return "tenants"
}

// --- Repository Implementation ---

type TenantGormRepository struct {
	db *gorm.DB
}

func NewTenantGormRepository(db *gorm.DB) *TenantGormRepository {
	return &TenantGormRepository{db: db}
}

func (r *TenantGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&tenantModel{})
}

func (r *TenantGormRepository) Create(ctx context.Context, tenant *crm.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := time.Now()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now

	model, err := toTenantModel(tenant)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		if isDuplicateErr(result.Error) {
			return crm.ErrDuplicateTenant
		}
		return result.Error
	}
	return nil
}

func (r *TenantGormRepository) GetByID(ctx context.Context, id string) (*crm.Tenant, error) {
	var m tenantModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrTenantNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

func (r *TenantGormRepository) GetBySlug(ctx context.Context, slug string) (*crm.Tenant, error) {
	var m tenantModel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrTenantNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

func (r *TenantGormRepository) List(ctx context.Context) ([]*crm.Tenant, error) {
	var models []tenantModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	tenants := make([]*crm.Tenant, len(models))
	for i, m := range models {
		t, err := fromTenantModel(m)
		if err != nil {
			return nil, err
		}
		tenants[i] = t
	}
	return tenants, nil
}

func (r *TenantGormRepository) Update(ctx context.Context, tenant *crm.Tenant) error {
	tenant.UpdatedAt = time.Now()
	model, err := toTenantModel(tenant)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&tenantModel{ID: tenant.ID}).Select("*").Updates(&model)
	if result.Error != nil {
		if isDuplicateErr(result.Error) {
			return crm.ErrDuplicateTenant
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrTenantNotFound
	}
	return nil
}

func (r *TenantGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&tenantModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrTenantNotFound
	}
	return nil
}

// AddCredits aplica el delta en una sola sentencia para no pisar
// actualizaciones concurrentes del saldo.
func (r *TenantGormRepository) AddCredits(ctx context.Context, id string, delta float64) error {
	result := r.db.WithContext(ctx).Model(&tenantModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"credits":    gorm.Expr("credits + ?", delta),
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrTenantNotFound
	}
	return nil
}

// --- Mappers ---

func toTenantModel(t *crm.Tenant) (tenantModel, error) {
	meta := t.Meta
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return tenantModel{}, fmt.Errorf("marshal tenant metadata: %w", err)
	}

	return tenantModel{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		Plan:      t.Plan,
		Credits:   t.Credits,
		IsActive:  t.IsActive,
		Metadata:  string(metaJSON),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

func fromTenantModel(m tenantModel) (*crm.Tenant, error) {
	meta := crm.Meta{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal tenant metadata: %w", err)
		}
	}

	return &crm.Tenant{
		ID:        m.ID,
		Name:      m.Name,
		Slug:      m.Slug,
		Plan:      m.Plan,
		Credits:   m.Credits,
		IsActive:  m.IsActive,
		Meta:      meta,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// isDuplicateErr detecta violaciones de unicidad de sqlite y postgres
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
