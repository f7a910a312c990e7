package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-crm/domains/health"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type healthCheckModel struct {
	ID          string `gorm:"primaryKey"`
	EntityType  string `gorm:"uniqueIndex:idx_health_entity,priority:1;not null"`
	EntityID    string `gorm:"uniqueIndex:idx_health_entity,priority:2;not null"`
	Status      string `gorm:"not null"`
	LastMessage string
	LastChecked time.Time `gorm:"not null"`
	LastSuccess *time.Time
}

func (healthCheckModel) TableName() string {
	return "health_checks"
}

// --- Repository Implementation ---

type HealthGormRepository struct {
	db *gorm.DB
}

func NewHealthGormRepository(db *gorm.DB) *HealthGormRepository {
	return &HealthGormRepository{db: db}
}

func (r *HealthGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&healthCheckModel{})
}

// Upsert reemplaza el estado de (entity_type, entity_id). Un resultado OK
// sella last_success; un fallo lo conserva para poder responder "desde
// cuándo" está caída una dependencia.
func (r *HealthGormRepository) Upsert(ctx context.Context, record *health.HealthRecord) error {
	now := time.Now()
	record.LastChecked = now

	var m healthCheckModel
	findErr := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", string(record.EntityType), record.EntityID).
		First(&m).Error

	if findErr == nil {
		record.ID = m.ID
		record.LastSuccess = m.LastSuccess
		if record.Status == health.StatusOk {
			record.LastSuccess = &now
		}
		return r.db.WithContext(ctx).Model(&healthCheckModel{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
			"status":       string(record.Status),
			"last_message": record.LastMessage,
			"last_checked": now,
			"last_success": record.LastSuccess,
		}).Error
	}
	if findErr != gorm.ErrRecordNotFound {
		return findErr
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == health.StatusOk {
		record.LastSuccess = &now
	}
	return r.db.WithContext(ctx).Create(&healthCheckModel{
		ID:          record.ID,
		EntityType:  string(record.EntityType),
		EntityID:    record.EntityID,
		Status:      string(record.Status),
		LastMessage: record.LastMessage,
		LastChecked: now,
		LastSuccess: record.LastSuccess,
	}).Error
}

func (r *HealthGormRepository) List(ctx context.Context) ([]health.HealthRecord, error) {
	var models []healthCheckModel
	if err := r.db.WithContext(ctx).Order("entity_type ASC, entity_id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]health.HealthRecord, 0, len(models))
	for _, m := range models {
		records = append(records, fromHealthModel(m))
	}
	return records, nil
}

func (r *HealthGormRepository) Get(ctx context.Context, entityType health.EntityType, entityID string) (*health.HealthRecord, error) {
	var m healthCheckModel
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	record := fromHealthModel(m)
	return &record, nil
}

func fromHealthModel(m healthCheckModel) health.HealthRecord {
	return health.HealthRecord{
		ID:          m.ID,
		EntityType:  health.EntityType(m.EntityType),
		EntityID:    m.EntityID,
		Status:      health.Status(m.Status),
		LastMessage: m.LastMessage,
		LastChecked: m.LastChecked,
		LastSuccess: m.LastSuccess,
	}
}
