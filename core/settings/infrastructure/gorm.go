package infrastructure

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AzielCF/az-crm/core/settings/domain"
)

type globalSettingModel struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (globalSettingModel) TableName() string {
	return "global_settings"
}

type GlobalSettingsGormRepository struct {
	db *gorm.DB
}

func NewGlobalSettingsGormRepository(db *gorm.DB) *GlobalSettingsGormRepository {
	return &GlobalSettingsGormRepository{db: db}
}

func (r *GlobalSettingsGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&globalSettingModel{})
}

func (r *GlobalSettingsGormRepository) Get(ctx context.Context, key string) (string, error) {
	var m globalSettingModel
	if err := r.db.WithContext(ctx).First(&m, "key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(m.Value), nil
}

func (r *GlobalSettingsGormRepository) Set(ctx context.Context, key string, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": value}),
	}).Create(&globalSettingModel{
		Key:   key,
		Value: value,
	}).Error
}

func (r *GlobalSettingsGormRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Delete(&globalSettingModel{}, "key = ?", key).Error
}

func (r *GlobalSettingsGormRepository) GetAll(ctx context.Context) ([]domain.Setting, error) {
	var models []globalSettingModel
	if err := r.db.WithContext(ctx).Order("key asc").Find(&models).Error; err != nil {
		return nil, err
	}
	settings := make([]domain.Setting, 0, len(models))
	for _, m := range models {
		settings = append(settings, domain.Setting{Key: m.Key, Value: strings.TrimSpace(m.Value)})
	}
	return settings, nil
}
