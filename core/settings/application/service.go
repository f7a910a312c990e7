package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/AzielCF/az-crm/core/settings/domain"
	"github.com/AzielCF/az-crm/core/settings/infrastructure"
	"gorm.io/gorm"
)

type SettingsService struct {
	repo domain.ISettingsRepository
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{
		repo: infrastructure.NewGlobalSettingsGormRepository(db),
	}
}

type DynamicSettings struct {
	AIGlobalPrompt       string
	AIDefaultTimezone    string
	DebounceSeconds      *int
	HistoryLimit         *int
	CacheEnabled         *bool
	CacheMaxAgeDays      *int
	CacheMaxSizeMB       *int64
	CacheCleanupInterval *int
}

func (s *SettingsService) GetDynamicSettings(ctx context.Context) (*DynamicSettings, error) {
	if err := s.repo.InitSchema(ctx); err != nil {
		return nil, err
	}

	ds := &DynamicSettings{}

	if val, _ := s.repo.Get(ctx, domain.KeyAIGlobalPrompt); val != "" {
		ds.AIGlobalPrompt = val
	}
	if val, _ := s.repo.Get(ctx, domain.KeyAIDefaultTimezone); val != "" {
		ds.AIDefaultTimezone = val
	}
	if val, _ := s.repo.Get(ctx, domain.KeyDebounceSeconds); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			ds.DebounceSeconds = &n
		}
	}
	if val, _ := s.repo.Get(ctx, domain.KeyHistoryLimit); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			ds.HistoryLimit = &n
		}
	}
	if val, _ := s.repo.Get(ctx, domain.KeyCacheEnabled); val != "" {
		vLower := strings.ToLower(val)
		isOn := vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
		ds.CacheEnabled = &isOn
	}
	if val, _ := s.repo.Get(ctx, domain.KeyCacheMaxAgeDays); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			ds.CacheMaxAgeDays = &n
		}
	}
	if val, _ := s.repo.Get(ctx, domain.KeyCacheMaxSizeMB); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n >= 0 {
			ds.CacheMaxSizeMB = &n
		}
	}
	if val, _ := s.repo.Get(ctx, domain.KeyCacheCleanupInterval); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			ds.CacheCleanupInterval = &n
		}
	}
	return ds, nil
}

func (s *SettingsService) SetGlobalPrompt(ctx context.Context, v string) error {
	return s.repo.Set(ctx, domain.KeyAIGlobalPrompt, strings.TrimSpace(v))
}

func (s *SettingsService) SetDefaultTimezone(ctx context.Context, v string) error {
	return s.repo.Set(ctx, domain.KeyAIDefaultTimezone, strings.TrimSpace(v))
}

func (s *SettingsService) SetDebounceSeconds(ctx context.Context, v int) error {
	if v < 0 {
		v = 0
	}
	return s.repo.Set(ctx, domain.KeyDebounceSeconds, fmt.Sprintf("%d", v))
}

func (s *SettingsService) SetHistoryLimit(ctx context.Context, v int) error {
	if v < 1 {
		v = 1
	}
	return s.repo.Set(ctx, domain.KeyHistoryLimit, fmt.Sprintf("%d", v))
}

func (s *SettingsService) SetCacheEnabled(ctx context.Context, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return s.repo.Set(ctx, domain.KeyCacheEnabled, val)
}

func (s *SettingsService) SetCacheMaxAge(ctx context.Context, v int) error {
	if v < 0 {
		v = 0
	}
	return s.repo.Set(ctx, domain.KeyCacheMaxAgeDays, fmt.Sprintf("%d", v))
}

func (s *SettingsService) SetCacheMaxSize(ctx context.Context, v int64) error {
	if v < 0 {
		v = 0
	}
	return s.repo.Set(ctx, domain.KeyCacheMaxSizeMB, fmt.Sprintf("%d", v))
}

func (s *SettingsService) SetCacheCleanupInterval(ctx context.Context, v int) error {
	if v < 0 {
		v = 0
	}
	return s.repo.Set(ctx, domain.KeyCacheCleanupInterval, fmt.Sprintf("%d", v))
}
