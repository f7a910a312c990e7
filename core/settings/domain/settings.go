package domain

import "context"

// Setting represents a dynamic configuration value stored in the database.
type Setting struct {
	Key   string
	Value string
}

// ISettingsRepository defines the contract for persisting dynamic settings.
type ISettingsRepository interface {
	// Basic CRUD
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) ([]Setting, error)

	// InitSchema creates the necessary tables
	InitSchema(ctx context.Context) error
}

// Common Keys defined in the system
const (
	KeyAIGlobalPrompt       = "ai_global_prompt"
	KeyAIDefaultTimezone    = "ai_default_timezone"
	KeyDebounceSeconds      = "router_debounce_seconds"
	KeyHistoryLimit         = "pipeline_history_limit"
	KeyCacheEnabled         = "cache_enabled"
	KeyCacheMaxAgeDays      = "cache_max_age_days"
	KeyCacheMaxSizeMB       = "cache_max_size_mb"
	KeyCacheCleanupInterval = "cache_cleanup_interval"
)
