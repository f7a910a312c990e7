package rest

import (
	globalConfig "github.com/AzielCF/az-crm/config"
	coreconfig "github.com/AzielCF/az-crm/core/config"
	settingsApp "github.com/AzielCF/az-crm/core/settings/application"
	"github.com/AzielCF/az-crm/pkg/mediacache"
	"github.com/AzielCF/az-crm/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Settings struct {
	Service *settingsApp.SettingsService
}

func InitRestSettings(app fiber.Router, service *settingsApp.SettingsService) Settings {
	rest := Settings{Service: service}
	app.Get("/settings", rest.Get)
	app.Patch("/settings", rest.Update)
	app.Get("/settings/cache", rest.CacheUsage)
	app.Delete("/settings/cache", rest.ClearTenantCache)
	return rest
}

func (handler *Settings) Get(c *fiber.Ctx) error {
	ds, err := handler.Service.GetDynamicSettings(c.UserContext())
	if err != nil {
		return settingsFailure(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings fetched",
		Results: settingsPayload(ds),
	})
}

// Update persiste los campos presentes en el body. El prompt global y la zona
// horaria aplican al instante; el debounce, el historial y la limpieza de
// caché quedan fijados en los servicios al arrancar y rigen tras reiniciar.
func (handler *Settings) Update(c *fiber.Ctx) error {
	var request struct {
		AIGlobalPrompt       *string `json:"ai_global_prompt"`
		AIDefaultTimezone    *string `json:"ai_default_timezone"`
		DebounceSeconds      *int    `json:"debounce_seconds"`
		HistoryLimit         *int    `json:"history_limit"`
		CacheEnabled         *bool   `json:"cache_enabled"`
		CacheMaxAgeDays      *int    `json:"cache_max_age_days"`
		CacheMaxSizeMB       *int64  `json:"cache_max_size_mb"`
		CacheCleanupInterval *int    `json:"cache_cleanup_interval"`
	}
	if err := c.BodyParser(&request); err != nil {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
	}

	ctx := c.UserContext()
	if request.AIGlobalPrompt != nil {
		if err := handler.Service.SetGlobalPrompt(ctx, *request.AIGlobalPrompt); err != nil {
			return settingsFailure(c, err)
		}
		globalConfig.SetAIGlobalPrompt(*request.AIGlobalPrompt)
	}
	if request.AIDefaultTimezone != nil {
		if err := handler.Service.SetDefaultTimezone(ctx, *request.AIDefaultTimezone); err != nil {
			return settingsFailure(c, err)
		}
		globalConfig.SetAIDefaultTimezone(*request.AIDefaultTimezone)
	}
	if request.DebounceSeconds != nil {
		if err := handler.Service.SetDebounceSeconds(ctx, *request.DebounceSeconds); err != nil {
			return settingsFailure(c, err)
		}
		globalConfig.RouterDebounceSeconds = *request.DebounceSeconds
		if coreconfig.Global != nil {
			coreconfig.Global.Router.DebounceSeconds = *request.DebounceSeconds
		}
	}
	if request.HistoryLimit != nil {
		if err := handler.Service.SetHistoryLimit(ctx, *request.HistoryLimit); err != nil {
			return settingsFailure(c, err)
		}
		if coreconfig.Global != nil {
			coreconfig.Global.Pipeline.HistoryLimit = *request.HistoryLimit
		}
	}
	if request.CacheEnabled != nil {
		if err := handler.Service.SetCacheEnabled(ctx, *request.CacheEnabled); err != nil {
			return settingsFailure(c, err)
		}
	}
	if request.CacheMaxAgeDays != nil {
		if err := handler.Service.SetCacheMaxAge(ctx, *request.CacheMaxAgeDays); err != nil {
			return settingsFailure(c, err)
		}
	}
	if request.CacheMaxSizeMB != nil {
		if err := handler.Service.SetCacheMaxSize(ctx, *request.CacheMaxSizeMB); err != nil {
			return settingsFailure(c, err)
		}
	}
	if request.CacheCleanupInterval != nil {
		if err := handler.Service.SetCacheCleanupInterval(ctx, *request.CacheCleanupInterval); err != nil {
			return settingsFailure(c, err)
		}
	}

	ds, err := handler.Service.GetDynamicSettings(ctx)
	if err != nil {
		return settingsFailure(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Settings updated",
		Results: settingsPayload(ds),
	})
}

func (handler *Settings) CacheUsage(c *fiber.Ctx) error {
	global, err := mediacache.GlobalStats()
	if err != nil {
		return settingsFailure(c, err)
	}

	response := map[string]any{"global": global}
	tenantID := c.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = c.Query("tenant_id")
	}
	if tenantID != "" {
		tenant, err := mediacache.TenantStats(tenantID)
		if err != nil {
			return settingsFailure(c, err)
		}
		response["tenant"] = tenant
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Cache usage fetched",
		Results: response,
	})
}

func (handler *Settings) ClearTenantCache(c *fiber.Ctx) error {
	tenantID := tenantIDFrom(c)
	if err := mediacache.ClearTenant(tenantID); err != nil {
		return settingsFailure(c, err)
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Tenant cache cleared",
	})
}

func settingsFailure(c *fiber.Ctx, err error) error {
	return c.Status(500).JSON(utils.ResponseData{
		Status:  500,
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	})
}

// settingsPayload mezcla lo persistido con los valores efectivos en memoria
// para que el panel muestre siempre lo que el proceso está usando.
func settingsPayload(ds *settingsApp.DynamicSettings) map[string]any {
	debounce := globalConfig.RouterDebounceSeconds
	if ds.DebounceSeconds != nil {
		debounce = *ds.DebounceSeconds
	}

	history := 0
	if coreconfig.Global != nil {
		history = coreconfig.Global.Pipeline.HistoryLimit
	}
	if ds.HistoryLimit != nil {
		history = *ds.HistoryLimit
	}

	cacheEnabled := true
	if ds.CacheEnabled != nil {
		cacheEnabled = *ds.CacheEnabled
	}
	maxAgeDays := mediacache.DefaultMaxAgeDays
	if ds.CacheMaxAgeDays != nil {
		maxAgeDays = *ds.CacheMaxAgeDays
	}
	maxSizeMB := int64(mediacache.DefaultMaxSizeMB)
	if ds.CacheMaxSizeMB != nil {
		maxSizeMB = *ds.CacheMaxSizeMB
	}
	cleanupMinutes := mediacache.DefaultCleanupMinutes
	if ds.CacheCleanupInterval != nil {
		cleanupMinutes = *ds.CacheCleanupInterval
	}

	return map[string]any{
		"ai_global_prompt":       globalConfig.AIGlobalPrompt,
		"ai_default_timezone":    globalConfig.AIDefaultTimezone,
		"debounce_seconds":       debounce,
		"history_limit":          history,
		"cache_enabled":          cacheEnabled,
		"cache_max_age_days":     maxAgeDays,
		"cache_max_size_mb":      maxSizeMB,
		"cache_cleanup_interval": cleanupMinutes,
	}
}
