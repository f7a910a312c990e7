package utils

import (
	"os"
	"path/filepath"

	coreconfig "github.com/AzielCF/az-crm/core/config"
)

// GetTenantStoragePath returns the on-disk folder for a tenant's files under
// the given subfolder (e.g. "knowledge", "media"), creating it if needed.
func GetTenantStoragePath(tenantID, subfolder string) string {
	path := filepath.Join(coreconfig.Global.Paths.Statics, "tenants", tenantID, subfolder)
	_ = os.MkdirAll(path, 0755)
	return path
}

// GetTenantCachePath returns the cache folder for a tenant.
func GetTenantCachePath(tenantID string) string {
	path := filepath.Join(coreconfig.Global.Paths.Statics, "cache", "tenants", tenantID)
	_ = os.MkdirAll(path, 0755)
	return path
}
