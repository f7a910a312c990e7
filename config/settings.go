package config

import (
	"os"
	"strconv"
	"strings"
)

var (
	AppVersion             = "v1.0.0"
	AppPort                = "3000"
	AppDebug               = false
	AppBasicAuthCredential []string
	AppBasePath            = ""
	AppTrustedProxies      []string // Trusted proxy IP ranges (e.g., "0.0.0.0/0" for all, or specific CIDRs)

	McpPort = "8080"
	McpHost = "localhost"

	PathStatics  = "statics"
	PathUploads  = "statics/uploads"
	PathStorages = "storages"

	DBURI = "file:storages/crm.db?_foreign_keys=on"

	// AIGlobalPrompt is prepended to every agent persona. The persisted
	// value lives in the global_settings table and overwrites these at
	// boot; the env vars only seed fresh installs.
	AIGlobalPrompt    string
	AIDefaultTimezone string

	RouterLockTTLSeconds     int = 20
	RouterLockMaxWaitSeconds int = 5
	RouterDebounceSeconds    int = 5
	RouterWorkerTTLSeconds   int = 60

	// Message Worker Pool settings
	MessageWorkerPoolSize  int = 6
	MessageWorkerQueueSize int = 250

	// Security
	AppSecretKey string = "changeme_please_change_me_in_prod_12345"
)

func init() {
	if v := strings.TrimSpace(os.Getenv("AI_GLOBAL_PROMPT")); v != "" {
		AIGlobalPrompt = v
	}
	if v := strings.TrimSpace(os.Getenv("AI_DEFAULT_TIMEZONE")); v != "" {
		AIDefaultTimezone = v
	}

	if v := strings.TrimSpace(os.Getenv("ROUTER_LOCK_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			RouterLockTTLSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ROUTER_LOCK_MAX_WAIT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			RouterLockMaxWaitSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ROUTER_DEBOUNCE_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			RouterDebounceSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ROUTER_WORKER_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			RouterWorkerTTLSeconds = n
		}
	}

	if val := os.Getenv("MESSAGE_WORKER_POOL_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			MessageWorkerPoolSize = parsed
		}
	}
	if val := os.Getenv("MESSAGE_WORKER_QUEUE_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			MessageWorkerQueueSize = parsed
		}
	}

	if val := os.Getenv("APP_SECRET_KEY"); val != "" {
		AppSecretKey = val
	}
}

func SetAIGlobalPrompt(v string) {
	AIGlobalPrompt = strings.TrimSpace(v)
}

func SetAIDefaultTimezone(v string) {
	AIDefaultTimezone = strings.TrimSpace(v)
}
