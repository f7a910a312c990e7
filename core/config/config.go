package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	MCP        MCPConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	LLM        LLMConfig
	Router     RouterConfig
	Pipeline   PipelineConfig
	Knowledge  KnowledgeConfig
	Channels   ChannelsConfig
	WorkerPool WorkerPoolConfig
	Security   SecurityConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
	BodyLimitMB        int
}

type MCPConfig struct {
	Port string
	Host string
}

type PathsConfig struct {
	BaseDir  string
	Statics  string
	Uploads  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	MaxOpenConns    int
	MaxIdleConns    int
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
	// Legacy URI support
	URI string
}

// LLMConfig points every model call at the LLM proxy. The proxy speaks the
// OpenAI chat/embeddings surface plus a /rerank endpoint.
type LLMConfig struct {
	ProxyURL       string
	APIKey         string
	TimeoutSeconds int
	ChatModel      string
	VisionModel    string
	EmbedModel     string
	RerankModel    string
	GuardModel     string
	EmbedProvider  string // "openai" (proxy) or "gemini"
	GeminiAPIKey   string
}

type RouterConfig struct {
	LockTTLSeconds     int
	LockMaxWaitSeconds int
	DebounceSeconds    int
	WorkerTTLSeconds   int
}

type PipelineConfig struct {
	HistoryLimit           int
	MaxToolTurns           int
	ApologyCooldownSeconds int
}

type KnowledgeConfig struct {
	CandidatePool int
	RerankBatch   int
	TopK          int
	ChunkSize     int
}

// ChannelsConfig holds the outbound gateway endpoints. Each channel is an
// external HTTP process; we never link a protocol stack in here.
type ChannelsConfig struct {
	WhatsAppBaseURL    string
	WhatsAppAPIKey     string
	TelegramBaseURL    string
	TelegramServiceKey string
	EmailWebhookURL    string
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type SecurityConfig struct {
	SecretKey string
}

// Global provides access to the loaded configuration globally (Migration Helper)
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := false
	if v := os.Getenv("APP_DEBUG"); v == "true" || v == "1" || v == "on" {
		debug = true
	} else if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		debug = true
	}

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              debug,
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
		BodyLimitMB:        getEnvInt("APP_BODY_LIMIT_MB", 50),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Statics:  getEnv("PATH_STATICS", "statics"),
		Uploads:  getEnv("PATH_UPLOADS", filepath.Join("statics", "uploads")),
		Storages: baseDir,
	}

	dbDriver := getEnv("DB_DRIVER", "sqlite")
	dbCfg := DatabaseConfig{
		Driver:          dbDriver,
		Name:            filepath.Join(pathsCfg.Storages, "crm.db"), // Default SQLite
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "azcrm:"),
		URI:             getEnv("DB_URI", ""),
	}

	llmCfg := LLMConfig{
		ProxyURL:       getEnv("LLM_PROXY_URL", "http://localhost:8090"),
		APIKey:         getEnv("LLM_PROXY_API_KEY", ""),
		TimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 300),
		ChatModel:      getEnv("LLM_CHAT_MODEL", "gpt-4o-mini"),
		VisionModel:    getEnv("LLM_VISION_MODEL", "gpt-4o-mini"),
		EmbedModel:     getEnv("LLM_EMBED_MODEL", "text-embedding-3-small"),
		RerankModel:    getEnv("LLM_RERANK_MODEL", "bge-reranker-v2-m3"),
		GuardModel:     getEnv("LLM_GUARD_MODEL", "gpt-4o-mini"),
		EmbedProvider:  getEnv("LLM_EMBED_PROVIDER", "openai"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
	}

	routerCfg := RouterConfig{
		LockTTLSeconds:     getEnvInt("ROUTER_LOCK_TTL_SECONDS", 20),
		LockMaxWaitSeconds: getEnvInt("ROUTER_LOCK_MAX_WAIT_SECONDS", 5),
		DebounceSeconds:    getEnvInt("ROUTER_DEBOUNCE_SECONDS", 5),
		WorkerTTLSeconds:   getEnvInt("ROUTER_WORKER_TTL_SECONDS", 60),
	}

	pipelineCfg := PipelineConfig{
		HistoryLimit:           getEnvInt("PIPELINE_HISTORY_LIMIT", 5),
		MaxToolTurns:           getEnvInt("PIPELINE_MAX_TOOL_TURNS", 5),
		ApologyCooldownSeconds: getEnvInt("PIPELINE_APOLOGY_COOLDOWN_SECONDS", 15),
	}

	knowledgeCfg := KnowledgeConfig{
		CandidatePool: getEnvInt("KNOWLEDGE_CANDIDATE_POOL", 100),
		RerankBatch:   getEnvInt("KNOWLEDGE_RERANK_BATCH", 16),
		TopK:          getEnvInt("KNOWLEDGE_TOP_K", 5),
		ChunkSize:     getEnvInt("KNOWLEDGE_CHUNK_SIZE", 1200),
	}

	channelsCfg := ChannelsConfig{
		WhatsAppBaseURL:    getEnv("WHATSAPP_GATEWAY_URL", "http://localhost:3001"),
		WhatsAppAPIKey:     getEnv("WHATSAPP_GATEWAY_API_KEY", ""),
		TelegramBaseURL:    getEnv("TELEGRAM_GATEWAY_URL", "http://localhost:3002"),
		TelegramServiceKey: getEnv("TELEGRAM_SERVICE_KEY", ""),
		EmailWebhookURL:    getEnv("EMAIL_WEBHOOK_URL", ""),
	}

	cfg := &Config{
		App:        appCfg,
		MCP:        MCPConfig{Port: getEnv("MCP_PORT", "8080"), Host: getEnv("MCP_HOST", "localhost")},
		Paths:      pathsCfg,
		Database:   dbCfg,
		LLM:        llmCfg,
		Router:     routerCfg,
		Pipeline:   pipelineCfg,
		Knowledge:  knowledgeCfg,
		Channels:   channelsCfg,
		WorkerPool: WorkerPoolConfig{Size: getEnvInt("MESSAGE_WORKER_POOL_SIZE", 6), QueueSize: getEnvInt("MESSAGE_WORKER_QUEUE_SIZE", 250)},
		Security:   SecurityConfig{SecretKey: getEnv("APP_SECRET_KEY", "changeme_please_change_me_in_prod_12345")},
	}

	Global = cfg
	return cfg, nil
}
