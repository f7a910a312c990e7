package config

import (
	"os"
	"strconv"
	"strings"
)

// GetAllSettings returns a map of all dynamic settings currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"router_lock_ttl_seconds":           Global.Router.LockTTLSeconds,
		"router_lock_max_wait_seconds":      Global.Router.LockMaxWaitSeconds,
		"router_debounce_seconds":           Global.Router.DebounceSeconds,
		"router_worker_ttl_seconds":         Global.Router.WorkerTTLSeconds,
		"pipeline_history_limit":            Global.Pipeline.HistoryLimit,
		"pipeline_max_tool_turns":           Global.Pipeline.MaxToolTurns,
		"pipeline_apology_cooldown_seconds": Global.Pipeline.ApologyCooldownSeconds,
		"knowledge_candidate_pool":          Global.Knowledge.CandidatePool,
		"knowledge_rerank_batch":            Global.Knowledge.RerankBatch,
		"knowledge_top_k":                   Global.Knowledge.TopK,
		"knowledge_chunk_size":              Global.Knowledge.ChunkSize,
		"llm_chat_model":                    Global.LLM.ChatModel,
		"llm_embed_provider":                Global.LLM.EmbedProvider,
		"app_debug":                         Global.App.Debug,
		"app_version":                       Global.App.Version,
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}
