package config

import (
	"os"
	"strconv"
)

// AppConfig holds all mesh-wide configuration, loaded from the environment
// with sane defaults so the orchestrator runs out of the box in a single
// process without any external services configured.
type AppConfig struct {
	// Observability
	OTLPEndpoint string
	HealthPort   string
	PrometheusPort string

	// Service identity
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string

	// LLM orchestration (planner.Planner / llm.Client)
	LLMModel            string
	PlanningTemperature float64
	PlanningTimeoutMs   int
	MaxTaskDepth         int

	// Task execution (coordinator.Coordinator)
	TaskTimeoutMs     int
	ParallelExecution bool
	MaxRetries        int

	// Resilience (cache.ResponseCache, cache.IntentCache, fallback.Engine)
	TaskCaching        bool
	CacheMaxSize       int
	CacheTTLMinutes    int
	FallbackMinConfidence int
	FallbackMaxRules      int
	FallbackRulesDir      string
}

// Load loads configuration from environment variables with defaults.
func Load() *AppConfig {
	return &AppConfig{
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "127.0.0.1:4317"),
		HealthPort:     getEnv("HEALTH_PORT", "8080"),
		PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),

		ServiceName:    getEnv("SERVICE_NAME", "meshhub-orchestrator"),
		ServiceVersion: getEnv("SERVICE_VERSION", "1.0.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),

		LLMModel:            getEnv("MESHHUB_LLM_MODEL", "gemini-2.0-flash"),
		PlanningTemperature: getEnvAsFloat("MESHHUB_PLANNING_TEMPERATURE", 0.3),
		PlanningTimeoutMs:   getEnvAsInt("MESHHUB_PLANNING_TIMEOUT_MS", 5000),
		MaxTaskDepth:        getEnvAsInt("MESHHUB_MAX_TASK_DEPTH", 5),

		TaskTimeoutMs:     getEnvAsInt("MESHHUB_TASK_TIMEOUT_MS", 60000),
		ParallelExecution: getEnvAsBool("MESHHUB_PARALLEL_EXECUTION", true),
		MaxRetries:        getEnvAsInt("MESHHUB_MAX_RETRIES", 0),

		TaskCaching:           getEnvAsBool("MESHHUB_TASK_CACHING", true),
		CacheMaxSize:          getEnvAsInt("MESHHUB_CACHE_MAX_SIZE", 1000),
		CacheTTLMinutes:       getEnvAsInt("MESHHUB_CACHE_TTL_MINUTES", 60),
		FallbackMinConfidence: getEnvAsInt("MESHHUB_FALLBACK_MIN_CONFIDENCE", 70),
		FallbackMaxRules:      getEnvAsInt("MESHHUB_FALLBACK_MAX_RULES", 100),
		FallbackRulesDir:      getEnv("MESHHUB_FALLBACK_RULES_DIR", defaultFallbackRulesDir()),
	}
}

func defaultFallbackRulesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".amcp/fallback-rules"
	}
	return home + "/.amcp/fallback-rules"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
