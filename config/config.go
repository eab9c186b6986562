// Package config reads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Backend names
const (
	BackendGemini   = "gemini"
	BackendOpenAI   = "openai"
	BackendDeepSeek = "deepseek"
	BackendQwen     = "qwen"
)

// Session store kinds
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Rule corpus sources
const (
	RuleSourceFile     = "file"
	RuleSourcePostgres = "postgres"
)

type Config struct {
	Port         string
	DatabaseURL  string
	SessionStore string
	SQLitePath   string
	RendererURL  string

	Models   ModelsConfig
	Pipeline PipelineConfig
	Rules    RulesConfig
}

// ModelSettings configures one model backend. A backend is enabled when its API key is set.
type ModelSettings struct {
	APIKey  string
	BaseURL string
	Model   string
}

type ModelsConfig struct {
	Gemini   ModelSettings
	OpenAI   ModelSettings
	DeepSeek ModelSettings
	Qwen     ModelSettings

	Primary        string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MinInterval    time.Duration
}

type PipelineConfig struct {
	ExtractionTimeout      time.Duration
	PreorganizeConcurrency int
	PrimaryConfidence      float64
	ProgressRetention      time.Duration
}

// RulesConfig holds the rule corpus source and the assembler heuristics
type RulesConfig struct {
	Source         string
	File           string
	BonusTimeLimit float64
	BonusGuarantee float64
	BonusScenario  float64
	HighPriority   float64
	MaxRules       int
}

func Load() Config {
	return Config{
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SessionStore: getEnv("SESSION_STORE", StorePostgres),
		SQLitePath:   getEnv("SQLITE_PATH", "caselens.db"),
		RendererURL:  os.Getenv("RENDERER_URL"),
		Models: ModelsConfig{
			Gemini: ModelSettings{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
			},
			OpenAI: ModelSettings{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
				Model:   getEnv("OPENAI_MODEL", "gpt-4o"),
			},
			DeepSeek: ModelSettings{
				APIKey:  os.Getenv("DEEPSEEK_API_KEY"),
				BaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
				Model:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
			},
			Qwen: ModelSettings{
				APIKey:  os.Getenv("QWEN_API_KEY"),
				BaseURL: getEnv("QWEN_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
				Model:   getEnv("QWEN_MODEL", "qwen-max"),
			},
			Primary:        os.Getenv("PRIMARY_BACKEND"),
			Timeout:        getSeconds("MODEL_TIMEOUT_SECONDS", 120),
			MaxRetries:     getInt("MODEL_MAX_RETRIES", 3),
			InitialBackoff: time.Second,
			MinInterval:    time.Duration(getInt("MODEL_MIN_INTERVAL_MS", 750)) * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			ExtractionTimeout:      getSeconds("EXTRACTION_TIMEOUT_SECONDS", 60),
			PreorganizeConcurrency: getInt("PREORGANIZE_CONCURRENCY", 5),
			PrimaryConfidence:      getFloat("PRIMARY_CONFIDENCE", 0.8),
			ProgressRetention:      getSeconds("PROGRESS_RETENTION_SECONDS", 600),
		},
		Rules: RulesConfig{
			Source:         getEnv("RULE_SOURCE", RuleSourceFile),
			File:           os.Getenv("RULES_FILE"),
			BonusTimeLimit: getFloat("RULE_BONUS_TIME_LIMIT", 2.0),
			BonusGuarantee: getFloat("RULE_BONUS_GUARANTEE", 3.0),
			BonusScenario:  getFloat("RULE_BONUS_SCENARIO", 1.5),
			HighPriority:   getFloat("RULE_HIGH_PRIORITY", 3.0),
			MaxRules:       getInt("RULE_MAX", 15),
		},
	}
}

// Enabled lists the backends with credentials, in registration order
func (m ModelsConfig) Enabled() []string {
	var names []string
	if m.Gemini.APIKey != "" {
		names = append(names, BackendGemini)
	}
	if m.OpenAI.APIKey != "" {
		names = append(names, BackendOpenAI)
	}
	if m.DeepSeek.APIKey != "" {
		names = append(names, BackendDeepSeek)
	}
	if m.Qwen.APIKey != "" {
		names = append(names, BackendQwen)
	}
	return names
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func getSeconds(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Second
}
