package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Keys       APIKeys
	Ai         AIConfig
	Completion CompletionConfig
	Memory     MemoryConfig
	Worker     WorkerConfig
	Tracing    TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	DebugMode          bool
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	OpenAI string
}

type AIConfig struct {
	EmbeddingProvider   string // "openai", "ollama" or "hash"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string
	OllamaModel         string
	OpenAIBaseURL       string
	LLMProvider         string // "openai" or "ollama"
	LLMModel            string
}

type CompletionConfig struct {
	MaxCompletionTokens int
	Temperature         float64
	ResponseFormat      string // "text" or "json"
	Timeout             time.Duration
	MaxAttempts         int
	BaseBackoff         time.Duration
	BackoffFactor       float64
	Jitter              float64
}

type MemoryConfig struct {
	StoreBackend          string // "chromem" or "pgvector"
	LockBackend           string // "local" or "redis"
	MaxUserMemories       int
	MaxSessionMemories    int
	SimilarityThreshold   float64
	ExtractionTemperature float64
	ExtractionMaxTokens   int
}

type WorkerConfig struct {
	Workers        int
	QueueSize      int
	EnqueueTimeout time.Duration
	ShutdownGrace  time.Duration
	Topic          string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	env := getEnv("GO_ENV", "development")

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        env,
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			DebugMode:          debugEnabled(env),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			OpenAI: firstEnv("OAI_ACCESS_TOKEN", "OPENAI_API_KEY"),
		},
		Ai: AIConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "openai"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:         getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
			LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
			LLMModel:            getEnv("LLM_MODEL", "gpt-3.5-turbo"),
		},
		Completion: CompletionConfig{
			MaxCompletionTokens: getEnvAsInt("MAX_COMPLETION_TOKENS", 500),
			Temperature:         getEnvAsFloat("COMPLETION_TEMPERATURE", 0.7),
			ResponseFormat:      getEnv("RESPONSE_FORMAT", "text"),
			Timeout:             getEnvAsDuration("COMPLETION_TIMEOUT", 30*time.Second),
			MaxAttempts:         getEnvAsInt("COMPLETION_MAX_ATTEMPTS", 3),
			BaseBackoff:         getEnvAsDuration("COMPLETION_BASE_BACKOFF", 500*time.Millisecond),
			BackoffFactor:       getEnvAsFloat("COMPLETION_BACKOFF_FACTOR", 2),
			Jitter:              getEnvAsFloat("COMPLETION_BACKOFF_JITTER", 0.5),
		},
		Memory: MemoryConfig{
			StoreBackend:          getEnv("MEMORY_STORE_BACKEND", "chromem"),
			LockBackend:           getEnv("MEMORY_LOCK_BACKEND", "local"),
			MaxUserMemories:       getEnvAsInt("MAX_USER_MEMORIES", 100),
			MaxSessionMemories:    getEnvAsInt("MAX_SESSION_MEMORIES", 30),
			SimilarityThreshold:   getEnvAsFloat("SIMILARITY_THRESHOLD", 0.7),
			ExtractionTemperature: getEnvAsFloat("EXTRACTION_TEMPERATURE", 0.1),
			ExtractionMaxTokens:   getEnvAsInt("EXTRACTION_MAX_TOKENS", 800),
		},
		Worker: WorkerConfig{
			Workers:        getEnvAsInt("EXTRACTION_WORKERS", 4),
			QueueSize:      getEnvAsInt("EXTRACTION_QUEUE_SIZE", 64),
			EnqueueTimeout: getEnvAsDuration("EXTRACTION_ENQUEUE_TIMEOUT", 100*time.Millisecond),
			ShutdownGrace:  getEnvAsDuration("EXTRACTION_SHUTDOWN_GRACE", 10*time.Second),
			Topic:          getEnv("EXTRACTION_TOPIC_NAME", "memory.extraction.requested"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "ai-memory-chat-be"),
		},
	}
}

// debugEnabled follows the memory debug switch: DEBUG_MODE anywhere,
// SHOW_MEMORY_DEBUG only in development.
func debugEnabled(env string) bool {
	if getEnvAsBool("DEBUG_MODE", false) {
		return true
	}
	return env == "development" && getEnvAsBool("SHOW_MEMORY_DEBUG", false)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
