package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Ai        AIConfig
	Rag       RAGConfig
	Ingestion IngestionConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	IngestionLogPath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string // empty means in-memory stores
}

type AIConfig struct {
	OllamaBaseURL       string
	ChatModel           string
	EmbeddingModel      string
	EmbeddingDimensions int
	ChatTimeout         time.Duration
	EmbeddingTimeout    time.Duration
	MaxRetries          int
}

type RAGConfig struct {
	MaxResults       int
	MinScore         float64
	MemoryWindowSize int
	StreamBufferSize int
	SerializeTurns   bool
	LockWaitTimeout  time.Duration
}

type IngestionConfig struct {
	Topic         string
	ChunkSize     int
	ChunkOverlap  int
	DedupStrategy string // "preload" or "query"
	TikaURL       string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string // OTLP/HTTP host:port
	ServiceName string
	SampleRatio float64 // 1 samples every root span
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8080"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			IngestionLogPath:   getEnv("INGESTION_LOG_PATH", "logs/ingestion.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			ChatModel:           getEnv("CHAT_MODEL", "llama3"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 768),
			ChatTimeout:         getEnvAsDuration("CHAT_TIMEOUT", 3*time.Minute),
			EmbeddingTimeout:    getEnvAsDuration("EMBEDDING_TIMEOUT", 5*time.Minute),
			MaxRetries:          getEnvAsInt("AI_MAX_RETRIES", 3),
		},
		Rag: RAGConfig{
			MaxResults:       getEnvAsInt("RAG_MAX_RESULTS", 3),
			MinScore:         getEnvAsFloat("RAG_MIN_SCORE", 0.75),
			MemoryWindowSize: getEnvAsInt("MEMORY_WINDOW_SIZE", 20),
			StreamBufferSize: getEnvAsInt("STREAM_BUFFER_SIZE", 16),
			SerializeTurns:   getEnvAsBool("CHAT_SERIALIZE_TURNS", true),
			LockWaitTimeout:  getEnvAsDuration("CHAT_LOCK_TIMEOUT", 5*time.Minute),
		},
		Ingestion: IngestionConfig{
			Topic:         getEnv("INGESTION_TOPIC", "INGEST_DIRECTORY"),
			ChunkSize:     getEnvAsInt("CHUNK_SIZE", 2000),
			ChunkOverlap:  getEnvAsInt("CHUNK_OVERLAP", 50),
			DedupStrategy: getEnv("INGESTION_DEDUP_STRATEGY", "preload"),
			TikaURL:       getEnv("TIKA_URL", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "llamatalks-backend"),
			SampleRatio: getEnvAsFloat("OTEL_SAMPLE_RATIO", 1.0),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
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

// getEnvAsDuration accepts Go durations ("90s", "3m").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
