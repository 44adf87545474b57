package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	OpenAI   OpenAIConfig
	RAG      RAGConfig
	Sync     SyncConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	ComposeModel   string
	Timeout        time.Duration
}

type RAGConfig struct {
	TopK          int
	MaxInputChars int
	// Thresholds is the degradation ladder tried in order until a search
	// returns at least one match.
	Thresholds []float64
}

type SyncConfig struct {
	// FreshnessWindow bounds the updated_at range scanned for candidates.
	FreshnessWindow time.Duration
	MaxRetries      int
	// RequestsPerMinute throttles embedding calls within one run.
	RequestsPerMinute int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for Docker/K8s.
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	openaiTimeout, _ := strconv.Atoi(getEnv("OPENAI_TIMEOUT", "60"))
	topK, _ := strconv.Atoi(getEnv("RAG_TOP_K", "5"))
	maxInput, _ := strconv.Atoi(getEnv("RAG_MAX_INPUT_CHARS", "8000"))
	windowHours, _ := strconv.Atoi(getEnv("SYNC_WINDOW_HOURS", "24"))
	maxRetries, _ := strconv.Atoi(getEnv("SYNC_MAX_RETRIES", "3"))
	rpm, _ := strconv.Atoi(getEnv("SYNC_REQUESTS_PER_MINUTE", "60"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "tea_diagnosis"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			BaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			ChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ComposeModel:   getEnv("OPENAI_COMPOSE_MODEL", "gpt-4"),
			Timeout:        time.Duration(openaiTimeout) * time.Second,
		},
		RAG: RAGConfig{
			TopK:          topK,
			MaxInputChars: maxInput,
			Thresholds:    []float64{0.75, 0.6, 0.5, 0.4},
		},
		Sync: SyncConfig{
			FreshnessWindow:   time.Duration(windowHours) * time.Hour,
			MaxRetries:        maxRetries,
			RequestsPerMinute: rpm,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
