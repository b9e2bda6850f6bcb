// Package config reads application configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string
	JWTSecret string

	// Database. Driver is "mysql" or "sqlite".
	DBDriver   string
	DBDSN      string
	SQLitePath string

	// Redis (rate limiting)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RabbitMQ (async answer jobs); empty URL disables the async path
	RabbitURL   string
	RabbitQueue string

	// AI provider
	AIProvider    string
	GoogleAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string
	ModelTimeout  time.Duration

	// Knowledge base and pipeline
	KnowledgePath   string
	RetrievalTopK   int
	DefaultLanguage string

	RateLimitPerMin int
	LogLevel        slog.Level
}

func Load() Config {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local",
			"app", "apppass", "127.0.0.1", "3306", "exambot",
		)
	}

	return Config{
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBDSN:      dsn,
		SQLitePath: getEnv("SQLITE_PATH", "./data/exambot.db"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RabbitURL:   os.Getenv("RABBIT_URL"),
		RabbitQueue: getEnv("RABBIT_QUEUE", "answer_jobs"),

		AIProvider:    getEnv("AI_PROVIDER", "gemini"),
		GoogleAPIKey:  os.Getenv("GOOGLE_API_KEY"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3:latest"),
		ModelTimeout:  getEnvDuration("MODEL_TIMEOUT", 90*time.Second),

		KnowledgePath:   getEnv("KNOWLEDGE_PATH", "./data/regulations.json"),
		RetrievalTopK:   getEnvInt("RETRIEVAL_TOP_K", 5),
		DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "English"),

		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MIN", 30),
		LogLevel:        parseLogLevel(getEnv("LOG_LEVEL", "INFO")),
	}
}

// Validate surfaces configuration problems once at startup instead of per
// call. Missing model credentials are a startup failure, not a runtime one.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch strings.ToLower(c.AIProvider) {
	case "gemini":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required when AI_PROVIDER=gemini")
		}
	case "ollama":
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q", c.AIProvider)
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be > 0")
	}
	return nil
}

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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
