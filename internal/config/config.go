package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the scanner service.
type Config struct {
	Port     string
	LogLevel string

	DBDriver    string
	DatabaseDSN string
	RedisAddr   string

	ClassifierAddr string

	OpenRouterAPIKey string
	OpenRouterModel  string
	OpenRouterURL    string

	UploadBackend  string
	UploadDir      string
	MaxUploadBytes int64

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	JWTSecret   string
	JWTAudience string
}

// Load reads an optional .env file and then the environment. The returned
// bool reports whether a .env file was found.
func Load() (*Config, bool) {
	dotenv := godotenv.Load() == nil

	return &Config{
		Port:     String("PORT", "8080"),
		LogLevel: String("LOG_LEVEL", "info"),

		DBDriver:    strings.ToLower(String("DB_DRIVER", "postgres")),
		DatabaseDSN: String("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=leafscan port=5432 sslmode=disable"),
		RedisAddr:   String("REDIS_ADDR", "redis:6379"),

		ClassifierAddr: String("CLASSIFIER_ADDR", "classifier:50051"),

		OpenRouterAPIKey: String("OPENROUTER_API_KEY", ""),
		OpenRouterModel:  String("OPENROUTER_MODEL", "tngtech/deepseek-r1t2-chimera:free"),
		OpenRouterURL:    String("OPENROUTER_URL", "https://openrouter.ai/api/v1/chat/completions"),

		UploadBackend:  strings.ToLower(String("UPLOAD_BACKEND", "disk")),
		UploadDir:      String("UPLOAD_DIR", "static/uploads"),
		MaxUploadBytes: int64(Int("MAX_UPLOAD_BYTES", 10<<20)),

		MinioEndpoint:  String("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey: String("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: String("MINIO_SECRET_KEY", ""),
		MinioBucket:    String("MINIO_BUCKET", "leafscan-uploads"),
		MinioUseSSL:    Bool("MINIO_USE_SSL", false),

		JWTSecret:   String("JWT_SECRET", "dev-secret"),
		JWTAudience: String("JWT_AUDIENCE", ""),
	}, dotenv
}

// String returns the variable or fallback when unset or empty.
func String(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Int returns a positive integer variable, or fallback.
func Int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Bool returns a boolean variable, or fallback when unset or malformed.
func Bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
