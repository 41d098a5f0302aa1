package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	StrokeStore    string // redis, dynamodb or memory
	Redis          RedisConfig
	DynamoDB       DynamoDBConfig
	Persist        PersistConfig
	Conn           ConnConfig
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	StrokeTTL time.Duration
}

type DynamoDBConfig struct {
	Table    string
	Endpoint string
	Region   string
	KeyID    string
	Secret   string
	Token    string
}

// PersistConfig sizes the worker pool that writes strokes to the store
type PersistConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// ConnConfig holds per-websocket limits
type ConnConfig struct {
	SendBuffer     int
	MaxMessageSize int64
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		StrokeStore:    getEnv("STROKE_STORE", "redis"),
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			StrokeTTL: getEnvDuration("STROKE_TTL", 24*time.Hour),
		},
		DynamoDB: DynamoDBConfig{
			Table:    getEnv("DYNAMODB_TABLE", "WhiteboardStrokes"),
			Endpoint: getEnv("DYNAMODB_ENDPOINT", ""),
			Region:   getEnv("AWS_REGION", "eu-central-1"),
			KeyID:    getEnv("AWS_ID", ""),
			Secret:   getEnv("AWS_SECRET", ""),
			Token:    getEnv("AWS_TOKEN", ""),
		},
		Persist: PersistConfig{
			Workers:   getEnvInt("PERSIST_WORKERS", 4),
			QueueSize: getEnvInt("PERSIST_QUEUE_SIZE", 256),
			Timeout:   getEnvDuration("PERSIST_TIMEOUT", 5*time.Second),
		},
		Conn: ConnConfig{
			SendBuffer:     getEnvInt("SEND_BUFFER", 256),
			MaxMessageSize: int64(getEnvInt("MAX_MESSAGE_SIZE", 64*1024)),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if parsed, err := strconv.Atoi(os.Getenv(key)); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
