package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	UseMemoryQueue   bool
	EventQueueURL    string
	DispatchQueueURL string
	DispatchJobsTable string
	WorkerCount      int

	// Session sidecar holding the chat-protocol sockets. The core only
	// talks to it over HTTP: media downloads and outbound sends.
	SessionBaseURL  string
	SessionAPIToken string

	PublicMediaRoot    string
	MediaArchiveBucket string

	// Fallback transcription key when a tenant has none configured.
	GeminiAPIKey string

	// Shared secret the session sidecar presents on webhook deliveries.
	WebhookToken string

	AdminJWTSecret string

	DispatchMaxAttempts  int
	DispatchBackoffBase  time.Duration
	DispatchMaxDelaySecs int

	SettingsCacheTTL time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", false),
		EventQueueURL:     getEnv("EVENT_QUEUE_URL", ""),
		DispatchQueueURL:  getEnv("DISPATCH_QUEUE_URL", ""),
		DispatchJobsTable: getEnv("DISPATCH_JOBS_TABLE", "campaign_dispatch_jobs"),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 2),

		SessionBaseURL:  getEnv("SESSION_BASE_URL", ""),
		SessionAPIToken: getEnv("SESSION_API_TOKEN", ""),

		PublicMediaRoot:    getEnv("PUBLIC_MEDIA_ROOT", "./public"),
		MediaArchiveBucket: getEnv("MEDIA_ARCHIVE_BUCKET", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		WebhookToken: getEnv("WEBHOOK_TOKEN", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		DispatchMaxAttempts:  getEnvAsInt("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchBackoffBase:  getEnvAsDuration("DISPATCH_BACKOFF_BASE", 5*time.Second),
		DispatchMaxDelaySecs: getEnvAsInt("DISPATCH_MAX_DELAY_SECONDS", 10),

		SettingsCacheTTL: getEnvAsDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
