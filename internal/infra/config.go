package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisAddr   string
	StoragePath string

	// NotifyURL is the callback endpoint handed to the midjourney proxy on
	// every submission. Resolved once at startup and passed explicitly into
	// the engine.
	NotifyURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	StabilityAPIKey  string
	StabilityBaseURL string

	MidjourneyBaseURL string
	MidjourneyAPIKey  string

	DrawTimeout   time.Duration
	SweepInterval time.Duration
	WorkerCount   int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		StabilityAPIKey:  os.Getenv("STABILITY_API_KEY"),
		StabilityBaseURL: getEnv("STABILITY_BASE_URL", "https://api.stability.ai"),

		MidjourneyBaseURL: getEnv("MIDJOURNEY_BASE_URL", "http://127.0.0.1:8086/mj"),
		MidjourneyAPIKey:  os.Getenv("MIDJOURNEY_API_KEY"),

		DrawTimeout:   time.Second * time.Duration(getEnvInt("DRAW_TIMEOUT_SECONDS", 120)),
		SweepInterval: time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 10)),
		WorkerCount:   getEnvInt("WORKER_COUNT", 4),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	cfg.NotifyURL = getEnv("MIDJOURNEY_NOTIFY_URL",
		fmt.Sprintf("http://127.0.0.1:%s/v1/midjourney/notify", cfg.Port))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
