package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds client configuration loaded from environment.
type Config struct {
	Socket     SocketConfig
	API        APIConfig
	Engagement EngagementConfig
	Chat       ChatConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Analytics  AnalyticsConfig
	Simulator  SimulatorConfig
	// Environment selects backend wiring: "production" uses the live
	// engagement API, "demo" uses the offline fixture backend.
	Environment string
}

// SocketConfig holds real-time transport settings.
type SocketConfig struct {
	BaseURL string // ws(s) or http(s) origin; the transport path suffix is appended
}

// APIConfig holds the stream metadata API settings.
type APIConfig struct {
	BaseURL    string
	APIKey     string
	TimeoutSec int
}

// EngagementConfig holds the polls/contests API settings.
type EngagementConfig struct {
	BaseURL    string
	APIKey     string
	TimeoutSec int
}

// ChatConfig holds the chat API settings.
type ChatConfig struct {
	BaseURL    string
	TimeoutSec int
}

// RedisConfig holds Redis connection settings (optional; used when the host
// selects the redis-backed store or the queue analytics sink).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the local persistence backend.
type StorageConfig struct {
	Backend string // "memory", "file" or "redis"
	Path    string // file backend only
}

// AnalyticsConfig selects the analytics sink.
type AnalyticsConfig struct {
	Sink string // "log" or "queue"
}

// SimulatorConfig holds the local dev backend's server settings.
type SimulatorConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Socket: SocketConfig{
			BaseURL: getEnv("SOCKET_BASE_URL", "wss://live.violive.tv"),
		},
		API: APIConfig{
			BaseURL:    getEnv("STREAMS_API_BASE_URL", "https://api.violive.tv"),
			APIKey:     getEnv("STREAMS_API_KEY", ""),
			TimeoutSec: getEnvInt("STREAMS_API_TIMEOUT_SEC", 30),
		},
		Engagement: EngagementConfig{
			BaseURL:    getEnv("ENGAGEMENT_API_BASE_URL", "https://engage.violive.tv"),
			APIKey:     getEnv("ENGAGEMENT_API_KEY", ""),
			TimeoutSec: getEnvInt("ENGAGEMENT_API_TIMEOUT_SEC", 30),
		},
		Chat: ChatConfig{
			BaseURL:    getEnv("CHAT_API_BASE_URL", "https://chat.violive.tv"),
			TimeoutSec: getEnvInt("CHAT_API_TIMEOUT_SEC", 30),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "file"),
			Path:    getEnv("STORAGE_PATH", "liveshow-state.json"),
		},
		Analytics: AnalyticsConfig{
			Sink: getEnv("ANALYTICS_SINK", "log"),
		},
		Simulator: SimulatorConfig{
			Port:         getEnv("SIMULATOR_PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Environment: strings.ToLower(getEnv("LIVESHOW_ENV", "production")),
	}
	return cfg, nil
}

// IsDemo reports whether the offline demo backend should be used.
func (c *Config) IsDemo() bool {
	return c.Environment == "demo"
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
