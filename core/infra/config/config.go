package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultNATSURL          = "nats://localhost:4222"
	defaultRedisURL         = "redis://localhost:6379"
	defaultHTTPAddr         = ":9093"
	defaultEngineConfig     = "config/engine.yaml"
	defaultStoreBackend     = StoreMemory
	envNATSURL              = "NATS_URL"
	envRedisURL             = "REDIS_URL"
	envStoreBackend         = "WORKFLOW_STORE"
	envHTTPAddr             = "WORKFLOW_ENGINE_HTTP_ADDR"
	envMaxConcurrency       = "WORKFLOW_MAX_CONCURRENCY"
	envEngineConfigPath     = "ENGINE_CONFIG_PATH"
	envNotificationsEnabled = "WORKFLOW_NOTIFICATIONS"
)

// Store backends accepted by WORKFLOW_STORE.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds runtime configuration for the workflow engine process.
type Config struct {
	NatsURL              string
	RedisURL             string
	HTTPAddr             string
	StoreBackend         string
	MaxConcurrentRuns    int
	EngineConfigPath     string
	NotificationsEnabled bool
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = defaultNATSURL
	}
	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		redisURL = defaultRedisURL
	}
	httpAddr := os.Getenv(envHTTPAddr)
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv(envStoreBackend)))
	if backend != StoreRedis {
		backend = defaultStoreBackend
	}
	engineCfg := os.Getenv(envEngineConfigPath)
	if engineCfg == "" {
		engineCfg = defaultEngineConfig
	}
	maxRuns := 0
	if raw := strings.TrimSpace(os.Getenv(envMaxConcurrency)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxRuns = n
		}
	}
	notify := true
	if raw := strings.TrimSpace(os.Getenv(envNotificationsEnabled)); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			notify = v
		}
	}

	return &Config{
		NatsURL:              natsURL,
		RedisURL:             redisURL,
		HTTPAddr:             httpAddr,
		StoreBackend:         backend,
		MaxConcurrentRuns:    maxRuns,
		EngineConfigPath:     engineCfg,
		NotificationsEnabled: notify,
	}
}
