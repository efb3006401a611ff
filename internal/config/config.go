package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Sync     SyncConfig
	Sources  SourcesConfig
	Events   EventsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr         string
	RateLimitDur     time.Duration
	ManualSyncWindow time.Duration
	EnableManualSync bool
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	Backend       string // "memory" or "redis"
	SnapshotTTL   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// DatabaseConfig holds PostgreSQL configuration. An empty Host selects the
// in-memory store.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// SyncConfig controls when and how sync runs happen
type SyncConfig struct {
	Mode         string // "cache" or "persist"
	Schedule     string
	RunOnStart   bool
	RunOnce      bool
	PersonasFile string
}

// SourcesConfig holds upstream fetch settings
type SourcesConfig struct {
	Timeout         time.Duration
	MaxItems        int
	UserAgent       string
	DetailDelay     time.Duration
	BilibiliBaseURL string
	RSSHubBaseURL   string
}

// EventsConfig holds Kafka settings. No brokers disables publishing.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// Load parses flags and environment variables to build configuration
func Load() *Config {
	cfg := &Config{}

	// Server
	flag.StringVar(&cfg.Server.HTTPAddr, "http", ":8080", "HTTP server address")
	flag.DurationVar(&cfg.Server.RateLimitDur, "rate-limit", time.Second, "Minimum delay between requests to same host")
	flag.DurationVar(&cfg.Server.ManualSyncWindow, "manual-sync-window", 10*time.Second, "Minimum delay between manual sync triggers per client")
	flag.BoolVar(&cfg.Server.EnableManualSync, "manual-sync", true, "Expose the manual sync trigger")

	// Cache
	flag.StringVar(&cfg.Cache.Backend, "cache-backend", "redis", "Cache backend: memory or redis")
	flag.DurationVar(&cfg.Cache.SnapshotTTL, "snapshot-ttl", 12*time.Hour, "TTL of published persona snapshots")
	flag.StringVar(&cfg.Cache.RedisAddr, "redis-addr", "localhost:6379", "Redis server address")
	flag.IntVar(&cfg.Cache.RedisDB, "redis-db", 0, "Redis database number")
	flag.StringVar(&cfg.Cache.Prefix, "cache-prefix", "discovery:", "Cache key namespace")

	// Database
	flag.StringVar(&cfg.Database.Host, "db-host", "", "PostgreSQL host (empty uses the in-memory store)")
	flag.IntVar(&cfg.Database.Port, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.Database.User, "db-user", "postgres", "PostgreSQL user")
	flag.StringVar(&cfg.Database.Password, "db-password", "postgres", "PostgreSQL password")
	flag.StringVar(&cfg.Database.Database, "db-name", "topicbuddy", "PostgreSQL database name")
	flag.StringVar(&cfg.Database.SSLMode, "db-sslmode", "disable", "PostgreSQL SSL mode")

	flag.StringVar(&cfg.Logging.Level, "log-level", "info", "Log level (debug, info, warn, error)")

	// Sync
	flag.StringVar(&cfg.Sync.Mode, "sync-mode", "cache", "Sync mode: cache or persist")
	flag.StringVar(&cfg.Sync.Schedule, "sync-schedule", "0 0,12 * * *", "Cron schedule for periodic sync (empty disables)")
	flag.BoolVar(&cfg.Sync.RunOnStart, "sync-on-start", false, "Run a sync in the background at startup")
	flag.BoolVar(&cfg.Sync.RunOnce, "sync-once", false, "Run one sync and exit")
	flag.StringVar(&cfg.Sync.PersonasFile, "personas", "", "Persona seed file (searched for personas.yaml when empty)")

	// Sources
	flag.DurationVar(&cfg.Sources.Timeout, "fetch-timeout", 30*time.Second, "Upstream request timeout")
	flag.IntVar(&cfg.Sources.MaxItems, "max-items", 30, "Maximum items per source")
	flag.StringVar(&cfg.Sources.UserAgent, "user-agent", "", "User agent for upstream requests")
	flag.DurationVar(&cfg.Sources.DetailDelay, "detail-delay", time.Second, "Minimum delay between detail lookups per platform")
	flag.StringVar(&cfg.Sources.BilibiliBaseURL, "bilibili-base-url", "https://api.bilibili.com", "Video platform API base URL")
	flag.StringVar(&cfg.Sources.RSSHubBaseURL, "rsshub-base-url", "https://rsshub.app", "RSSHub base URL used as a fallback")

	// Events
	kafkaBrokers := flag.String("kafka-brokers", "", "Comma-separated Kafka brokers (empty disables events)")
	flag.StringVar(&cfg.Events.KafkaTopic, "kafka-topic", "discovery.sync", "Kafka topic for sync events")

	flag.Parse()

	applyEnvOverrides(cfg, kafkaBrokers)
	cfg.Events.KafkaBrokers = splitList(*kafkaBrokers)

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func applyEnvOverrides(cfg *Config, kafkaBrokers *string) {
	envString("HTTP_ADDR", &cfg.Server.HTTPAddr)
	envDuration("RATE_LIMIT", &cfg.Server.RateLimitDur)
	envDuration("MANUAL_SYNC_WINDOW", &cfg.Server.ManualSyncWindow)
	envBool("ENABLE_MANUAL_SYNC", &cfg.Server.EnableManualSync)

	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envDuration("SNAPSHOT_TTL", &cfg.Cache.SnapshotTTL)
	envString("REDIS_ADDR", &cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	envInt("REDIS_DB", &cfg.Cache.RedisDB)
	envString("CACHE_PREFIX", &cfg.Cache.Prefix)

	envString("DB_HOST", &cfg.Database.Host)
	envInt("DB_PORT", &cfg.Database.Port)
	envString("DB_USER", &cfg.Database.User)
	envString("DB_PASSWORD", &cfg.Database.Password)
	envString("DB_NAME", &cfg.Database.Database)
	envString("DB_SSLMODE", &cfg.Database.SSLMode)

	envString("LOG_LEVEL", &cfg.Logging.Level)

	envString("SYNC_MODE", &cfg.Sync.Mode)
	envString("SYNC_SCHEDULE", &cfg.Sync.Schedule)
	envBool("SYNC_ON_START", &cfg.Sync.RunOnStart)
	envBool("SYNC_ONCE", &cfg.Sync.RunOnce)
	envString("PERSONAS_CONFIG_PATH", &cfg.Sync.PersonasFile)

	envDuration("FETCH_TIMEOUT", &cfg.Sources.Timeout)
	envInt("MAX_ITEMS", &cfg.Sources.MaxItems)
	envString("USER_AGENT", &cfg.Sources.UserAgent)
	envDuration("DETAIL_DELAY", &cfg.Sources.DetailDelay)
	envString("BILIBILI_BASE_URL", &cfg.Sources.BilibiliBaseURL)
	envString("RSSHUB_BASE_URL", &cfg.Sources.RSSHubBaseURL)

	envString("KAFKA_BROKERS", kafkaBrokers)
	envString("KAFKA_TOPIC", &cfg.Events.KafkaTopic)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// envBool accepts true/1 and false/0; anything else leaves dst alone.
func envBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1":
		*dst = true
	case "false", "0":
		*dst = false
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
