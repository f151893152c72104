// Package config assembles the push gateway configuration from the embedded
// YAML file, a .env file and environment variables, in increasing priority.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendSqlite    = "sqlite"

	defaultListenAddr = ":5050"
	defaultSqliteDSN  = "push-gateway.db"
	defaultRedisTTL   = 24 * time.Hour
	defaultMemoryTTL  = 5 * time.Minute
)

type TokenStoreConfig struct {
	Backend string
	DSN     string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type MemoryCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

// Enabled reports whether both VAPID keys are present.
func (v VapidConfig) Enabled() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// RateLimitConfig is per client IP. A non-positive RPS disables limiting.
type RateLimitConfig struct {
	RPS        float64
	Burst      int
	TrustProxy bool
}

func (r RateLimitConfig) Enabled() bool { return r.RPS > 0 }

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig  middleware.CorsConfig
	TokenStore  TokenStoreConfig
	Redis       RedisConfig
	MemoryCache MemoryCacheConfig
	Vapid       VapidConfig
	RateLimit   RateLimitConfig

	FirebaseCredentialsFile string

	// PubsubConsumerConfig is nil when no subscription is configured; the
	// gateway then serves HTTP only.
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Token store
	if val := os.Getenv("TOKEN_STORE_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "TOKEN_STORE_BACKEND", "source", "env")
		cfg.TokenStore.Backend = strings.ToLower(strings.TrimSpace(val))
	}
	if val := os.Getenv("DATABASE_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "DATABASE_URL", "source", "env")
		cfg.TokenStore.DSN = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}
	if val := os.Getenv("MEMORY_CACHE_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.MemoryCache.Enabled = enabled
	}

	// VAPID Overrides
	if val := os.Getenv("VAPID_PUBLIC_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PUBLIC_KEY", "source", "env")
		cfg.Vapid.PublicKey = val
	}
	if val := os.Getenv("VAPID_PRIVATE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PRIVATE_KEY", "source", "env")
		cfg.Vapid.PrivateKey = val
	}
	if val := os.Getenv("VAPID_SUB_EMAIL"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_SUB_EMAIL", "source", "env")
		cfg.Vapid.SubscriberEmail = val
	}

	// Rate limit
	if val := os.Getenv("RATE_LIMIT_RPS"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.RateLimit.RPS = rps
		}
	}
	if val := os.Getenv("RATE_LIMIT_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil {
			cfg.RateLimit.Burst = burst
		}
	}

	// Firebase credentials: the dedicated variable wins over ADC's.
	if val := os.Getenv("FIREBASE_SERVICE_ACCOUNT"); val != "" {
		cfg.FirebaseCredentialsFile = val
	} else if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" && cfg.FirebaseCredentialsFile == "" {
		cfg.FirebaseCredentialsFile = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.TokenStore.Backend == "" {
		cfg.TokenStore.Backend = BackendFirestore
	}
	switch cfg.TokenStore.Backend {
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("project_id is required for the firestore token store (set via YAML or PROJECT_ID env var)")
		}
	case BackendPostgres:
		if cfg.TokenStore.DSN == "" {
			return nil, fmt.Errorf("token_store.dsn is required for postgres (set via YAML or DATABASE_URL env var)")
		}
	case BackendSqlite:
		if cfg.TokenStore.DSN == "" {
			cfg.TokenStore.DSN = defaultSqliteDSN
		}
	default:
		return nil, fmt.Errorf("unknown token_store.backend %q (want firestore, postgres or sqlite)", cfg.TokenStore.Backend)
	}

	if cfg.SubscriptionID != "" && cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required when subscription_id is set")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.RateLimit.Enabled() && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = max(1, int(cfg.RateLimit.RPS))
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = defaultRedisTTL
	}
	if cfg.MemoryCache.TTL <= 0 {
		cfg.MemoryCache.TTL = defaultMemoryTTL
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully",
		"token_store", cfg.TokenStore.Backend,
		"pipeline", cfg.PubsubConsumerConfig != nil)
	return cfg, nil
}
