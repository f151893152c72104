package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlTokenStoreConfig struct {
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type YamlRedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
}

type YamlMemoryCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
}

type YamlRateLimitConfig struct {
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	TrustProxy bool    `yaml:"trust_proxy"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID               string                `yaml:"project_id"`
	ListenAddr              string                `yaml:"listen_addr"`
	TopicID                 string                `yaml:"topic_id"`
	SubscriptionID          string                `yaml:"subscription_id"`
	SubscriptionDLQTopicID  string                `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers      int                   `yaml:"num_pipeline_workers"`
	CorsConfig              YamlCorsConfig        `yaml:"cors"`
	TokenStore              YamlTokenStoreConfig  `yaml:"token_store"`
	RedisConfig             YamlRedisConfig       `yaml:"redis"`
	MemoryCache             YamlMemoryCacheConfig `yaml:"memory_cache"`
	VapidConfig             YamlVapidConfig       `yaml:"vapid"`
	RateLimit               YamlRateLimitConfig   `yaml:"rate_limit"`
	FirebaseCredentialsFile string                `yaml:"firebase_credentials_file"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ProjectID:              baseCfg.ProjectID,
		ListenAddr:             baseCfg.ListenAddr,
		TopicID:                baseCfg.TopicID,
		SubscriptionID:         baseCfg.SubscriptionID,
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		TokenStore: TokenStoreConfig{
			Backend: baseCfg.TokenStore.Backend,
			DSN:     baseCfg.TokenStore.DSN,
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      baseCfg.RedisConfig.TTL,
		},
		MemoryCache: MemoryCacheConfig{
			Enabled: baseCfg.MemoryCache.Enabled,
			TTL:     baseCfg.MemoryCache.TTL,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
		},
		RateLimit: RateLimitConfig{
			RPS:        baseCfg.RateLimit.RPS,
			Burst:      baseCfg.RateLimit.Burst,
			TrustProxy: baseCfg.RateLimit.TrustProxy,
		},
		FirebaseCredentialsFile: baseCfg.FirebaseCredentialsFile,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"token_store", cfg.TokenStore.Backend,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
