package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"

	"github.com/tinywideclouds/go-push-registration/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-registration/internal/platform/web"

	"github.com/tinywideclouds/go-push-registration/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-push-registration/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-registration/internal/storage/gormstore"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"

	"github.com/tinywideclouds/go-push-registration/gatewayservice"
	"github.com/tinywideclouds/go-push-registration/gatewayservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "push-gateway")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Failed to map yaml config", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Token Store ---
	tokenStore, closeStore, err := newTokenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("TokenStore initialization failed", "backend", cfg.TokenStore.Backend, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// --- Cache decoration ---
	switch {
	case cfg.Redis.Enabled:
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		tokenStore = cache.NewCachedTokenStore(tokenStore, redisClient, cfg.Redis.TTL, logger)
		logger.Info("TokenStore upgraded", "type", "redis_cached_"+cfg.TokenStore.Backend)
	case cfg.MemoryCache.Enabled:
		memClient := cache.NewMemoryClient(cfg.MemoryCache.TTL, 2*cfg.MemoryCache.TTL)
		tokenStore = cache.NewCachedTokenStore(tokenStore, memClient, cfg.MemoryCache.TTL, logger)
		logger.Info("TokenStore upgraded", "type", "memory_cached_"+cfg.TokenStore.Backend)
	}

	// --- Dispatchers ---

	// A. Mobile (FCM)
	var fbOpts []option.ClientOption
	if cfg.FirebaseCredentialsFile != "" {
		fbOpts = append(fbOpts, option.WithCredentialsFile(cfg.FirebaseCredentialsFile))
	}
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, fbOpts...)
	if err != nil {
		logger.Error("Failed to initialize Firebase App", "err", err)
		os.Exit(1)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		logger.Error("Failed to create FCM messaging client", "err", err)
		os.Exit(1)
	}
	fcmDispatcher := fcm.NewDispatcher(fcmMessaging, logger)

	// B. Web (VAPID), mobile-only deployments run without it.
	var webDispatcher dispatch.WebDispatcher
	if cfg.Vapid.Enabled() {
		webDispatcher = web.NewDispatcher(cfg.Vapid, logger)
		logger.Info("Web Dispatcher enabled", "public_key", cfg.Vapid.PublicKey)
	} else {
		logger.Warn("VAPID keys missing in configuration. Web subscriptions will be skipped.")
	}

	// --- Consumer ---
	var consumer messagepipeline.MessageConsumer
	if cfg.PubsubConsumerConfig != nil {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("PubSub client failed", "err", err)
			os.Exit(1)
		}
		defer psClient.Close()

		consumer, err = newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			logger.Error("Consumer creation failed", "err", err)
			os.Exit(1)
		}
	} else {
		logger.Info("No subscription configured, serving HTTP only")
	}

	service, err := gatewayservice.New(cfg, consumer, fcmDispatcher, webDispatcher, tokenStore, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service stopped with error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newTokenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.TokenStore, func(), error) {
	switch cfg.TokenStore.Backend {
	case config.BackendFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("firestore client: %w", err)
		}
		logger.Info("TokenStore initialized", "type", "firestore")
		return fsStore.NewFirestoreStore(fsClient), func() { _ = fsClient.Close() }, nil

	case config.BackendPostgres, config.BackendSqlite:
		driver := gormstore.DriverPostgres
		if cfg.TokenStore.Backend == config.BackendSqlite {
			driver = gormstore.DriverSqlite
		}
		// Open migrates the schema.
		db, err := gormstore.Open(driver, cfg.TokenStore.DSN)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("TokenStore initialized", "type", driver)
		return gormstore.NewStore(db), func() { _ = sqlDB.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unsupported token store backend %q", cfg.TokenStore.Backend)
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
