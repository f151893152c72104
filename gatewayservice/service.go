// Package gatewayservice assembles the push gateway: the HTTP registration and
// notify endpoints plus the optional Pub/Sub fan-out pipeline.
package gatewayservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-push-registration/gatewayservice/config"
	"github.com/tinywideclouds/go-push-registration/internal/api"
	"github.com/tinywideclouds/go-push-registration/internal/pipeline"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

type Wrapper struct {
	*microservice.BaseServer
	// pipelineService is nil when the gateway runs without a subscription.
	pipelineService *messagepipeline.StreamingService[dispatch.TaskAssignment]
	logger          *slog.Logger
}

// New assembles the service. consumer may be nil for an HTTP-only gateway and
// webDispatcher may be nil when VAPID keys are not configured.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	fcmDispatcher dispatch.Dispatcher,
	webDispatcher dispatch.WebDispatcher,
	tokenStore dispatch.TokenStore,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Fan-out shared by HTTP and Pub/Sub
	fanOut := pipeline.NewFanOut(fcmDispatcher, webDispatcher, tokenStore, logger)

	// 3. Pipeline
	var streamingService *messagepipeline.StreamingService[dispatch.TaskAssignment]
	if consumer != nil {
		var err error
		streamingService, err = messagepipeline.NewStreamingService[dispatch.TaskAssignment](
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.TaskAssignmentTransformer,
			pipeline.NewProcessor(fanOut, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 4. API
	tokenAPI := api.NewTokenAPI(tokenStore, logger)
	notifyAPI := api.NewNotifyAPI(fanOut, logger)

	cors := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	mws := []api.Middleware{func(next http.Handler) http.Handler { return cors(next) }}
	if cfg.RateLimit.Enabled() {
		limiter := api.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst, cfg.RateLimit.TrustProxy)
		mws = append(mws, limiter.Middleware)
	}
	api.Mount(baseServer.Mux(), tokenAPI, notifyAPI, mws...)

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger.With("component", "GatewayService"),
	}, nil
}

// HasPipeline reports whether a Pub/Sub consumer was wired in.
func (w *Wrapper) HasPipeline() bool { return w.pipelineService != nil }

// Start blocks serving HTTP until the server is shut down.
func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Core processing pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
