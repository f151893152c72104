package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-push-registration/gatewayservice/config"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// pushTTL is how long, in seconds, the push service keeps an undelivered message.
const pushTTL = 60

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg config.VapidConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch sends to each subscription in turn. Per-subscription failures are
// counted in the receipt; expired subscriptions are returned for cleanup.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	subs []dispatch.WebPushSubscription,
	content dispatch.NotificationContent,
	data map[string]string,
) (dispatch.WebReceipt, error) {
	var receipt dispatch.WebReceipt
	if len(subs) == 0 {
		return receipt, nil
	}

	payloadBytes, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": content.Title,
			"body":  content.Body,
		},
		"data": data,
	})
	if err != nil {
		return receipt, fmt.Errorf("failed to marshal payload: %w", err)
	}

	for _, sub := range subs {
		s := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.Keys.P256dh,
				Auth:   sub.Keys.Auth,
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, s, &webpush.Options{
			Subscriber:      d.subscriber,
			VAPIDPublicKey:  d.publicKey,
			VAPIDPrivateKey: d.privateKey,
			TTL:             pushTTL,
			HTTPClient:      d.httpClient,
		})
		if err != nil {
			// Transport or encryption error: keep the subscription.
			d.logger.Error("WebPush send error", "endpoint", sub.Endpoint, "err", err)
			receipt.FailureCount++
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			receipt.SuccessCount++
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			receipt.InvalidSubscriptions = append(receipt.InvalidSubscriptions, sub)
			receipt.FailureCount++
		default:
			d.logger.Warn("WebPush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
			receipt.FailureCount++
		}
	}

	return receipt, nil
}
