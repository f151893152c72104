package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// AndroidChannelID matches the channel the device presenter creates.
const AndroidChannelID = "task_channel"

// MessagingClient defines the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends one multicast. Callers keep batches at or under the FCM
// multicast limit.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content dispatch.NotificationContent, data map[string]string) (dispatch.Receipt, error) {
	if len(tokens) == 0 {
		return dispatch.Receipt{}, nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Android: &messaging.AndroidConfig{
			Notification: &messaging.AndroidNotification{
				ChannelID: AndroidChannelID,
			},
		},
	}

	br, err := d.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		// A batch the API refuses outright will never succeed; count it as failed.
		if messaging.IsInvalidArgument(err) {
			d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "tokens", len(tokens), "err", err)
			return dispatch.Receipt{FailureCount: len(tokens)}, nil
		}
		return dispatch.Receipt{}, fmt.Errorf("fcm transport failed: %w", err)
	}

	receipt := dispatch.Receipt{
		SuccessCount: br.SuccessCount,
		FailureCount: br.FailureCount,
	}

	if br.FailureCount > 0 {
		for idx, resp := range br.Responses {
			if resp.Success || idx >= len(tokens) {
				continue
			}

			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				receipt.InvalidTokens = append(receipt.InvalidTokens, tokens[idx])
				continue
			}

			d.logger.Warn("FCM send failed for token", "index", idx, "err", resp.Error)
		}
	}

	d.logger.Debug("FCM multicast complete",
		"success", receipt.SuccessCount,
		"failure", receipt.FailureCount,
		"invalid", len(receipt.InvalidTokens))
	return receipt, nil
}
