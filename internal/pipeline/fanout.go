package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// MaxMulticastTokens is the FCM per-request token limit.
const MaxMulticastTokens = 500

var (
	ErrNoRecipients = errors.New("assignedWorkerIds array is required")
	ErrFetchTokens  = errors.New("failed to fetch tokens")
	ErrDispatch     = errors.New("failed to send notifications")
)

// Summary is the aggregate outcome of one fan-out.
type Summary struct {
	Recipients int
	Devices    int
	Sent       int
	Failed     int
	// Removed counts stale registrations deleted after the platforms rejected them.
	Removed int
}

// NoDevices reports whether none of the recipients had a registered device.
func (s Summary) NoDevices() bool { return s.Devices == 0 }

// FanOut resolves workers to their devices and delivers to every one of them.
type FanOut struct {
	fcm       dispatch.Dispatcher
	web       dispatch.WebDispatcher
	store     dispatch.TokenStore
	batchSize int
	logger    *slog.Logger
}

// NewFanOut builds a FanOut. web may be nil when VAPID is not configured; web
// subscriptions are then skipped.
func NewFanOut(fcm dispatch.Dispatcher, web dispatch.WebDispatcher, store dispatch.TokenStore, logger *slog.Logger) *FanOut {
	return &FanOut{
		fcm:       fcm,
		web:       web,
		store:     store,
		batchSize: MaxMulticastTokens,
		logger:    logger.With("component", "FanOut"),
	}
}

// targets collects deduplicated devices and remembers who owns each one.
type targets struct {
	tokens      []string
	tokenOwners map[string][]string
	subs        []dispatch.WebPushSubscription
	subOwners   map[string][]string
}

func (f *FanOut) collect(ctx context.Context, recipients []string) (*targets, error) {
	t := &targets{
		tokenOwners: make(map[string][]string),
		subOwners:   make(map[string][]string),
	}
	for _, userID := range recipients {
		set, err := f.store.Fetch(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w for %s: %w", ErrFetchTokens, userID, err)
		}
		if set == nil {
			continue
		}
		for _, token := range set.FCMTokens {
			if token == "" {
				continue
			}
			if _, seen := t.tokenOwners[token]; !seen {
				t.tokens = append(t.tokens, token)
			}
			t.tokenOwners[token] = append(t.tokenOwners[token], userID)
		}
		for _, sub := range set.WebSubscriptions {
			if sub.Endpoint == "" {
				continue
			}
			if _, seen := t.subOwners[sub.Endpoint]; !seen {
				t.subs = append(t.subs, sub)
			}
			t.subOwners[sub.Endpoint] = append(t.subOwners[sub.Endpoint], userID)
		}
	}
	return t, nil
}

// Deliver sends the assignment notification to every device of every worker.
// It fails with ErrDispatch only when sends were attempted and none succeeded
// because a platform call itself failed.
func (f *FanOut) Deliver(ctx context.Context, assignment dispatch.TaskAssignment) (Summary, error) {
	recipients := assignment.Recipients()
	if len(recipients) == 0 {
		return Summary{}, ErrNoRecipients
	}

	summary := Summary{Recipients: len(recipients)}
	t, err := f.collect(ctx, recipients)
	if err != nil {
		return summary, err
	}

	webSubs := t.subs
	if f.web == nil && len(webSubs) > 0 {
		f.logger.Warn("Web push not configured; skipping subscriptions", "count", len(webSubs))
		webSubs = nil
	}
	summary.Devices = len(t.tokens) + len(webSubs)
	if summary.NoDevices() {
		f.logger.Info("No devices registered for assigned workers", "recipients", len(recipients))
		return summary, nil
	}

	content := TaskContent(assignment)
	data := TaskData(assignment)
	var firstErr error

	for start := 0; start < len(t.tokens); start += f.batchSize {
		end := min(start+f.batchSize, len(t.tokens))
		batch := t.tokens[start:end]

		receipt, err := f.fcm.Dispatch(ctx, batch, content, data)
		if err != nil {
			f.logger.Error("FCM batch failed", "size", len(batch), "err", err)
			summary.Failed += len(batch)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		summary.Sent += receipt.SuccessCount
		summary.Failed += receipt.FailureCount

		for _, token := range receipt.InvalidTokens {
			for _, owner := range t.tokenOwners[token] {
				if err := f.store.UnregisterFCM(ctx, owner, token); err != nil {
					f.logger.Warn("Failed to delete FCM token", "user_id", owner, "err", err)
					continue
				}
				summary.Removed++
			}
		}
	}

	if len(webSubs) > 0 {
		receipt, err := f.web.Dispatch(ctx, webSubs, content, data)
		if err != nil {
			f.logger.Error("Web dispatch failed", "size", len(webSubs), "err", err)
			summary.Failed += len(webSubs)
			if firstErr == nil {
				firstErr = err
			}
		} else {
			summary.Sent += receipt.SuccessCount
			summary.Failed += receipt.FailureCount

			for _, sub := range receipt.InvalidSubscriptions {
				for _, owner := range t.subOwners[sub.Endpoint] {
					if err := f.store.UnregisterWeb(ctx, owner, sub.Endpoint); err != nil {
						f.logger.Warn("Failed to delete web subscription", "user_id", owner, "err", err)
						continue
					}
					summary.Removed++
				}
			}
		}
	}

	if firstErr != nil && summary.Sent == 0 {
		return summary, fmt.Errorf("%w: %w", ErrDispatch, firstErr)
	}

	f.logger.Info("Task notification delivered",
		"task_id", string(assignment.TaskID),
		"sent", summary.Sent,
		"failed", summary.Failed,
		"removed", summary.Removed)
	return summary, nil
}
