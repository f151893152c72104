package pipeline_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Typed Mocks ---

type mockFCMDispatcher struct {
	mock.Mock
}

func (m *mockFCMDispatcher) Dispatch(ctx context.Context, tokens []string, content dispatch.NotificationContent, data map[string]string) (dispatch.Receipt, error) {
	args := m.Called(ctx, tokens, content, data)
	return args.Get(0).(dispatch.Receipt), args.Error(1)
}

type mockWebDispatcher struct {
	mock.Mock
}

func (m *mockWebDispatcher) Dispatch(ctx context.Context, subs []dispatch.WebPushSubscription, content dispatch.NotificationContent, data map[string]string) (dispatch.WebReceipt, error) {
	args := m.Called(ctx, subs, content, data)
	return args.Get(0).(dispatch.WebReceipt), args.Error(1)
}

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceSet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.DeviceSet), args.Error(1)
}
func (m *mockTokenStore) UnregisterFCM(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
func (m *mockTokenStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	return m.Called(ctx, userID, endpoint).Error(0)
}

// Registration is not part of the fan-out path.
func (m *mockTokenStore) RegisterFCM(_ context.Context, _, _ string) error { return nil }
func (m *mockTokenStore) RegisterWeb(_ context.Context, _ string, _ dispatch.WebPushSubscription) error {
	return nil
}

func webSub(endpoint string) dispatch.WebPushSubscription {
	var sub dispatch.WebPushSubscription
	sub.Endpoint = endpoint
	sub.Keys.P256dh = "p256dh-" + endpoint
	sub.Keys.Auth = "auth-" + endpoint
	return sub
}
