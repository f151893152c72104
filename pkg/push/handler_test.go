package push_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-registration/internal/gateway"
	"github.com/tinywideclouds/go-push-registration/internal/identity"
	"github.com/tinywideclouds/go-push-registration/pkg/presenter"
	"github.com/tinywideclouds/go-push-registration/pkg/push"
	"github.com/tinywideclouds/go-push-registration/pkg/registration"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu   sync.Mutex
	cmds []presenter.Command
}

func (r *recordingNotifier) Notify(_ context.Context, cmd presenter.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

type fakeGateway struct {
	server *httptest.Server
	mu     sync.Mutex
	bodies []map[string]string
}

func newFakeGateway(t *testing.T, status int) *fakeGateway {
	g := &fakeGateway{}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		g.mu.Lock()
		g.bodies = append(g.bodies, body)
		g.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGateway) received() []map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]string(nil), g.bodies...)
}

func setupHandler(t *testing.T, gatewayURL string, store identity.Store) (*push.Handler, *recordingNotifier, *presenter.MemoryChannels) {
	t.Helper()
	logger := newTestLogger()

	client, err := gateway.NewClient(gatewayURL, time.Second, logger)
	require.NoError(t, err)
	registrar := registration.New(identity.NewKeyResolver(store, ""), client, logger)

	notifier := &recordingNotifier{}
	channels := presenter.NewMemoryChannels()
	p := presenter.New(presenter.DefaultConfig(), channels, presenter.StaticIcons{App: 1}, nil, notifier, logger)

	return push.NewHandler(p, registrar, logger), notifier, channels
}

func drain(t *testing.T, h *push.Handler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Drain(ctx))
}

func TestHandler_TokenRotation(t *testing.T) {
	t.Run("Signed in user is registered", func(t *testing.T) {
		gw := newFakeGateway(t, http.StatusOK)
		store := identity.NewMemory()
		require.NoError(t, store.Set(identity.CurrentUserKey, "worker-1"))
		h, _, _ := setupHandler(t, gw.server.URL, store)

		assert.Equal(t, registration.OutcomeDispatched, h.OnNewToken(registration.DeviceToken{Value: "fcm-1"}))
		drain(t, h)

		assert.Equal(t, []map[string]string{{"userId": "worker-1", "fcmToken": "fcm-1"}}, gw.received())
	})

	t.Run("Signed out device sends nothing", func(t *testing.T) {
		gw := newFakeGateway(t, http.StatusOK)
		h, _, _ := setupHandler(t, gw.server.URL, identity.NewMemory())

		assert.Equal(t, registration.OutcomeSkippedNoIdentity, h.OnNewToken(registration.DeviceToken{Value: "fcm-1"}))
		drain(t, h)
		assert.Empty(t, gw.received())
	})

	t.Run("Rejection is swallowed", func(t *testing.T) {
		gw := newFakeGateway(t, http.StatusInternalServerError)
		store := identity.NewMemory()
		require.NoError(t, store.Set(identity.CurrentUserKey, "worker-1"))
		h, _, _ := setupHandler(t, gw.server.URL, store)

		assert.NotPanics(t, func() { h.OnNewToken(registration.DeviceToken{Value: "fcm-1"}) })
		drain(t, h)
		assert.Len(t, gw.received(), 1)
	})

	t.Run("Sign-in re-triggers registration", func(t *testing.T) {
		gw := newFakeGateway(t, http.StatusOK)
		h, _, _ := setupHandler(t, gw.server.URL, identity.NewMemory())

		assert.Equal(t, registration.OutcomeDispatched, h.OnUserSignedIn("worker-2", registration.DeviceToken{Value: "fcm-2"}))
		drain(t, h)
		assert.Equal(t, []map[string]string{{"userId": "worker-2", "fcmToken": "fcm-2"}}, gw.received())
	})
}

func TestHandler_MessageReceived(t *testing.T) {
	gw := newFakeGateway(t, http.StatusOK)
	h, notifier, channels := setupHandler(t, gw.server.URL, identity.NewMemory())
	ctx := context.Background()

	body := "Go"
	first, err := h.OnMessageReceived(ctx, presenter.Payload{Body: &body})
	require.NoError(t, err)
	second, err := h.OnMessageReceived(ctx, presenter.Payload{})
	require.NoError(t, err)

	assert.Equal(t, "New Task Assigned", first.Title)
	assert.Equal(t, "Go", first.Body)
	assert.Equal(t, "You have a new task!", second.Body)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, first.Icon)

	assert.Len(t, notifier.cmds, 2)
	assert.Len(t, channels.Channels(), 1)
	assert.Empty(t, gw.received())
}
