package web_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-registration/gatewayservice/config"
	"github.com/tinywideclouds/go-push-registration/internal/platform/web"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// newBrowserSubscription builds a subscription with real client keys so the
// payload encryption succeeds.
func newBrowserSubscription(t *testing.T, endpoint string) dispatch.WebPushSubscription {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	var sub dispatch.WebPushSubscription
	sub.Endpoint = endpoint
	sub.Keys.P256dh = base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes())
	sub.Keys.Auth = base64.RawURLEncoding.EncodeToString(auth)
	return sub
}

func newTestDispatcher(t *testing.T) *web.Dispatcher {
	t.Helper()
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	return web.NewDispatcher(config.VapidConfig{
		PrivateKey:      privateKey,
		PublicKey:       publicKey,
		SubscriberEmail: "mailto:test-runner@tinywideclouds.com",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestDispatch_Lifecycle(t *testing.T) {
	var authHeaders atomic.Int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Authorization"), "vapid ") {
			authHeaders.Add(1)
		}
		_, _ = io.Copy(io.Discard, r.Body)

		switch r.URL.Path {
		case "/success":
			w.WriteHeader(http.StatusCreated)
		case "/expired":
			w.WriteHeader(http.StatusGone)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer mockServer.Close()

	dispatcher := newTestDispatcher(t)
	ctx := context.Background()
	content := dispatch.NotificationContent{Title: "New Task Assigned", Body: "You have a new task!"}
	data := map[string]string{"type": "task_assigned"}

	validSub := newBrowserSubscription(t, mockServer.URL+"/success")
	expiredSub := newBrowserSubscription(t, mockServer.URL+"/expired")
	errorSub := newBrowserSubscription(t, mockServer.URL+"/error")
	missingSub := newBrowserSubscription(t, mockServer.URL+"/missing")

	receipt, err := dispatcher.Dispatch(ctx, []dispatch.WebPushSubscription{validSub, expiredSub, errorSub, missingSub}, content, data)

	require.NoError(t, err)
	assert.Equal(t, 1, receipt.SuccessCount)
	assert.Equal(t, 3, receipt.FailureCount)
	require.Len(t, receipt.InvalidSubscriptions, 2)
	assert.Equal(t, expiredSub.Endpoint, receipt.InvalidSubscriptions[0].Endpoint)
	assert.Equal(t, missingSub.Endpoint, receipt.InvalidSubscriptions[1].Endpoint)
	assert.Equal(t, int32(4), authHeaders.Load())
}

func TestDispatch_TransportErrorKeepsSubscription(t *testing.T) {
	closed := httptest.NewServer(http.NotFoundHandler())
	endpoint := closed.URL + "/gone-away"
	closed.Close()

	dispatcher := newTestDispatcher(t)
	receipt, err := dispatcher.Dispatch(context.Background(),
		[]dispatch.WebPushSubscription{newBrowserSubscription(t, endpoint)},
		dispatch.NotificationContent{Title: "t"}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, receipt.FailureCount)
	assert.Empty(t, receipt.InvalidSubscriptions)
}

func TestDispatch_NoSubscriptions(t *testing.T) {
	receipt, err := newTestDispatcher(t).Dispatch(context.Background(), nil, dispatch.NotificationContent{}, nil)
	require.NoError(t, err)
	assert.Equal(t, dispatch.WebReceipt{}, receipt)
}
