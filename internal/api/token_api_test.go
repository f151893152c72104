package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-registration/internal/api"
	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// --- Mocks ---
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) RegisterFCM(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
func (m *MockTokenStore) RegisterWeb(ctx context.Context, userID string, sub dispatch.WebPushSubscription) error {
	return m.Called(ctx, userID, sub).Error(0)
}
func (m *MockTokenStore) UnregisterFCM(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
func (m *MockTokenStore) UnregisterWeb(ctx context.Context, userID, endpoint string) error {
	return m.Called(ctx, userID, endpoint).Error(0)
}
func (m *MockTokenStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceSet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dispatch.DeviceSet), args.Error(1)
}

// --- Setup ---
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupAPI(t *testing.T) (*api.TokenAPI, *MockTokenStore) {
	t.Helper()
	mockStore := new(MockTokenStore)
	return api.NewTokenAPI(mockStore, newTestLogger()), mockStore
}

func postJSON(t *testing.T, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
}

// --- Tests ---

func TestRegisterToken(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		req := postJSON(t, "/register-token", map[string]string{"userId": "worker-1", "fcmToken": "fcm-token-abc"})
		w := httptest.NewRecorder()

		mockStore.On("RegisterFCM", mock.Anything, "worker-1", "fcm-token-abc").Return(nil).Once()

		apiHandler.RegisterToken(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true,"persisted":true}`, w.Body.String())
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects missing fields", func(t *testing.T) {
		for _, payload := range []map[string]string{
			{"userId": "worker-1"},
			{"fcmToken": "abc"},
			{"userId": "  ", "fcmToken": "abc"},
			{},
		} {
			apiHandler, mockStore := setupAPI(t)
			w := httptest.NewRecorder()

			apiHandler.RegisterToken(w, postJSON(t, "/register-token", payload))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "userId and fcmToken are required")
			mockStore.AssertNotCalled(t, "RegisterFCM", mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("Malformed body is a missing field", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		w := httptest.NewRecorder()

		apiHandler.RegisterToken(w, httptest.NewRequest(http.MethodPost, "/register-token", bytes.NewBufferString("{nope")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Store failure", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		mockStore.On("RegisterFCM", mock.Anything, "worker-1", "abc").Return(errors.New("db down"))
		w := httptest.NewRecorder()

		apiHandler.RegisterToken(w, postJSON(t, "/register-token", map[string]string{"userId": "worker-1", "fcmToken": "abc"}))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "Failed to register token")
	})

	t.Run("Wrong method", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		w := httptest.NewRecorder()

		apiHandler.RegisterToken(w, httptest.NewRequest(http.MethodGet, "/register-token", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	})
}

func TestUnregisterToken(t *testing.T) {
	t.Run("Idempotent on store error", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		mockStore.On("UnregisterFCM", mock.Anything, "worker-1", "abc").Return(errors.New("gone")).Once()
		w := httptest.NewRecorder()

		apiHandler.UnregisterToken(w, postJSON(t, "/unregister-token", map[string]string{"userId": "worker-1", "fcmToken": "abc"}))

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})
}

func TestRegisterWebPush(t *testing.T) {
	var validSub dispatch.WebPushSubscription
	validSub.Endpoint = "https://fcm.googleapis.com/fcm/send/xyz"
	validSub.Keys.P256dh = "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM"
	validSub.Keys.Auth = "tBHItJI5svbpez7KI4CCXg"

	t.Run("Success", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		mockStore.On("RegisterWeb", mock.Anything, "worker-1", validSub).Return(nil).Once()
		w := httptest.NewRecorder()

		apiHandler.RegisterWebPush(w, postJSON(t, "/register-web-push", map[string]any{
			"userId":       "worker-1",
			"subscription": validSub,
		}))

		assert.Equal(t, http.StatusOK, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Rejects incomplete subscription", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		partial := validSub
		partial.Keys.Auth = ""
		w := httptest.NewRecorder()

		apiHandler.RegisterWebPush(w, postJSON(t, "/register-web-push", map[string]any{
			"userId":       "worker-1",
			"subscription": partial,
		}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockStore.AssertNotCalled(t, "RegisterWeb", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unregister", func(t *testing.T) {
		apiHandler, mockStore := setupAPI(t)
		mockStore.On("UnregisterWeb", mock.Anything, "worker-1", validSub.Endpoint).Return(nil).Once()
		w := httptest.NewRecorder()

		apiHandler.UnregisterWebPush(w, postJSON(t, "/unregister-web-push", map[string]string{
			"userId":   "worker-1",
			"endpoint": validSub.Endpoint,
		}))

		assert.Equal(t, http.StatusNoContent, w.Code)
		mockStore.AssertExpectations(t)
	})

	t.Run("Unregister requires endpoint", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		w := httptest.NewRecorder()

		apiHandler.UnregisterWebPush(w, postJSON(t, "/unregister-web-push", map[string]string{"userId": "worker-1"}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
