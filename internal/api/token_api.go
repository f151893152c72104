package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-registration/pkg/dispatch"
)

// maxBodyBytes caps request bodies; subscriptions are the largest payload.
const maxBodyBytes = 64 << 10

type TokenAPI struct {
	Store  dispatch.TokenStore
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.TokenStore, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger.With("component", "TokenAPI"),
	}
}

// --- DOOR A: Mobile (FCM) ---

// RegisterTokenRequest is what the device agent posts after a token rotation.
type RegisterTokenRequest struct {
	UserID   string `json:"userId"`
	FCMToken string `json:"fcmToken"`
}

type registeredResponse struct {
	OK        bool `json:"ok"`
	Persisted bool `json:"persisted"`
}

func (api *TokenAPI) RegisterToken(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req RegisterTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Logger.Debug("RegisterToken: JSON Decode failed", "err", err)
		req = RegisterTokenRequest{}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.FCMToken == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "userId and fcmToken are required")
		return
	}

	if err := api.Store.RegisterFCM(r.Context(), userID, req.FCMToken); err != nil {
		api.Logger.Error("register-token failed", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Failed to register token")
		return
	}

	api.Logger.Debug("RegisterToken: token registered", "user_id", userID)
	writeJSON(w, http.StatusOK, registeredResponse{OK: true, Persisted: true})
}

func (api *TokenAPI) UnregisterToken(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req RegisterTokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		req = RegisterTokenRequest{}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.FCMToken == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "userId and fcmToken are required")
		return
	}

	if err := api.Store.UnregisterFCM(r.Context(), userID, req.FCMToken); err != nil {
		// Unregister stays idempotent for the caller.
		api.Logger.Warn("failed to unregister fcm", "user_id", userID, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- DOOR B: Web (VAPID) ---

type RegisterWebRequest struct {
	UserID       string                       `json:"userId"`
	Subscription dispatch.WebPushSubscription `json:"subscription"`
}

type UnregisterWebRequest struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
}

func (api *TokenAPI) RegisterWebPush(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req RegisterWebRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Logger.Warn("RegisterWebPush: JSON Decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}

	userID := strings.TrimSpace(req.UserID)
	sub := req.Subscription
	if userID == "" || sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "userId and a complete subscription are required")
		return
	}

	if err := api.Store.RegisterWeb(r.Context(), userID, sub); err != nil {
		api.Logger.Error("failed to register web", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "Failed to register subscription")
		return
	}
	api.Logger.Info("RegisterWebPush: Subscription registered", "user_id", userID, "endpoint", sub.Endpoint)

	writeJSON(w, http.StatusOK, registeredResponse{OK: true, Persisted: true})
}

func (api *TokenAPI) UnregisterWebPush(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req UnregisterWebRequest
	if err := decodeBody(w, r, &req); err != nil {
		req = UnregisterWebRequest{}
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || req.Endpoint == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "userId and endpoint are required")
		return
	}

	if err := api.Store.UnregisterWeb(r.Context(), userID, req.Endpoint); err != nil {
		api.Logger.Warn("failed to unregister web", "user_id", userID, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost:
		return true
	case http.MethodOptions:
		// Preflight: CORS headers were already set by the middleware.
		w.WriteHeader(http.StatusOK)
		return false
	}
	w.Header().Set("Allow", http.MethodPost)
	response.WriteJSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	return false
}

// decodeBody reads at most maxBodyBytes of JSON into dst. A failed decode is
// treated by callers as a missing body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
