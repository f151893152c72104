// Package dispatch holds the gateway's domain types and the contracts between
// its storage, platform and pipeline components.
package dispatch

import (
	"context"
)

// NotificationContent is the user-visible part of a notification.
type NotificationContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WebPushSubscription is a browser PushSubscription as serialized by toJSON().
// Keys are base64url strings.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint" firestore:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh" firestore:"p256dh"`
		Auth   string `json:"auth" firestore:"auth"`
	} `json:"keys" firestore:"keys"`
}

// DeviceSet is every registered delivery target for one user.
type DeviceSet struct {
	UserID           string                `json:"userId"`
	FCMTokens        []string              `json:"fcmTokens"`
	WebSubscriptions []WebPushSubscription `json:"webSubscriptions"`
}

// Empty reports whether the user has no devices.
func (d *DeviceSet) Empty() bool {
	return d == nil || (len(d.FCMTokens) == 0 && len(d.WebSubscriptions) == 0)
}

// Receipt summarizes an FCM dispatch.
type Receipt struct {
	SuccessCount int
	FailureCount int
	// InvalidTokens were rejected as unregistered or malformed and should be removed.
	InvalidTokens []string
}

// WebReceipt summarizes a web push dispatch.
type WebReceipt struct {
	SuccessCount         int
	FailureCount         int
	InvalidSubscriptions []WebPushSubscription
}

// Dispatcher sends to FCM registration tokens.
type Dispatcher interface {
	// Dispatch returns an error only when the whole batch could not be sent.
	Dispatch(ctx context.Context, tokens []string, content NotificationContent, data map[string]string) (Receipt, error)
}

// WebDispatcher sends to browser push subscriptions.
type WebDispatcher interface {
	Dispatch(ctx context.Context, subs []WebPushSubscription, content NotificationContent, data map[string]string) (WebReceipt, error)
}

// TokenStore defines the contract for managing user device tokens.
// Register calls are upserts; Unregister of an unknown entry is not an error.
type TokenStore interface {
	RegisterFCM(ctx context.Context, userID, token string) error
	UnregisterFCM(ctx context.Context, userID, token string) error
	RegisterWeb(ctx context.Context, userID string, sub WebPushSubscription) error
	UnregisterWeb(ctx context.Context, userID, endpoint string) error

	// Fetch returns the user's devices; an unknown user yields an empty set.
	Fetch(ctx context.Context, userID string) (*DeviceSet, error)
}

// WebClaimer is implemented by stores that keep a single owner per browser
// endpoint. ClaimWeb registers sub for userID and returns the user it was taken
// from, or "" when the endpoint was new or already owned by userID.
type WebClaimer interface {
	ClaimWeb(ctx context.Context, userID string, sub WebPushSubscription) (previousOwner string, err error)
}
