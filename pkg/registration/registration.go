// Package registration forwards rotated device push tokens to the Push Gateway.
//
// The service never blocks the platform callback that delivers a rotation and never
// surfaces a delivery failure to it; outcomes of the outbound call are logged.
package registration

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DeviceToken is the opaque push token issued by the platform messaging SDK.
type DeviceToken struct {
	Value string
	// IssuedAt is informational only (logged as token age).
	IssuedAt time.Time
}

// Valid reports whether the token carries a non-blank value.
func (t DeviceToken) Valid() bool {
	return strings.TrimSpace(t.Value) != ""
}

// RegistrationRequest is the wire body sent to the gateway.
type RegistrationRequest struct {
	UserID   string `json:"userId"`
	FCMToken string `json:"fcmToken"`
}

// IdentityResolver supplies the currently signed-in user.
// ok is false when nobody is signed in.
type IdentityResolver interface {
	CurrentUserID(ctx context.Context) (userID string, ok bool, err error)
}

// Gateway performs the outbound registration call.
// Implementations return *Error for delivery failures.
type Gateway interface {
	Register(ctx context.Context, req RegistrationRequest) error
}

// Outcome is the synchronous result of a rotation event.
type Outcome int

const (
	// OutcomeDispatched means one registration call was started in the background.
	OutcomeDispatched Outcome = iota
	// OutcomeSkippedNoIdentity means nobody is signed in; registration waits for the next trigger.
	OutcomeSkippedNoIdentity
	// OutcomeInvalidToken means the token was empty or blank.
	OutcomeInvalidToken
	// OutcomeIdentityUnavailable means the identity store could not be read.
	OutcomeIdentityUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeSkippedNoIdentity:
		return "skipped_no_identity"
	case OutcomeInvalidToken:
		return "invalid_token"
	case OutcomeIdentityUnavailable:
		return "identity_unavailable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrorKind classifies a failed registration call.
type ErrorKind int

const (
	// KindNetworkFailure covers refused connections, DNS failures and timeouts.
	KindNetworkFailure ErrorKind = iota + 1
	// KindGatewayRejected is any non-2xx response.
	KindGatewayRejected
	// KindEncoding means the request could not be built.
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetworkFailure:
		return "network_failure"
	case KindGatewayRejected:
		return "gateway_rejected"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Error is returned by Gateway implementations.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindGatewayRejected:
		return fmt.Sprintf("gateway rejected registration: status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("registration %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("registration %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Result describes a finished background registration attempt.
type Result struct {
	RequestID string
	Request   RegistrationRequest
	Duration  time.Duration
	Err       error
}
