// Package push is the surface a platform messaging adapter calls into.
//
// A host adapter (an Android messaging service, an iOS delegate, the pushagent CLI)
// forwards its two callbacks here and owns nothing else.
package push

import (
	"context"
	"log/slog"

	"github.com/tinywideclouds/go-push-registration/pkg/presenter"
	"github.com/tinywideclouds/go-push-registration/pkg/registration"
)

// Handler reacts to platform-delivered push events.
type Handler struct {
	presenter *presenter.Presenter
	registrar *registration.Service
	logger    *slog.Logger
}

func NewHandler(p *presenter.Presenter, r *registration.Service, logger *slog.Logger) *Handler {
	return &Handler{
		presenter: p,
		registrar: r,
		logger:    logger.With("component", "PushHandler"),
	}
}

// OnMessageReceived displays an incoming message.
func (h *Handler) OnMessageReceived(ctx context.Context, payload presenter.Payload) (presenter.Command, error) {
	return h.presenter.Present(ctx, payload)
}

// OnNewToken forwards a rotated token. It never blocks on the network.
func (h *Handler) OnNewToken(token registration.DeviceToken) registration.Outcome {
	outcome := h.registrar.OnTokenRotated(token)
	h.logger.Debug("Token rotation handled", "outcome", outcome.String())
	return outcome
}

// OnUserSignedIn re-registers the device's current token for a user who just signed in.
func (h *Handler) OnUserSignedIn(userID string, token registration.DeviceToken) registration.Outcome {
	outcome := h.registrar.RegisterFor(userID, token)
	h.logger.Debug("Sign-in registration handled", "outcome", outcome.String())
	return outcome
}

// Drain waits for in-flight registrations, for use before host shutdown.
func (h *Handler) Drain(ctx context.Context) error {
	return h.registrar.Wait(ctx)
}
