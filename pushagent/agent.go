// Package pushagent assembles the device side: preferences-backed identity, the
// gateway client, the presenter and the push handler a host adapter drives.
package pushagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/tinywideclouds/go-push-registration/internal/gateway"
	"github.com/tinywideclouds/go-push-registration/internal/identity"
	"github.com/tinywideclouds/go-push-registration/pkg/presenter"
	"github.com/tinywideclouds/go-push-registration/pkg/push"
	"github.com/tinywideclouds/go-push-registration/pkg/registration"
	"github.com/tinywideclouds/go-push-registration/pushagent/config"
)

// Agent is the device-side push handler bound to a preferences-backed identity.
type Agent struct {
	*push.Handler
	prefs  *identity.Preferences
	key    string
	logger *slog.Logger
}

// New wires an Agent. Extra options are passed through to the registration service.
func New(cfg *config.Config, fs afero.Fs, notifier presenter.Notifier, logger *slog.Logger, opts ...registration.Option) (*Agent, error) {
	client, err := gateway.NewClient(cfg.GatewayURL, cfg.RequestTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	prefs := identity.NewPreferences(fs, cfg.PreferencesPath)
	resolver := identity.NewKeyResolver(prefs, cfg.IdentityKey)

	opts = append([]registration.Option{registration.WithRequestTimeout(cfg.RequestTimeout)}, opts...)
	registrar := registration.New(resolver, client, logger, opts...)

	pres := presenter.New(
		cfg.Presenter(),
		presenter.NewMemoryChannels(),
		presenter.StaticIcons{App: 1},
		presenter.NewClockIDs(),
		notifier,
		logger,
	)

	return &Agent{
		Handler: push.NewHandler(pres, registrar, logger),
		prefs:   prefs,
		key:     cfg.IdentityKey,
		logger:  logger.With("component", "PushAgent"),
	}, nil
}

// SignIn records userID as the current identity. Later rotations register
// for that user; pass the device's current token to OnUserSignedIn to
// register straight away.
func (a *Agent) SignIn(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := a.prefs.Set(a.key, userID); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	a.logger.Info("User signed in", "user_id", userID)
	return nil
}

// SignOut clears the stored identity; later rotations are skipped.
func (a *Agent) SignOut() error {
	if err := a.prefs.Remove(a.key); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	a.logger.Info("User signed out")
	return nil
}

// WriterNotifier renders each Command as one JSON line.
type WriterNotifier struct {
	mu sync.Mutex
	W  io.Writer
}

func (n *WriterNotifier) Notify(_ context.Context, cmd presenter.Command) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return json.NewEncoder(n.W).Encode(cmd)
}
