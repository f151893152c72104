// Package config loads the device agent's settings: where the gateway lives,
// where the signed-in identity is read from, and the notification defaults.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tinywideclouds/go-push-registration/internal/identity"
	"github.com/tinywideclouds/go-push-registration/pkg/presenter"
)

const (
	// DefaultGatewayURL is the host loopback as seen from the Android emulator.
	DefaultGatewayURL      = "http://10.0.2.2:5050"
	DefaultRequestTimeout  = 10 * time.Second
	DefaultPreferencesPath = "preferences.json"
)

type ChannelConfig struct {
	ID           string
	Name         string
	Description  string
	Importance   string
	EnableLights bool
	LightColor   string
}

// Config is the validated agent configuration.
type Config struct {
	GatewayURL      string
	RequestTimeout  time.Duration
	PreferencesPath string
	IdentityKey     string

	DefaultTitle string
	DefaultBody  string
	IconName     string
	Channel      ChannelConfig
}

// Presenter returns the presenter settings. Empty fields are filled by presenter.New.
func (c *Config) Presenter() presenter.Config {
	pc := presenter.Config{
		DefaultTitle: c.DefaultTitle,
		DefaultBody:  c.DefaultBody,
		IconName:     c.IconName,
	}
	if c.Channel.ID != "" {
		pc.Channel = presenter.Channel{
			ID:           c.Channel.ID,
			Name:         c.Channel.Name,
			Description:  c.Channel.Description,
			Importance:   parseImportance(c.Channel.Importance),
			EnableLights: c.Channel.EnableLights,
			LightColor:   c.Channel.LightColor,
		}
	}
	return pc
}

// UpdateConfigWithEnvOverrides applies environment variables, defaults and validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if v := os.Getenv("PUSH_GATEWAY_URL"); v != "" {
		logger.Debug("Overriding config value", "key", "PUSH_GATEWAY_URL", "value", v)
		cfg.GatewayURL = v
	}
	if v := os.Getenv("PUSH_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PUSH_REQUEST_TIMEOUT %q: %w", v, err)
		}
		logger.Debug("Overriding config value", "key", "PUSH_REQUEST_TIMEOUT", "value", d)
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("PREFERENCES_PATH"); v != "" {
		logger.Debug("Overriding config value", "key", "PREFERENCES_PATH", "value", v)
		cfg.PreferencesPath = v
	}
	if v := os.Getenv("IDENTITY_KEY"); v != "" {
		logger.Debug("Overriding config value", "key", "IDENTITY_KEY", "value", v)
		cfg.IdentityKey = v
	}

	// --- Defaults ---
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = DefaultGatewayURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.PreferencesPath == "" {
		cfg.PreferencesPath = DefaultPreferencesPath
	}
	if cfg.IdentityKey == "" {
		cfg.IdentityKey = identity.CurrentUserKey
	}

	// --- Validation ---
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("gateway url must be an absolute http(s) url, got %q", cfg.GatewayURL)
	}

	logger.Debug("Agent configuration finalized", "gateway_url", cfg.GatewayURL, "timeout", cfg.RequestTimeout)
	return cfg, nil
}

func parseImportance(v string) presenter.Importance {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return presenter.ImportanceLow
	case "high":
		return presenter.ImportanceHigh
	default:
		return presenter.ImportanceDefault
	}
}
