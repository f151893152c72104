package config

import (
	"log/slog"
	"time"
)

type YamlChannelConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Importance   string `yaml:"importance"`
	EnableLights bool   `yaml:"enable_lights"`
	LightColor   string `yaml:"light_color"`
}

// YamlConfig mirrors the agent's embedded config file.
type YamlConfig struct {
	GatewayURL      string            `yaml:"gateway_url"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
	PreferencesPath string            `yaml:"preferences_path"`
	IdentityKey     string            `yaml:"identity_key"`
	DefaultTitle    string            `yaml:"default_title"`
	DefaultBody     string            `yaml:"default_body"`
	IconName        string            `yaml:"icon_name"`
	Channel         YamlChannelConfig `yaml:"channel"`
}

// NewConfigFromYaml converts the YamlConfig into a base Config.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	cfg := &Config{
		GatewayURL:      baseCfg.GatewayURL,
		RequestTimeout:  baseCfg.RequestTimeout,
		PreferencesPath: baseCfg.PreferencesPath,
		IdentityKey:     baseCfg.IdentityKey,
		DefaultTitle:    baseCfg.DefaultTitle,
		DefaultBody:     baseCfg.DefaultBody,
		IconName:        baseCfg.IconName,
		Channel: ChannelConfig{
			ID:           baseCfg.Channel.ID,
			Name:         baseCfg.Channel.Name,
			Description:  baseCfg.Channel.Description,
			Importance:   baseCfg.Channel.Importance,
			EnableLights: baseCfg.Channel.EnableLights,
			LightColor:   baseCfg.Channel.LightColor,
		},
	}
	logger.Debug("Agent config loaded from YAML", "gateway_url", cfg.GatewayURL)
	return cfg, nil
}
