package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-registration/pkg/presenter"
	"github.com/tinywideclouds/go-push-registration/pkg/registration"
	"github.com/tinywideclouds/go-push-registration/pushagent"
	"github.com/tinywideclouds/go-push-registration/pushagent/config"
)

//go:embed agent.yaml
var configFile []byte

// drainTimeout bounds how long the CLI waits for background registrations.
const drainTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "push-agent")
	slog.SetDefault(logger)

	if err := newRootCmd(logger).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	var agent *pushagent.Agent

	root := &cobra.Command{
		Use:          "pushagent",
		Short:        "Device-side push handler: displays notifications and registers rotated tokens",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			agent, err = pushagent.New(cfg, afero.NewOsFs(), &pushagent.WriterNotifier{W: cmd.OutOrStdout()}, logger)
			return err
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			return agent.Drain(ctx)
		},
	}

	rotate := &cobra.Command{
		Use:   "rotate TOKEN",
		Short: "Simulate a token rotation callback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome := agent.OnNewToken(registration.DeviceToken{Value: args[0], IssuedAt: time.Now()})
			fmt.Fprintln(cmd.OutOrStdout(), outcome.String())
			return nil
		},
	}

	var title, body string
	display := &cobra.Command{
		Use:   "display",
		Short: "Simulate an incoming push message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var payload presenter.Payload
			if cmd.Flags().Changed("title") {
				payload.Title = &title
			}
			if cmd.Flags().Changed("body") {
				payload.Body = &body
			}
			_, err := agent.OnMessageReceived(cmd.Context(), payload)
			return err
		},
	}
	display.Flags().StringVar(&title, "title", "", "notification title (default title when omitted)")
	display.Flags().StringVar(&body, "body", "", "notification body (default body when omitted)")

	var token string
	signin := &cobra.Command{
		Use:   "signin USER_ID",
		Short: "Store the signed-in user and re-register the current token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := agent.SignIn(args[0]); err != nil {
				return err
			}
			if !cmd.Flags().Changed("token") {
				fmt.Fprintln(cmd.OutOrStdout(), "signed_in")
				return nil
			}
			outcome := agent.OnUserSignedIn(args[0], registration.DeviceToken{Value: token, IssuedAt: time.Now()})
			fmt.Fprintln(cmd.OutOrStdout(), outcome.String())
			return nil
		},
	}
	signin.Flags().StringVar(&token, "token", "", "device token to register for the user")

	signout := &cobra.Command{
		Use:   "signout",
		Short: "Forget the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return agent.SignOut()
		},
	}

	root.AddCommand(rotate, display, signin, signout)
	return root
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedded yaml config: %w", err)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		return nil, err
	}
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}
