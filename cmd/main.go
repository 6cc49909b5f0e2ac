package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"finlitbot/internal/bootstrap"
	"finlitbot/internal/config"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	root := &cobra.Command{
		Use:           "finlitbot",
		Short:         "FinLit Bot: financial literacy chat relay",
		Long:          "FinLit Bot relays chat messages to OpenAI and appends official resource links for common financial topics.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to an optional YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(lambdaCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}
}

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve /api/chat and /health as an API Gateway Lambda handler",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(context.Background())
			if err != nil {
				return err
			}
			lambda.Start(app.Handler().Handle)
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the OpenAI credential and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			app, err := newApp(ctx)
			if err != nil {
				return err
			}
			if err := app.Check(ctx); err != nil {
				return fmt.Errorf("openai check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OpenAI: OK")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the upstream")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "finlitbot", version)
		},
	}
}

func newApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(app.Logger())
	return app, nil
}
