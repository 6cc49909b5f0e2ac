// Package bootstrap assembles the server from a loaded configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"finlitbot/handler"
	"finlitbot/internal/config"
	"finlitbot/internal/integrations/openai"
	"finlitbot/internal/integrations/paramstore"
	"finlitbot/internal/registry"
	"finlitbot/internal/usecase"
)

// App owns every long-lived component of one server instance.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	llm      *openai.Client
	registry *registry.Registry
	handler  *handler.Handler
	server   *http.Server
}

// NewApp wires logger, OpenAI client, relay, registry and handler in that
// order. The AWS config is only loaded when the key comes from Parameter Store.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	return newApp(ctx, cfg, os.Stdout)
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config must not be nil")
	}
	logger := initLogger(cfg.Log, logOut)

	opts := []openai.Option{
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.OpenAI.Timeout}),
	}
	if cfg.OpenAI.APIKey == "" && cfg.OpenAI.APIKeyParam != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		store, err := paramstore.New(ssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("init paramstore: %w", err)
		}
		opts = append(opts, openai.WithParamStore(store, cfg.OpenAI.APIKeyParam))
	}
	if cfg.OpenAI.APIKey == "" && cfg.OpenAI.APIKeyParam == "" {
		logger.Warn("OPENAI_API_KEY is not set; chat requests will return error results")
	}
	llm, err := openai.NewClient(cfg.OpenAI.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	links := make([]usecase.Link, 0, len(cfg.Links))
	for _, l := range cfg.Links {
		links = append(links, usecase.Link{Keyword: l.Keyword, URL: l.URL})
	}
	table, err := usecase.NewLinkTable(links)
	if err != nil {
		return nil, fmt.Errorf("init link table: %w", err)
	}

	relay, err := usecase.NewRelayService(llm, usecase.RelayConfig{
		Model:          cfg.OpenAI.Model,
		MaxTokens:      cfg.OpenAI.MaxTokens,
		Temperature:    cfg.OpenAI.Temperature,
		TemperatureSet: true,
		Links:          table,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init relay: %w", err)
	}

	reg := registry.New(logger)
	h, err := handler.NewHandler(relay, reg, handler.Config{
		StaticDir:       cfg.Server.StaticDir,
		IndexFile:       cfg.Server.IndexFile,
		WebSocketPath:   cfg.Server.WebSocketPath,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init handler: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		llm:      llm,
		registry: reg,
		handler:  h,
		server:   server,
	}, nil
}

func (a *App) Logger() *slog.Logger { return a.logger }

// Handler exposes the handler for the Lambda entry point.
func (a *App) Handler() *handler.Handler { return a.handler }

// Check verifies that the configured credential is accepted upstream.
func (a *App) Check(ctx context.Context) error {
	return a.llm.Ping(ctx)
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		_ = a.registry.Close()
		return fmt.Errorf("listen %s: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln. When ctx is cancelled the server drains
// in-flight requests within the shutdown timeout and then closes every open
// real-time channel.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", "addr", ln.Addr().String(), "websocket_path", a.cfg.Server.WebSocketPath)
		errCh <- a.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		closeErr := a.registry.Close()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return errors.Join(err, closeErr)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := a.server.Shutdown(shutdownCtx)
	closeErr := a.registry.Close()
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		shutdownErr = errors.Join(shutdownErr, serveErr)
	}
	return errors.Join(shutdownErr, closeErr)
}

func initLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return slog.New(h)
}
