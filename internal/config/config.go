package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"finlitbot/internal/usecase"
)

// Config is the full runtime configuration. Values come from Defaults, then
// an optional YAML file, then the environment.
type Config struct {
	Server ServerConfig `yaml:"server"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Links  []LinkConfig `yaml:"links"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	StaticDir         string        `yaml:"static_dir"`
	IndexFile         string        `yaml:"index_file"`
	WebSocketPath     string        `yaml:"websocket_path"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type OpenAIConfig struct {
	// APIKey is only read from OPENAI_API_KEY, never from the file.
	APIKey      string        `yaml:"-"`
	APIKeyParam string        `yaml:"api_key_param"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type LinkConfig struct {
	Keyword string `yaml:"keyword"`
	URL     string `yaml:"url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			StaticDir:         "frontend",
			IndexFile:         "frontend/index.html",
			WebSocketPath:     "/ws",
			MaxMessageBytes:   16 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   500,
			Temperature: 0.7,
		},
		Links: defaultLinks(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultLinks() []LinkConfig {
	defaults := usecase.DefaultLinks()
	out := make([]LinkConfig, 0, len(defaults))
	for _, l := range defaults {
		out = append(out, LinkConfig{Keyword: l.Keyword, URL: l.URL})
	}
	return out
}

// LoadDotEnv loads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadDotEnv() error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	str("OPENAI_API_KEY_PARAM", &cfg.OpenAI.APIKeyParam)
	str("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	str("OPENAI_MODEL", &cfg.OpenAI.Model)
	str("STATIC_DIR", &cfg.Server.StaticDir)
	str("INDEX_FILE", &cfg.Server.IndexFile)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: PORT %q is not a number: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if !strings.HasPrefix(c.Server.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("server.websocket_path: must start with /, got %q", c.Server.WebSocketPath))
	}
	if c.Server.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_message_bytes: must be positive, got %d", c.Server.MaxMessageBytes))
	}
	if c.Server.IndexFile == "" {
		errs = append(errs, errors.New("server.index_file: must not be empty"))
	}
	if err := validateBaseURL(c.OpenAI.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("openai.base_url: %w", err))
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		errs = append(errs, errors.New("openai.model: must not be empty"))
	}
	if c.OpenAI.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("openai.max_tokens: must be positive, got %d", c.OpenAI.MaxTokens))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		errs = append(errs, fmt.Errorf("openai.temperature: must be between 0 and 2, got %v", c.OpenAI.Temperature))
	}
	if c.OpenAI.Timeout < 0 {
		errs = append(errs, errors.New("openai.timeout: must not be negative"))
	}
	if len(c.Links) == 0 {
		errs = append(errs, errors.New("links: at least one link is required"))
	}
	for i, l := range c.Links {
		if strings.TrimSpace(l.Keyword) == "" {
			errs = append(errs, fmt.Errorf("links[%d].keyword: must not be empty", i))
		}
		if err := validateBaseURL(l.URL); err != nil {
			errs = append(errs, fmt.Errorf("links[%d].url: %w", i, err))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func validateBaseURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("must include scheme and host")
	}
	return nil
}
