package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finlitbot/internal/usecase"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "/ws", cfg.Server.WebSocketPath)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	require.Equal(t, 500, cfg.OpenAI.MaxTokens)
	require.InDelta(t, 0.7, cfg.OpenAI.Temperature, 1e-9)
	require.Zero(t, cfg.OpenAI.Timeout)
	require.EqualValues(t, 16<<20, cfg.Server.MaxMessageBytes)
}

func TestDefaults_LinksMatchRelayTable(t *testing.T) {
	cfg := Defaults()
	defaults := usecase.DefaultLinks()
	require.Len(t, cfg.Links, len(defaults))
	for i, l := range defaults {
		require.Equal(t, LinkConfig{Keyword: l.Keyword, URL: l.URL}, cfg.Links[i])
	}
	require.Equal(t, "bank", cfg.Links[0].Keyword)
}

func TestApplyEnv(t *testing.T) {
	cfg := Defaults()
	err := applyEnv(cfg, envMap(map[string]string{
		"OPENAI_API_KEY":       " sk-env ",
		"OPENAI_API_KEY_PARAM": "/finlitbot/openai-key",
		"OPENAI_MODEL":         "gpt-4o",
		"PORT":                 "9001",
		"STATIC_DIR":           "/srv/frontend",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "",
	}))
	require.NoError(t, err)
	require.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	require.Equal(t, "/finlitbot/openai-key", cfg.OpenAI.APIKeyParam)
	require.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, "/srv/frontend", cfg.Server.StaticDir)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format, "empty env values keep the previous value")
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	err := applyEnv(Defaults(), envMap(map[string]string{"PORT": "eighty"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "PORT")
}

func TestApplyEnv_MissingKeyIsNotAnError(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, applyEnv(cfg, envMap(nil)))
	require.Empty(t, cfg.OpenAI.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 8100
  websocket_path: /realtime
  shutdown_timeout: 3s
openai:
  model: gpt-4.1-mini
  max_tokens: 256
  temperature: 0
  timeout: 45s
  api_key: ignored-from-file
links:
  - keyword: Loan
    url: https://example.org/loans
log:
  format: json
`)
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8100, cfg.Server.Port)
	require.Equal(t, "/realtime", cfg.Server.WebSocketPath)
	require.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, "frontend", cfg.Server.StaticDir, "unset fields keep defaults")
	require.Equal(t, "gpt-4.1-mini", cfg.OpenAI.Model)
	require.Equal(t, 256, cfg.OpenAI.MaxTokens)
	require.Zero(t, cfg.OpenAI.Temperature)
	require.Equal(t, 45*time.Second, cfg.OpenAI.Timeout)
	require.Empty(t, cfg.OpenAI.APIKey)
	require.Equal(t, []LinkConfig{{Keyword: "Loan", URL: "https://example.org/loans"}}, cfg.Links)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  port: 8100\n")
	t.Setenv("PORT", "8200")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8200, cfg.Server.Port)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "0.0.0.0:8000", cfg.Addr())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read file")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "server: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse file")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	cfg.Server.WebSocketPath = "ws"
	cfg.Server.MaxMessageBytes = 0
	cfg.OpenAI.BaseURL = "api.openai.com"
	cfg.OpenAI.MaxTokens = 0
	cfg.OpenAI.Temperature = 2.5
	cfg.Links = []LinkConfig{{Keyword: "", URL: "nope"}}
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{
		"server.port", "server.websocket_path", "server.max_message_bytes", "openai.base_url", "openai.max_tokens",
		"openai.temperature", "links[0].keyword", "links[0].url", "log.format",
	} {
		require.Contains(t, err.Error(), field)
	}
}

func TestValidate_RequiresLinks(t *testing.T) {
	cfg := Defaults()
	cfg.Links = nil
	require.ErrorContains(t, cfg.Validate(), "at least one link")
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, LoadDotEnv())
}
