package pluma

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pluma.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/ws", cfg.Server.WSPath)
	assert.Equal(t, 6000, cfg.Dispatcher.TimeoutMS)
	assert.Equal(t, 30000, cfg.Dispatcher.WaitTimeoutMS)
	assert.True(t, cfg.Dispatcher.SerializeBySession)
	assert.Equal(t, plugin.SkipAndWarn, cfg.LoadPolicy())
	assert.Equal(t, 12, cfg.Context.MaxHistory)
	assert.Equal(t, 3, cfg.Context.MaxToolRounds)
	assert.Empty(t, cfg.Functions)
	assert.True(t, cfg.Privacy.RedactPII)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	opts := cfg.DispatchOptions()
	assert.Equal(t, 6*time.Second, opts.Timeout)
	assert.Equal(t, 30*time.Second, opts.WaitTimeout)
}

func TestLoadConfigFileAndEnvExpansion(t *testing.T) {
	t.Setenv("WEATHER_KEY", "secret-key")
	t.Setenv("HOME_NAME", "Ana")
	path := writeConfig(t, `
prompt: "You help ${HOME_NAME}."
functions: [get_greeting, control_device]
loader:
  policy: fail_fast
apology:
  en: "Sorry ${HOME_NAME}."
plugins:
  get_greeting:
    default_name: ${HOME_NAME}
  get_weather:
    base_url: http://weather.local
    api_key: ${WEATHER_KEY}
    tags: [a, "${HOME_NAME}"]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "You help Ana.", cfg.Prompt)
	assert.Equal(t, []string{"get_greeting", "control_device"}, cfg.Functions)
	assert.Equal(t, plugin.FailFast, cfg.LoadPolicy())
	assert.Equal(t, "Sorry Ana.", cfg.Apology["en"])

	weather := cfg.PluginSettings("get_weather")
	assert.Equal(t, "secret-key", weather["api_key"])
	assert.Equal(t, []any{"a", "Ana"}, weather["tags"])
	assert.Equal(t, "Ana", cfg.PluginSettings("get_greeting")["default_name"])
	assert.Nil(t, cfg.PluginSettings("send_sms"))
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PLUMA_DISPATCHER_TIMEOUT_MS", "1500")
	t.Setenv("PLUMA_LOG_LEVEL", "debug")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.Dispatcher.TimeoutMS)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestPluginSettingsReturnsCopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Plugins = map[string]map[string]any{"get_greeting": {"default_name": "Ana"}}
	got := cfg.PluginSettings("get_greeting")
	got["default_name"] = "Budi"
	assert.Equal(t, "Ana", cfg.Plugins["get_greeting"]["default_name"])
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"policy":      func(c *Config) { c.Loader.Policy = "sometimes" },
		"timeout":     func(c *Config) { c.Dispatcher.TimeoutMS = -1 },
		"wait":        func(c *Config) { c.Dispatcher.WaitTimeoutMS = -5 },
		"addr":        func(c *Config) { c.Server.Addr = "localhost" },
		"ws_path":     func(c *Config) { c.Server.WSPath = "ws" },
		"metrics":     func(c *Config) { c.Metrics.Path = "metrics" },
		"sample_rate": func(c *Config) { c.Metrics.LogSampleRate = 2 },
		"log_format":  func(c *Config) { c.LogFormat = "xml" },
		"llm":         func(c *Config) { c.LLM.Provider = "oracle" },
		"timezone":    func(c *Config) { c.Reminder.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.Validate())
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("WEATHER_API_KEY", "wk")
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "pluma.example.yaml"))
	require.NoError(t, err)

	assert.Len(t, cfg.Functions, 8)
	assert.Equal(t, "wk", cfg.PluginSettings("get_weather")["api_key"])
	assert.Equal(t, "Asia/Jakarta", cfg.Reminder.Timezone)
	assert.InDelta(t, 0.1, cfg.Metrics.LogSampleRate, 1e-9)
	assert.False(t, cfg.Server.AllowAnyOrigin)
}
