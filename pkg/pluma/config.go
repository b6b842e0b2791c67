package pluma

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/pluma/pkg/dispatch"
	"github.com/harunnryd/pluma/pkg/plugin"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	// Prompt is the system prompt every new session starts with.
	Prompt   string `mapstructure:"prompt"`
	Language string `mapstructure:"language"`

	Server     ServerConfig     `mapstructure:"server"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Loader     LoaderConfig     `mapstructure:"loader"`
	// Functions lists the tools offered to the model and to outer surfaces.
	// Empty enables every registered tool.
	Functions []string                  `mapstructure:"functions"`
	Plugins   map[string]map[string]any `mapstructure:"plugins"`
	LLM       LLMConfig                 `mapstructure:"llm"`
	Context   ContextConfig             `mapstructure:"context"`
	Apology   map[string]string         `mapstructure:"apology"`
	Privacy   PrivacyConfig             `mapstructure:"privacy"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	MCP       MCPConfig                 `mapstructure:"mcp"`
	Reminder  ReminderConfig            `mapstructure:"reminder"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	WSPath         string   `mapstructure:"ws_path"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	DrainTimeoutMS int      `mapstructure:"drain_timeout_ms"`
}

type DispatcherConfig struct {
	TimeoutMS          int  `mapstructure:"timeout_ms"`
	WaitTimeoutMS      int  `mapstructure:"wait_timeout_ms"`
	SerializeBySession bool `mapstructure:"serialize_by_session"`
}

type LoaderConfig struct {
	Policy string `mapstructure:"policy"`
}

// LLMConfig selects the model behind the conversation loop: "mock" (rule
// based, offline) or "openai" (any OpenAI-compatible endpoint).
type LLMConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ContextConfig struct {
	MaxHistory    int `mapstructure:"max_history"`
	MaxToolRounds int `mapstructure:"max_tool_rounds"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// LogSampleRate is the share of metric events echoed to the log.
	LogSampleRate float64 `mapstructure:"log_sample_rate"`
}

type MCPConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type ReminderConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// LoadConfig reads path (YAML) over the defaults. An empty path loads the
// defaults and environment only. Environment variables prefixed PLUMA_
// override file values (PLUMA_DISPATCHER_TIMEOUT_MS), and ${VAR}
// references inside strings are expanded.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("pluma")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration LoadConfig produces without a file.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("prompt", "You are a helpful home voice assistant. Keep answers short.")
	v.SetDefault("language", "en")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.allow_any_origin", true)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.drain_timeout_ms", 10000)
	v.SetDefault("dispatcher.timeout_ms", int(dispatch.DefaultTimeout/time.Millisecond))
	v.SetDefault("dispatcher.wait_timeout_ms", int(dispatch.DefaultWaitTimeout/time.Millisecond))
	v.SetDefault("dispatcher.serialize_by_session", true)
	v.SetDefault("loader.policy", "skip_and_warn")
	v.SetDefault("functions", []string{})
	v.SetDefault("llm.provider", "mock")
	v.SetDefault("context.max_history", 12)
	v.SetDefault("context.max_tool_rounds", 3)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.log_sample_rate", 0.0)
	v.SetDefault("mcp.name", "pluma")
	v.SetDefault("mcp.version", Version)
	v.SetDefault("reminder.timezone", "")
}

func (c *Config) Validate() error {
	if _, err := plugin.ParseLoadPolicy(c.Loader.Policy); err != nil {
		return err
	}
	if c.Dispatcher.TimeoutMS < 0 {
		return fmt.Errorf("dispatcher.timeout_ms must not be negative")
	}
	if c.Dispatcher.WaitTimeoutMS < 0 {
		return fmt.Errorf("dispatcher.wait_timeout_ms must not be negative")
	}
	if c.Context.MaxHistory < 0 || c.Context.MaxToolRounds < 0 {
		return fmt.Errorf("context limits must not be negative")
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with /")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	if c.Metrics.LogSampleRate < 0 || c.Metrics.LogSampleRate > 1 {
		return fmt.Errorf("metrics.log_sample_rate must be within [0, 1]")
	}
	switch strings.ToLower(strings.TrimSpace(c.LLM.Provider)) {
	case "", "mock", "openai":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q is not supported", c.LogFormat)
	}
	if tz := strings.TrimSpace(c.Reminder.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminder.timezone: %w", err)
		}
	}
	return nil
}

// PluginSettings returns the plugins.<tool> section.
func (c Config) PluginSettings(tool string) map[string]any {
	return dispatch.StaticSettings(c.Plugins).PluginSettings(tool)
}

func (c Config) LoadPolicy() plugin.LoadPolicy {
	p, _ := plugin.ParseLoadPolicy(c.Loader.Policy)
	return p
}

func (c Config) DispatchOptions() dispatch.Options {
	return dispatch.Options{
		Timeout:            time.Duration(c.Dispatcher.TimeoutMS) * time.Millisecond,
		WaitTimeout:        time.Duration(c.Dispatcher.WaitTimeoutMS) * time.Millisecond,
		SerializeBySession: c.Dispatcher.SerializeBySession,
		Settings:           c,
	}
}

func (c Config) location() *time.Location {
	tz := strings.TrimSpace(c.Reminder.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.LLM.Settings = expandSettings(cfg.LLM.Settings)
	for name, section := range cfg.Plugins {
		cfg.Plugins[name] = expandSettings(section)
	}
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
