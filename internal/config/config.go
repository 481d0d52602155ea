package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider selects the decision model backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderVLLM      Provider = "vllm"
)

// ParseProvider maps a user supplied name onto a Provider. The short aliases
// "claude" and "gpt" are accepted.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "vllm":
		return ProviderVLLM, nil
	default:
		return "", fmt.Errorf("unknown provider: %q (supported: openai, anthropic, gemini, vllm)", name)
	}
}

// Backend selects where screenshots come from and where input goes.
type Backend string

const (
	BackendX11     Backend = "x11"
	BackendBrowser Backend = "browser"
)

// Config is the full agent configuration. It is built once by Load and passed
// by value afterwards.
type Config struct {
	Grounding GroundingConfig `mapstructure:"grounding" yaml:"grounding"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Execution ExecutionConfig `mapstructure:"execution" yaml:"execution"`
	Screen    ScreenConfig    `mapstructure:"screen" yaml:"screen"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// GroundingConfig describes the perception endpoint.
type GroundingConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Model   string        `mapstructure:"model" yaml:"model"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Width   int           `mapstructure:"width" yaml:"width"`
	Height  int           `mapstructure:"height" yaml:"height"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LLMConfig describes the decision model.
type LLMConfig struct {
	Provider  Provider      `mapstructure:"provider" yaml:"provider"`
	Model     string        `mapstructure:"model" yaml:"model"`
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ExecutionConfig holds the security gate. EnableLocalCode stays false unless
// explicitly set.
type ExecutionConfig struct {
	EnableLocalCode bool          `mapstructure:"-" yaml:"enable_local_code"`
	CodeTimeout     time.Duration `mapstructure:"code_timeout" yaml:"code_timeout"`
}

// ScreenConfig selects the capture/input backend.
type ScreenConfig struct {
	Backend    Backend `mapstructure:"backend" yaml:"backend"`
	BrowserURL string  `mapstructure:"browser_url" yaml:"browser_url"`
	Headless   bool    `mapstructure:"headless" yaml:"headless"`
	ProfileDir string  `mapstructure:"profile_dir" yaml:"profile_dir"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// providerKeyEnv lists the conventional API key variable per provider, used
// when llm.api_key is not set.
var providerKeyEnv = map[Provider][]string{
	ProviderOpenAI:    {"OPENAI_API_KEY"},
	ProviderAnthropic: {"ANTHROPIC_API_KEY"},
	ProviderGemini:    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	ProviderVLLM:      {"VLLM_API_KEY"},
}

// SetDefaults registers default values for every option.
func SetDefaults(v *viper.Viper) {
	// -- Grounding --
	v.SetDefault("grounding.url", "http://localhost:8080")
	v.SetDefault("grounding.model", "ui-tars-1.5-7b")
	v.SetDefault("grounding.width", 1920)
	v.SetDefault("grounding.height", 1080)
	v.SetDefault("grounding.timeout", "30s")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderOpenAI))
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_tokens", 1024)

	// -- Execution --
	v.SetDefault("execution.enable_local_code", false)
	v.SetDefault("execution.code_timeout", "10s")

	// -- Screen --
	v.SetDefault("screen.backend", string(BackendX11))
	v.SetDefault("screen.browser_url", "about:blank")
	v.SetDefault("screen.headless", true)

	// -- Log --
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("grounding.url", "GROUNDING_URL")
	_ = v.BindEnv("grounding.model", "GROUNDING_MODEL")
	_ = v.BindEnv("grounding.api_key", "GROUNDING_API_KEY")
	_ = v.BindEnv("grounding.width", "GROUNDING_WIDTH")
	_ = v.BindEnv("grounding.height", "GROUNDING_HEIGHT")
	_ = v.BindEnv("grounding.timeout", "GROUNDING_TIMEOUT")
	_ = v.BindEnv("llm.provider", "PROVIDER")
	_ = v.BindEnv("llm.model", "MAIN_MODEL")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.timeout", "LLM_TIMEOUT")
	_ = v.BindEnv("execution.enable_local_code", "ENABLE_LOCAL_CODE")
	_ = v.BindEnv("execution.code_timeout", "CODE_TIMEOUT")
	_ = v.BindEnv("screen.backend", "SCREEN_BACKEND")
	_ = v.BindEnv("screen.browser_url", "SCREEN_BROWSER_URL")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("log.file", "LOG_FILE")
}

// gateOpen reports whether the local code setting opens the gate. Booleans
// from flags and config files are taken as is; strings open it only when they
// read "true" in any case, so "1", "yes" or "on" keep it closed.
func gateOpen(raw any) bool {
	switch val := raw.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	default:
		return false
	}
}

// NewViper returns a viper instance with defaults and environment bindings in
// place. Callers may bind flags on it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	bindEnv(v)
	return v
}

// Load reads the optional config file at path into v and returns the
// validated configuration.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a Config from v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Execution.EnableLocalCode = gateOpen(v.Get("execution.enable_local_code"))

	provider, err := ParseProvider(string(cfg.LLM.Provider))
	if err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.LLM.Provider = provider
	if cfg.LLM.APIKey == "" {
		for _, name := range providerKeyEnv[provider] {
			if key := os.Getenv(name); key != "" {
				cfg.LLM.APIKey = key
				break
			}
		}
	}
	cfg.Screen.Backend = Backend(strings.ToLower(string(cfg.Screen.Backend)))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c Config) Validate() error {
	if c.Grounding.URL == "" {
		return fmt.Errorf("grounding.url is required")
	}
	if c.Grounding.Width <= 0 || c.Grounding.Height <= 0 {
		return fmt.Errorf("grounding.width and grounding.height must be positive, got %dx%d", c.Grounding.Width, c.Grounding.Height)
	}
	if c.Grounding.Timeout <= 0 {
		return fmt.Errorf("grounding.timeout must be a positive duration")
	}
	if _, err := ParseProvider(string(c.LLM.Provider)); err != nil {
		return err
	}
	if c.LLM.Provider == ProviderVLLM && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required for the vllm provider")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be a positive duration")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be a positive integer")
	}
	if c.Execution.CodeTimeout <= 0 {
		return fmt.Errorf("execution.code_timeout must be a positive duration")
	}
	switch c.Screen.Backend {
	case BackendX11, BackendBrowser:
	default:
		return fmt.Errorf("unknown screen.backend: %q (supported: x11, browser)", c.Screen.Backend)
	}
	return nil
}
