package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Data   DataConfig   `mapstructure:"data" yaml:"data"`
	Model  ModelConfig  `mapstructure:"model" yaml:"model"`
	OCR    OCRConfig    `mapstructure:"ocr" yaml:"ocr"`
	LLM    LLMConfig    `mapstructure:"llm" yaml:"llm"`
	Prompt PromptConfig `mapstructure:"prompt" yaml:"prompt"`
	Debug  bool         `mapstructure:"debug" yaml:"debug"`

	Version string `mapstructure:"-" yaml:"-"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Port            int      `mapstructure:"port" yaml:"port"`
	ReadTimeoutSec  int      `mapstructure:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `mapstructure:"write_timeout_sec" yaml:"write_timeout_sec"`
	IdleTimeoutSec  int      `mapstructure:"idle_timeout_sec" yaml:"idle_timeout_sec"`
	MaxUploadMB     int64    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	AllowedOrigins  []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// DataConfig points at the household dataset loaded at startup.
// Table is only used for SQLite sources.
type DataConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Table string `mapstructure:"table" yaml:"table"`
}

// ModelConfig controls the recommendation forest
type ModelConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Trees    int    `mapstructure:"trees" yaml:"trees"`
	MaxDepth int    `mapstructure:"max_depth" yaml:"max_depth"`
	MinLeaf  int    `mapstructure:"min_leaf" yaml:"min_leaf"`
	Seed     int64  `mapstructure:"seed" yaml:"seed"`
	Path     string `mapstructure:"path" yaml:"path"`
	Reuse    bool   `mapstructure:"reuse" yaml:"reuse"`
}

// OCRConfig selects and tunes the OCR engine
type OCRConfig struct {
	Engine     string `mapstructure:"engine" yaml:"engine"`
	Binary     string `mapstructure:"binary" yaml:"binary"`
	Language   string `mapstructure:"language" yaml:"language"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	CacheSize  int    `mapstructure:"cache_size" yaml:"cache_size"`
	MaxPixels  int    `mapstructure:"max_pixels" yaml:"max_pixels"`
}

// LLMConfig selects the language model provider
type LLMConfig struct {
	Provider      string  `mapstructure:"provider" yaml:"provider"`
	Model         string  `mapstructure:"model" yaml:"model"`
	OllamaHost    string  `mapstructure:"ollama_host" yaml:"ollama_host"`
	OpenAIAPIKey  string  `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL string  `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	TimeoutSec    int     `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	Retries       int     `mapstructure:"retries" yaml:"retries"`
	Temperature   float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// PromptConfig bounds what goes into the prompt. Zero means unlimited.
type PromptConfig struct {
	MaxContextChars int `mapstructure:"max_context_chars" yaml:"max_context_chars"`
}

// Providers lists the accepted llm.provider values
var Providers = []string{"ollama", "openai", "placeholder"}

// Engines lists the accepted ocr.engine values
var Engines = []string{"tesseract", "gosseract", "none"}

// RetryBackoff is the pause before the first LLM retry. The nth retry
// waits n times as long.
const RetryBackoff = 250 * time.Millisecond

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout_sec", 30)
	v.SetDefault("server.write_timeout_sec", 300)
	v.SetDefault("server.idle_timeout_sec", 120)
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("data.path", "energy.csv")
	v.SetDefault("data.table", "households")

	v.SetDefault("model.enabled", true)
	v.SetDefault("model.trees", 100)
	v.SetDefault("model.max_depth", 0)
	v.SetDefault("model.min_leaf", 1)
	v.SetDefault("model.seed", 0)
	v.SetDefault("model.path", "")
	v.SetDefault("model.reuse", false)

	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.binary", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.timeout_sec", 30)
	v.SetDefault("ocr.cache_size", 64)
	v.SetDefault("ocr.max_pixels", 40_000_000)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.timeout_sec", 120)
	v.SetDefault("llm.retries", 1)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)

	v.SetDefault("prompt.max_context_chars", 0)
}

// Load reads configuration from defaults, an optional YAML file and the
// environment. ENERGY_SERVER_PORT overrides server.port and so on.
// An explicit path must exist; without one, ./config.yaml is read if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENERGY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.LLM.OpenAIAPIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.OpenAIAPIKey = key
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Data.Path == "" {
		return errors.New("data.path is required")
	}
	if !contains(Providers, c.LLM.Provider) {
		return fmt.Errorf("unknown llm.provider %q (supported: %s)", c.LLM.Provider, strings.Join(Providers, ", "))
	}
	if !contains(Engines, c.OCR.Engine) {
		return fmt.Errorf("unknown ocr.engine %q (supported: %s)", c.OCR.Engine, strings.Join(Engines, ", "))
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("llm.retries must be >= 0, got %d", c.LLM.Retries)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.OCR.MaxPixels < 0 {
		return fmt.Errorf("ocr.max_pixels must be >= 0, got %d", c.OCR.MaxPixels)
	}
	if write := c.WriteTimeout(); write > 0 && c.LLM.TimeoutSec > 0 {
		if budget := c.ChatBudget(); budget >= write {
			return fmt.Errorf("server.write_timeout_sec %s must exceed the chat budget of %s "+
				"(ocr.timeout_sec + llm.timeout_sec x (llm.retries+1) + backoff)", write, budget)
		}
	}
	return nil
}

// WriteTimeout returns server.write_timeout_sec as a duration
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSec) * time.Second
}

// ChatBudget returns the longest a chat request can spend in OCR and the
// LLM when every attempt runs to its timeout.
func (c *Config) ChatBudget() time.Duration {
	attempts := time.Duration(c.LLM.Retries + 1)
	backoff := RetryBackoff * time.Duration(c.LLM.Retries*(c.LLM.Retries+1)/2)
	return time.Duration(c.OCR.TimeoutSec)*time.Second +
		time.Duration(c.LLM.TimeoutSec)*time.Second*attempts +
		backoff
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
