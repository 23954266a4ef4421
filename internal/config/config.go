package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv        = "REVIEWGUARD_CONFIG"
	classifierURLEnv     = "REVIEWGUARD_CLASSIFIER_URL"
	classifierAPIKeyEnv  = "REVIEWGUARD_CLASSIFIER_API_KEY"
	openRouterAPIKeyEnv  = "OPENROUTER_API_KEY"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	logLevelEnv          = "REVIEWGUARD_LOG_LEVEL"
	defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
)

// Explainer backends.
const (
	ExplainerService = "service"
	ExplainerLLM     = "llm"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging" toml:"logging"`
	Classifier    ClassifierConfig   `yaml:"classifier" toml:"classifier"`
	Explainer     ExplainerConfig    `yaml:"explainer" toml:"explainer"`
	Pipeline      PipelineConfig     `yaml:"pipeline" toml:"pipeline"`
	Fetch         FetchConfig        `yaml:"fetch" toml:"fetch"`
	Watch         WatchConfig        `yaml:"watch" toml:"watch"`
	Report        ReportConfig       `yaml:"report" toml:"report"`
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications"`
	Server        ServerConfig       `yaml:"server" toml:"server"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// ClassifierConfig describes the external classification service.
type ClassifierConfig struct {
	BaseURL string   `yaml:"baseUrl" toml:"baseUrl"`
	APIKey  string   `yaml:"apiKey" toml:"apiKey"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// ExplainerConfig picks where explanations come from: the classification
// service's /explain route or an OpenAI-compatible chat API.
type ExplainerConfig struct {
	Mode     string   `yaml:"mode" toml:"mode"`
	Endpoint string   `yaml:"endpoint" toml:"endpoint"`
	APIKey   string   `yaml:"apiKey" toml:"apiKey"`
	Models   []string `yaml:"models" toml:"models"`
	Timeout  Duration `yaml:"timeout" toml:"timeout"`
	CacheTTL Duration `yaml:"cacheTtl" toml:"cacheTtl"`
}

// PipelineConfig tunes scan cycles.
type PipelineConfig struct {
	BatchSize      int      `yaml:"batchSize" toml:"batchSize"`
	InterItemDelay Duration `yaml:"interItemDelay" toml:"interItemDelay"`
	MinTextLength  int      `yaml:"minTextLength" toml:"minTextLength"`
	RetryErrors    bool     `yaml:"retryErrors" toml:"retryErrors"`
	MaxAttempts    int      `yaml:"maxAttempts" toml:"maxAttempts"`
}

// FetchConfig controls how pages are downloaded.
type FetchConfig struct {
	UserAgent string   `yaml:"userAgent" toml:"userAgent"`
	Timeout   Duration `yaml:"timeout" toml:"timeout"`
	MaxBytes  int64    `yaml:"maxBytes" toml:"maxBytes"`
	Retries   uint64   `yaml:"retries" toml:"retries"`
}

// WatchConfig defines when the page is re-fetched.
type WatchConfig struct {
	Schedule string `yaml:"schedule" toml:"schedule"`
}

// ReportConfig points at the SQLite audit file; empty disables it.
type ReportConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" toml:"botToken"`
	ChatID   string `yaml:"chatId" toml:"chatId"`
}

// Enabled reports whether both token and chat are set.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Duration accepts Go duration strings ("750ms", "2s") in YAML and TOML.
type Duration time.Duration

// Std converts to time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Load reads configuration from path (or REVIEWGUARD_CONFIG when path is
// empty) and applies environment overrides. A missing path is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fileCfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(raw, &fileCfg)
	default:
		err = yaml.Unmarshal(raw, &fileCfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("config: pipeline.batchSize must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxAttempts < 0 {
		return fmt.Errorf("config: pipeline.maxAttempts must not be negative")
	}
	switch c.Explainer.Mode {
	case ExplainerService, ExplainerLLM:
	default:
		return fmt.Errorf("config: unknown explainer mode %q", c.Explainer.Mode)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(classifierURLEnv); v != "" {
		c.Classifier.BaseURL = v
	}

	if v := os.Getenv(classifierAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}

	if v := os.Getenv(openRouterAPIKeyEnv); v != "" {
		c.Explainer.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Classifier.BaseURL != "" {
		base.Classifier.BaseURL = override.Classifier.BaseURL
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.Timeout > 0 {
		base.Classifier.Timeout = override.Classifier.Timeout
	}

	if override.Explainer.Mode != "" {
		base.Explainer.Mode = strings.ToLower(override.Explainer.Mode)
	}
	if override.Explainer.Endpoint != "" {
		base.Explainer.Endpoint = override.Explainer.Endpoint
	}
	if override.Explainer.APIKey != "" {
		base.Explainer.APIKey = override.Explainer.APIKey
	}
	if len(override.Explainer.Models) > 0 {
		base.Explainer.Models = override.Explainer.Models
	}
	if override.Explainer.Timeout > 0 {
		base.Explainer.Timeout = override.Explainer.Timeout
	}
	if override.Explainer.CacheTTL > 0 {
		base.Explainer.CacheTTL = override.Explainer.CacheTTL
	}

	if override.Pipeline.BatchSize != 0 {
		base.Pipeline.BatchSize = override.Pipeline.BatchSize
	}
	if override.Pipeline.InterItemDelay > 0 {
		base.Pipeline.InterItemDelay = override.Pipeline.InterItemDelay
	}
	if override.Pipeline.MinTextLength > 0 {
		base.Pipeline.MinTextLength = override.Pipeline.MinTextLength
	}
	if override.Pipeline.RetryErrors {
		base.Pipeline.RetryErrors = true
	}
	if override.Pipeline.MaxAttempts != 0 {
		base.Pipeline.MaxAttempts = override.Pipeline.MaxAttempts
	}

	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}
	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.MaxBytes > 0 {
		base.Fetch.MaxBytes = override.Fetch.MaxBytes
	}
	if override.Fetch.Retries > 0 {
		base.Fetch.Retries = override.Fetch.Retries
	}

	if override.Watch.Schedule != "" {
		base.Watch.Schedule = override.Watch.Schedule
	}

	if override.Report.Path != "" {
		base.Report.Path = override.Report.Path
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	return base
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Classifier: ClassifierConfig{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: Duration(15 * time.Second),
		},
		Explainer: ExplainerConfig{
			Mode:     ExplainerService,
			Endpoint: defaultOpenRouterURL,
			Models: []string{
				"meta-llama/llama-3.2-3b-instruct:free",
				"google/gemini-2.0-flash-lite-preview-02-05:free",
				"microsoft/phi-3-mini-128k-instruct:free",
				"mistralai/mistral-7b-instruct:free",
			},
			Timeout:  Duration(6 * time.Second),
			CacheTTL: Duration(time.Hour),
		},
		Pipeline: PipelineConfig{
			BatchSize:      3,
			InterItemDelay: 0,
			MinTextLength:  6,
			RetryErrors:    false,
			MaxAttempts:    3,
		},
		Fetch: FetchConfig{
			UserAgent: "ReviewGuard/1.0",
			Timeout:   Duration(20 * time.Second),
			MaxBytes:  8 << 20,
			Retries:   3,
		},
		Watch:  WatchConfig{Schedule: "@every 1m"},
		Server: ServerConfig{Addr: ":8080"},
	}
}
