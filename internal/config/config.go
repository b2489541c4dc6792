package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported model providers.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// ErrMissingCredential is returned when the selected provider has no API key.
var ErrMissingCredential = eris.New("config: missing model provider credential")

// Config holds the full application configuration.
type Config struct {
	Provider   string           `yaml:"provider" mapstructure:"provider"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Documents  DocumentConfig   `yaml:"documents" mapstructure:"documents"`
}

// GeminiConfig holds Google Gemini credentials and model selection.
type GeminiConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	// SystemInstruction sends the system prompt as a system instruction
	// instead of prepending it to the user turn.
	SystemInstruction bool `yaml:"system_instruction" mapstructure:"system_instruction"`
}

// AnthropicConfig holds Anthropic credentials and model selection.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	// CacheTTL is the prompt cache TTL for the system block ("5m" or "1h").
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// ExtractConfig controls chunking, extraction calls, and output caps.
type ExtractConfig struct {
	MaxChars         int     `yaml:"max_chars" mapstructure:"max_chars"`
	BlockCap         int     `yaml:"block_cap" mapstructure:"block_cap"`
	FileCap          int     `yaml:"file_cap" mapstructure:"file_cap"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP             float64 `yaml:"top_p" mapstructure:"top_p"`
	TopK             int     `yaml:"top_k" mapstructure:"top_k"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BlockConcurrency int     `yaml:"block_concurrency" mapstructure:"block_concurrency"`
	FileConcurrency  int     `yaml:"file_concurrency" mapstructure:"file_concurrency"`
	// RateLimit caps model calls per second across the process. 0 disables it.
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	CircuitThreshold int     `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// CacheConfig configures the in-memory extraction response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Size    int  `yaml:"size" mapstructure:"size"`
	TTLMins int  `yaml:"ttl_mins" mapstructure:"ttl_mins"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the run health checker and its webhook alerts.
type MonitoringConfig struct {
	Enabled                   bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold      float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BlockFailureRateThreshold float64 `yaml:"block_failure_rate_threshold" mapstructure:"block_failure_rate_threshold"`
	CostThresholdUSD          float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// DocumentConfig selects how uploaded PDF transcripts are turned into text.
type DocumentConfig struct {
	// PDFProvider is "local" (pdftotext) or "mistral" (Mistral OCR API).
	PDFProvider   string `yaml:"pdf_provider" mapstructure:"pdf_provider"`
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// APIKey returns the credential for the selected provider.
func (c *Config) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.Anthropic.Key
	}
	return c.Gemini.Key
}

// ModelID returns the model for the selected provider.
func (c *Config) ModelID() string {
	if c.Provider == ProviderAnthropic {
		return c.Anthropic.Model
	}
	return c.Gemini.Model
}

// HasKey reports whether the selected provider has a credential.
func (c *Config) HasKey() bool {
	return strings.TrimSpace(c.APIKey()) != ""
}

// Validate checks the settings needed by a command mode: "extract" (model
// and pipeline settings), "serve" (extract plus server), or "runs" (store
// only). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract", "serve":
		errs = append(errs, c.validateExtract()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if mode == "serve" && c.Monitoring.Enabled {
			errs = append(errs, c.validateMonitoring()...)
		}
	case "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateExtract() []string {
	var errs []string
	switch c.Provider {
	case ProviderGemini, ProviderAnthropic:
		if c.ModelID() == "" {
			errs = append(errs, c.Provider+".model is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("provider %q must be gemini or anthropic", c.Provider))
	}

	e := c.Extract
	if e.MaxChars <= 0 {
		errs = append(errs, "extract.max_chars must be > 0")
	}
	if e.BlockCap <= 0 || e.FileCap <= 0 {
		errs = append(errs, "extract.block_cap and extract.file_cap must be > 0")
	}
	if e.Temperature < 0 || e.Temperature > 2 {
		errs = append(errs, "extract.temperature must be between 0 and 2")
	}
	if e.TimeoutSecs <= 0 {
		errs = append(errs, "extract.timeout_secs must be > 0")
	}
	if e.MaxAttempts < 1 {
		errs = append(errs, "extract.max_attempts must be >= 1")
	}
	if e.BlockConcurrency < 1 || e.BlockConcurrency > 32 {
		errs = append(errs, "extract.block_concurrency must be between 1 and 32")
	}
	if e.FileConcurrency < 1 || e.FileConcurrency > 32 {
		errs = append(errs, "extract.file_concurrency must be between 1 and 32")
	}
	if e.RateLimit < 0 {
		errs = append(errs, "extract.rate_limit must be >= 0")
	}
	return errs
}

func (c *Config) validateMonitoring() []string {
	var errs []string
	m := c.Monitoring
	if m.LookbackWindowHours <= 0 {
		errs = append(errs, "monitoring.lookback_window_hours must be > 0")
	}
	if m.FailureRateThreshold < 0 || m.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if m.BlockFailureRateThreshold < 0 || m.BlockFailureRateThreshold > 1 {
		errs = append(errs, "monitoring.block_failure_rate_threshold must be between 0 and 1")
	}
	return errs
}

// Load reads configuration from .env, config.yaml, and the environment.
func Load() (*Config, error) {
	// A missing .env is normal; anything already in the environment wins.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names used by earlier deployments.
	_ = v.BindEnv("gemini.key", "INSIGHTS_GEMINI_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.model", "INSIGHTS_GEMINI_MODEL", "GEMINI_MODEL_ID")
	_ = v.BindEnv("anthropic.key", "INSIGHTS_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("documents.mistral_key", "INSIGHTS_DOCUMENTS_MISTRAL_KEY", "MISTRAL_API_KEY")

	// Defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("gemini.model", "gemini-1.5-flash-8b")
	v.SetDefault("gemini.max_output_tokens", 2048)
	v.SetDefault("gemini.system_instruction", false)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.cache_ttl", "5m")
	v.SetDefault("extract.max_chars", 3500)
	v.SetDefault("extract.block_cap", 5)
	v.SetDefault("extract.file_cap", 60)
	v.SetDefault("extract.temperature", 0.2)
	v.SetDefault("extract.top_p", 0.9)
	v.SetDefault("extract.top_k", 40)
	v.SetDefault("extract.timeout_secs", 60)
	v.SetDefault("extract.max_attempts", 1)
	v.SetDefault("extract.initial_backoff_ms", 500)
	v.SetDefault("extract.max_backoff_ms", 10000)
	v.SetDefault("extract.block_concurrency", 1)
	v.SetDefault("extract.file_concurrency", 4)
	v.SetDefault("extract.rate_limit", 0)
	v.SetDefault("extract.rate_burst", 1)
	v.SetDefault("extract.circuit_threshold", 5)
	v.SetDefault("extract.circuit_reset_secs", 30)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 512)
	v.SetDefault("cache.ttl_mins", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "insights.db")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.block_failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("documents.pdf_provider", "local")
	v.SetDefault("documents.pdftotext_path", "pdftotext")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	// stdout carries command output (JSON results, MCP frames).
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
