package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty temp dir so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

// clearKeys blanks provider credentials that may exist on the host.
func clearKeys(t *testing.T) {
	t.Helper()
	for _, k := range []string{"INSIGHTS_GEMINI_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY", "INSIGHTS_ANTHROPIC_KEY", "ANTHROPIC_API_KEY", "GEMINI_MODEL_ID", "INSIGHTS_GEMINI_MODEL", "MISTRAL_API_KEY", "INSIGHTS_DOCUMENTS_MISTRAL_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k) //nolint:errcheck
	}
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	clearKeys(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-1.5-flash-8b", cfg.Gemini.Model)
	assert.Equal(t, 2048, cfg.Gemini.MaxOutputTokens)
	assert.False(t, cfg.Gemini.SystemInstruction)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 3500, cfg.Extract.MaxChars)
	assert.Equal(t, 5, cfg.Extract.BlockCap)
	assert.Equal(t, 60, cfg.Extract.FileCap)
	assert.InDelta(t, 0.2, cfg.Extract.Temperature, 0.001)
	assert.InDelta(t, 0.9, cfg.Extract.TopP, 0.001)
	assert.Equal(t, 40, cfg.Extract.TopK)
	assert.Equal(t, 60, cfg.Extract.TimeoutSecs)
	assert.Equal(t, 1, cfg.Extract.MaxAttempts)
	assert.Equal(t, 1, cfg.Extract.BlockConcurrency)
	assert.Equal(t, 4, cfg.Extract.FileConcurrency)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 512, cfg.Cache.Size)
	assert.Equal(t, 30, cfg.Cache.TTLMins)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "insights.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "local", cfg.Documents.PDFProvider)
	assert.Equal(t, "pdftotext", cfg.Documents.PdfToTextPath)
	assert.Empty(t, cfg.Documents.MistralKey)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.BlockFailureRateThreshold, 0.001)
	assert.False(t, cfg.HasKey())
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	clearKeys(t)

	yaml := `
provider: anthropic
anthropic:
  key: sk-ant-test
extract:
  max_chars: 1200
  block_concurrency: 3
store:
  driver: postgres
  database_url: postgres://localhost/insights
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "sk-ant-test", cfg.APIKey())
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.ModelID())
	assert.Equal(t, 1200, cfg.Extract.MaxChars)
	assert.Equal(t, 3, cfg.Extract.BlockConcurrency)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.Extract.FileCap)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	clearKeys(t)

	yaml := `
extract:
  file_cap: 10
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("INSIGHTS_EXTRACT_FILE_CAP", "25")
	t.Setenv("INSIGHTS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Extract.FileCap)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	chdirTemp(t)
	clearKeys(t)

	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("GEMINI_MODEL_ID", "gemini-2.0-flash")
	t.Setenv("ANTHROPIC_API_KEY", "a-key")
	t.Setenv("MISTRAL_API_KEY", "m-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "g-key", cfg.Gemini.Key)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, "a-key", cfg.Anthropic.Key)
	assert.Equal(t, "m-key", cfg.Documents.MistralKey)
	assert.True(t, cfg.HasKey())
}

func TestLoadPrefixedKeyWinsOverLegacy(t *testing.T) {
	chdirTemp(t)
	clearKeys(t)

	t.Setenv("INSIGHTS_GEMINI_KEY", "new-key")
	t.Setenv("GEMINI_API_KEY", "old-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "new-key", cfg.Gemini.Key)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	clearKeys(t)
	t.Cleanup(func() { os.Unsetenv("INSIGHTS_SERVER_PORT") }) //nolint:errcheck

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INSIGHTS_SERVER_PORT=9191\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Provider: ProviderGemini,
		Gemini:   GeminiConfig{Model: "gemini-1.5-flash-8b"},
		Extract: ExtractConfig{
			MaxChars: 3500, BlockCap: 5, FileCap: 60, Temperature: 0.2,
			TimeoutSecs: 60, MaxAttempts: 1, BlockConcurrency: 1, FileConcurrency: 4,
		},
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "insights.db"},
		Server: ServerConfig{Port: 8000},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("extract"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("runs"))
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider = "openai"
	cfg.Extract.MaxChars = 0
	cfg.Extract.Temperature = 3
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `provider "openai"`)
	assert.Contains(t, err.Error(), "extract.max_chars must be > 0")
	assert.Contains(t, err.Error(), "extract.temperature")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("extract"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_RunsIgnoresModelSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Provider = ""
	cfg.Extract = ExtractConfig{}
	assert.NoError(t, cfg.Validate("runs"))

	cfg.Store.Driver = "mysql"
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Extract.FileConcurrency = 0
	assert.ErrorContains(t, cfg.Validate("extract"), "file_concurrency")

	cfg.Extract.FileConcurrency = 33
	assert.ErrorContains(t, cfg.Validate("extract"), "file_concurrency")

	cfg.Extract.FileConcurrency = 32
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidate_Monitoring(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring = MonitoringConfig{Enabled: true, LookbackWindowHours: 0, FailureRateThreshold: 1.5}

	assert.NoError(t, cfg.Validate("extract"), "monitoring only matters for serve")
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.lookback_window_hours")
	assert.Contains(t, err.Error(), "monitoring.failure_rate_threshold")

	cfg.Monitoring.Enabled = false
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestAPIKeyAndModelID(t *testing.T) {
	cfg := validDefaults()
	cfg.Gemini.Key = "g"
	cfg.Anthropic = AnthropicConfig{Key: "a", Model: "claude"}

	assert.Equal(t, "g", cfg.APIKey())
	assert.Equal(t, "gemini-1.5-flash-8b", cfg.ModelID())

	cfg.Provider = ProviderAnthropic
	assert.Equal(t, "a", cfg.APIKey())
	assert.Equal(t, "claude", cfg.ModelID())

	cfg.Anthropic.Key = "  "
	assert.False(t, cfg.HasKey())
}
