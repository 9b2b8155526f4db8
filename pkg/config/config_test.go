package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "wellbin/pkg/errors"
)

var wellbinEnv = []string{
	"WELLBIN_EMAIL", "WELLBIN_PASSWORD", "WELLBIN_BASE_URL", "WELLBIN_STUDY_TYPES",
	"WELLBIN_STUDY_LIMIT", "WELLBIN_OUTPUT_DIR", "WELLBIN_HEADLESS", "WELLBIN_ENGINE",
	"WELLBIN_DOWNLOAD_TIMEOUT", "WELLBIN_RETRY_ATTEMPTS", "WELLBIN_METRICS_ADDR", "WELLBIN_LOG_LEVEL",
	"WELLBIN_INPUT_DIR", "WELLBIN_MARKDOWN_DIR", "WELLBIN_FILE_TYPE", "WELLBIN_PRESERVE_STRUCTURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range wellbinEnv {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Wellbin.LoginURL != "https://wellbin.co/login" {
		t.Errorf("Expected default login URL, got %s", config.Wellbin.LoginURL)
	}
	if config.Wellbin.ExplorerURL != "https://wellbin.co/explorer" {
		t.Errorf("Expected default explorer URL, got %s", config.Wellbin.ExplorerURL)
	}
	if config.Scrape.StudyTypes != "FhirStudy" {
		t.Errorf("Expected default study types to be FhirStudy, got %s", config.Scrape.StudyTypes)
	}
	if config.Output.BaseDirectory != "medical_data" {
		t.Errorf("Expected default output directory to be medical_data, got %s", config.Output.BaseDirectory)
	}
	if !config.Scrape.Headless {
		t.Error("Expected headless by default")
	}
	if config.Download.Timeout != 30*time.Second {
		t.Errorf("Expected 30s download timeout, got %v", config.Download.Timeout)
	}
	if config.Download.ChunkSize != 8192 {
		t.Errorf("Expected chunk size 8192, got %d", config.Download.ChunkSize)
	}
	if config.Download.RetryAttempts != 0 {
		t.Errorf("Expected no retries by default, got %d", config.Download.RetryAttempts)
	}

	require.NoError(t, config.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WELLBIN_EMAIL", "ana@example.org")
	t.Setenv("WELLBIN_PASSWORD", "s3cret")
	t.Setenv("WELLBIN_STUDY_LIMIT", "5")
	t.Setenv("WELLBIN_STUDY_TYPES", "FhirStudy,DicomStudy")
	t.Setenv("WELLBIN_OUTPUT_DIR", "/tmp/wellbin-out")
	t.Setenv("WELLBIN_HEADLESS", "off")
	t.Setenv("WELLBIN_ENGINE", "HTTP")
	t.Setenv("WELLBIN_DOWNLOAD_TIMEOUT", "45s")
	t.Setenv("WELLBIN_RETRY_ATTEMPTS", "2")
	t.Setenv("WELLBIN_LOG_LEVEL", "debug")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())

	assert.Equal(t, "ana@example.org", config.Wellbin.Email)
	assert.Equal(t, "s3cret", config.Wellbin.Password)
	assert.Equal(t, 5, config.Scrape.Limit)
	assert.Equal(t, "FhirStudy,DicomStudy", config.Scrape.StudyTypes)
	assert.Equal(t, "/tmp/wellbin-out", config.Output.BaseDirectory)
	assert.False(t, config.Scrape.Headless)
	assert.Equal(t, EngineHTTP, config.Scrape.Engine)
	assert.Equal(t, 45*time.Second, config.Download.Timeout)
	assert.Equal(t, 2, config.Download.RetryAttempts)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadFromEnvEmptyValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WELLBIN_OUTPUT_DIR", "   ")
	t.Setenv("WELLBIN_STUDY_LIMIT", "")

	config := DefaultConfig()
	require.NoError(t, config.LoadFromEnv())
	assert.Equal(t, "medical_data", config.Output.BaseDirectory)
	assert.Equal(t, 0, config.Scrape.Limit)
}

func TestLoadFromEnvInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("WELLBIN_STUDY_LIMIT", "many")
	t.Setenv("WELLBIN_DOWNLOAD_TIMEOUT", "soon")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WELLBIN_STUDY_LIMIT")
	assert.Contains(t, err.Error(), "WELLBIN_DOWNLOAD_TIMEOUT")
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "On"} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "off", "", "maybe"} {
		assert.False(t, ParseBool(v), v)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
wellbin:
  base_url: http://localhost:8080
  login_url: http://localhost:8080/login
  explorer_url: http://localhost:8080/explorer
scrape:
  study_types: all
  limit: 3
  engine: http
  login_settle: 100ms
output:
  base_directory: out
  validate_pdfs: true
rate_limit:
  navigation_interval: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := DefaultConfig()
	require.NoError(t, config.LoadFromFile(path))

	assert.Equal(t, "http://localhost:8080/login", config.Wellbin.LoginURL)
	assert.Equal(t, "all", config.Scrape.StudyTypes)
	assert.Equal(t, 3, config.Scrape.Limit)
	assert.Equal(t, 100*time.Millisecond, config.Scrape.LoginSettle)
	assert.True(t, config.Output.ValidatePDFs)
	assert.Equal(t, time.Second, config.RateLimit.NavigationInterval)
	// untouched sections keep defaults
	assert.Equal(t, 200*time.Millisecond, config.RateLimit.DownloadInterval)
	require.NoError(t, config.Validate())
}

func TestLoadFromFileErrors(t *testing.T) {
	config := DefaultConfig()
	assert.Error(t, config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("scrape: [oops"), 0644))
	assert.Error(t, config.LoadFromFile(bad))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
		isType  errs.ErrorType
	}{
		{"unknown study type", func(c *Config) { c.Scrape.StudyTypes = "FhirStudy,XrayStudy" }, "", ""},
		{"all accepted", func(c *Config) { c.Scrape.StudyTypes = "ALL" }, "", ""},
		{"empty types", func(c *Config) { c.Scrape.StudyTypes = " , " }, "at least one study type", errs.ErrorTypeInvalidConfiguration},
		{"negative limit", func(c *Config) { c.Scrape.Limit = -1 }, "limit", errs.ErrorTypeInvalidConfiguration},
		{"bad engine", func(c *Config) { c.Scrape.Engine = "firefox" }, "engine", errs.ErrorTypeInvalidConfiguration},
		{"bad url", func(c *Config) { c.Wellbin.LoginURL = "wellbin.co/login" }, "login URL", errs.ErrorTypeInvalidConfiguration},
		{"no output", func(c *Config) { c.Output.BaseDirectory = "" }, "output directory", errs.ErrorTypeInvalidConfiguration},
		{"zero timeout", func(c *Config) { c.Download.Timeout = 0 }, "timeout", errs.ErrorTypeInvalidConfiguration},
		{"negative retries", func(c *Config) { c.Download.RetryAttempts = -2 }, "retry", errs.ErrorTypeInvalidConfiguration},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log level", errs.ErrorTypeInvalidConfiguration},
		{"file type", func(c *Config) { c.Convert.FileType = "xray" }, "file type", errs.ErrorTypeInvalidConfiguration},
		{"no markdown dir", func(c *Config) { c.Convert.OutputDirectory = "" }, "convert input and output", errs.ErrorTypeInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.Is(err, tt.isType))
			assert.True(t, errors.Is(err, errs.ErrorTypeConfiguration) || errors.Is(err, errs.ErrorTypeDataProcessing))
		})
	}
}

func TestSaveOmitsPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := DefaultConfig()
	config.Wellbin.Email = "ana@example.org"
	config.Wellbin.Password = "s3cret"

	require.NoError(t, config.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ana@example.org")
	assert.NotContains(t, string(data), "s3cret")
	assert.Equal(t, "s3cret", config.Wellbin.Password)

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, config.Wellbin.Email, loaded.Wellbin.Email)
	assert.Equal(t, config.Download, loaded.Download)
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()
	config.MergeCommandLineFlags(map[string]interface{}{
		"email":        "flag@example.org",
		"limit":        7,
		"types":        "DicomStudy",
		"headless":     false,
		"engine":       "HTTP",
		"dry-run":      true,
		"retries":      1,
		"metrics-addr": ":9100",
		"output":       "",
	})

	assert.Equal(t, "flag@example.org", config.Wellbin.Email)
	assert.Equal(t, 7, config.Scrape.Limit)
	assert.Equal(t, "DicomStudy", config.Scrape.StudyTypes)
	assert.False(t, config.Scrape.Headless)
	assert.Equal(t, EngineHTTP, config.Scrape.Engine)
	assert.True(t, config.Scrape.DryRun)
	assert.Equal(t, 1, config.Download.RetryAttempts)
	assert.Equal(t, ":9100", config.Metrics.ListenAddress)
	assert.Equal(t, "medical_data", config.Output.BaseDirectory)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scrape:\n  limit: 3\noutput:\n  base_directory: from-file\n"), 0644))

	t.Setenv("WELLBIN_OUTPUT_DIR", "from-env")
	t.Setenv("WELLBIN_STUDY_LIMIT", "4")

	config, err := Load(path, map[string]interface{}{"limit": 9})
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.Output.BaseDirectory)
	assert.Equal(t, 9, config.Scrape.Limit)

	_, err = Load(path, map[string]interface{}{"types": " , "})
	assert.Error(t, err)
}

func TestConvertSettingsPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("WELLBIN_INPUT_DIR", "pdfs")
	t.Setenv("WELLBIN_MARKDOWN_DIR", "md")
	t.Setenv("WELLBIN_FILE_TYPE", "LAB")
	t.Setenv("WELLBIN_PRESERVE_STRUCTURE", "false")

	config, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, ConvertConfig{InputDirectory: "pdfs", OutputDirectory: "md", FileType: FileTypeLab}, config.Convert)

	config, err = Load("", map[string]interface{}{"markdown-dir": "out", "file-type": "imaging", "preserve-structure": true})
	require.NoError(t, err)
	assert.Equal(t, "pdfs", config.Convert.InputDirectory)
	assert.Equal(t, "out", config.Convert.OutputDirectory)
	assert.Equal(t, FileTypeImaging, config.Convert.FileType)
	assert.True(t, config.Convert.PreserveStructure)
}

func TestLoadAcceptsUnknownStudyType(t *testing.T) {
	clearEnv(t)

	config, err := Load("", map[string]interface{}{"types": "GenomicStudy"})
	require.NoError(t, err)
	assert.Equal(t, "GenomicStudy", config.Scrape.StudyTypes)
}

func TestSetBaseURL(t *testing.T) {
	config := DefaultConfig()
	config.SetBaseURL("http://127.0.0.1:9999/")
	assert.Equal(t, "http://127.0.0.1:9999", config.Wellbin.BaseURL)
	assert.Equal(t, "http://127.0.0.1:9999/login", config.Wellbin.LoginURL)
	assert.Equal(t, "http://127.0.0.1:9999/explorer", config.Wellbin.ExplorerURL)
}

func TestWriteEnvTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	require.NoError(t, WriteEnvTemplate(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, name := range []string{"WELLBIN_EMAIL=your-email@example.com", "WELLBIN_PASSWORD=your-password", "WELLBIN_STUDY_TYPES=FhirStudy", "WELLBIN_HEADLESS=true"} {
		assert.True(t, strings.Contains(string(data), name), name)
	}

	assert.ErrorIs(t, WriteEnvTemplate(path, false), ErrEnvFileExists)
	assert.NoError(t, WriteEnvTemplate(path, true))
}
