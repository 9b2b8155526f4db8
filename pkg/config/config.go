package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "wellbin/pkg/errors"
	"wellbin/pkg/models"
)

const (
	EngineChrome = "chrome"
	EngineHTTP   = "http"

	// Report kinds accepted by the convert command.
	FileTypeLab     = "lab"
	FileTypeImaging = "imaging"
	FileTypeAll     = "all"
)

// Config holds all configuration options for the downloader
type Config struct {
	Wellbin   WellbinConfig   `yaml:"wellbin" json:"wellbin"`
	Scrape    ScrapeConfig    `yaml:"scrape" json:"scrape"`
	Output    OutputConfig    `yaml:"output" json:"output"`
	Download  DownloadConfig  `yaml:"download" json:"download"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Convert   ConvertConfig   `yaml:"convert" json:"convert"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// WellbinConfig holds the portal endpoints and account
type WellbinConfig struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	LoginURL    string `yaml:"login_url" json:"login_url"`
	ExplorerURL string `yaml:"explorer_url" json:"explorer_url"`
	Email       string `yaml:"email" json:"email"`
	Password    string `yaml:"password" json:"-"`
	UserAgent   string `yaml:"user_agent" json:"user_agent"`
}

// ScrapeConfig controls discovery and the browser session
type ScrapeConfig struct {
	StudyTypes  string        `yaml:"study_types" json:"study_types"`
	Limit       int           `yaml:"limit" json:"limit"`
	Headless    bool          `yaml:"headless" json:"headless"`
	Engine      string        `yaml:"engine" json:"engine"`
	LoginSettle time.Duration `yaml:"login_settle" json:"login_settle"`
	ElementWait time.Duration `yaml:"element_wait" json:"element_wait"`
	DryRun      bool          `yaml:"dry_run" json:"dry_run"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
	ValidatePDFs  bool   `yaml:"validate_pdfs" json:"validate_pdfs"`
	WriteMetadata bool   `yaml:"write_metadata" json:"write_metadata"`
	MaxFileSize   int64  `yaml:"max_file_size" json:"max_file_size"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	ChunkSize     int           `yaml:"chunk_size" json:"chunk_size"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// RateLimitConfig holds the courtesy delays
type RateLimitConfig struct {
	NavigationInterval time.Duration `yaml:"navigation_interval" json:"navigation_interval"`
	DownloadInterval   time.Duration `yaml:"download_interval" json:"download_interval"`
	DownloadsPerMinute int           `yaml:"downloads_per_minute" json:"downloads_per_minute"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// ConvertConfig controls the PDF to markdown conversion
type ConvertConfig struct {
	InputDirectory    string `yaml:"input_directory" json:"input_directory"`
	OutputDirectory   string `yaml:"output_directory" json:"output_directory"`
	FileType          string `yaml:"file_type" json:"file_type"`
	PreserveStructure bool   `yaml:"preserve_structure" json:"preserve_structure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Wellbin: WellbinConfig{
			BaseURL:     "https://wellbin.co",
			LoginURL:    "https://wellbin.co/login",
			ExplorerURL: "https://wellbin.co/explorer",
			UserAgent:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Scrape: ScrapeConfig{
			StudyTypes:  models.TagFhirStudy,
			Limit:       0,
			Headless:    true,
			Engine:      EngineChrome,
			LoginSettle: 3 * time.Second,
			ElementWait: 10 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory: "medical_data",
			ValidatePDFs:  false,
			WriteMetadata: false,
			MaxFileSize:   0, // 0 means no limit
		},
		Download: DownloadConfig{
			Timeout:       30 * time.Second,
			ChunkSize:     8192,
			RetryAttempts: 0,
			RetryDelay:    2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			NavigationInterval: 500 * time.Millisecond,
			DownloadInterval:   200 * time.Millisecond,
			DownloadsPerMinute: 60,
		},
		Convert: ConvertConfig{
			InputDirectory:    "medical_data",
			OutputDirectory:   "markdown_reports",
			FileType:          FileTypeAll,
			PreserveStructure: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// envValue returns the trimmed variable, treating blank as unset.
func envValue(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

// ParseBool accepts true/1/yes/on (any case) as true; everything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// LoadFromEnv loads configuration from WELLBIN_* environment variables.
// Empty values leave the current setting untouched.
func (c *Config) LoadFromEnv() error {
	var errList []error

	if v, ok := envValue("WELLBIN_EMAIL"); ok {
		c.Wellbin.Email = v
	}
	if v, ok := envValue("WELLBIN_PASSWORD"); ok {
		c.Wellbin.Password = v
	}
	if v, ok := envValue("WELLBIN_BASE_URL"); ok {
		c.SetBaseURL(v)
	}
	if v, ok := envValue("WELLBIN_STUDY_TYPES"); ok {
		c.Scrape.StudyTypes = v
	}
	if v, ok := envValue("WELLBIN_STUDY_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("WELLBIN_STUDY_LIMIT: %w", err))
		} else {
			c.Scrape.Limit = n
		}
	}
	if v, ok := envValue("WELLBIN_OUTPUT_DIR"); ok {
		c.Output.BaseDirectory = v
	}
	if v, ok := envValue("WELLBIN_HEADLESS"); ok {
		c.Scrape.Headless = ParseBool(v)
	}
	if v, ok := envValue("WELLBIN_ENGINE"); ok {
		c.Scrape.Engine = strings.ToLower(v)
	}
	if v, ok := envValue("WELLBIN_DOWNLOAD_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("WELLBIN_DOWNLOAD_TIMEOUT: %w", err))
		} else {
			c.Download.Timeout = d
		}
	}
	if v, ok := envValue("WELLBIN_RETRY_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errList = append(errList, fmt.Errorf("WELLBIN_RETRY_ATTEMPTS: %w", err))
		} else {
			c.Download.RetryAttempts = n
		}
	}
	if v, ok := envValue("WELLBIN_METRICS_ADDR"); ok {
		c.Metrics.ListenAddress = v
	}
	if v, ok := envValue("WELLBIN_INPUT_DIR"); ok {
		c.Convert.InputDirectory = v
	}
	if v, ok := envValue("WELLBIN_MARKDOWN_DIR"); ok {
		c.Convert.OutputDirectory = v
	}
	if v, ok := envValue("WELLBIN_FILE_TYPE"); ok {
		c.Convert.FileType = strings.ToLower(v)
	}
	if v, ok := envValue("WELLBIN_PRESERVE_STRUCTURE"); ok {
		c.Convert.PreserveStructure = ParseBool(v)
	}
	if v, ok := envValue("WELLBIN_LOG_LEVEL"); ok {
		c.Logging.Level = v
	}

	return errors.Join(errList...)
}

// SetBaseURL points all portal endpoints at base.
func (c *Config) SetBaseURL(base string) {
	base = strings.TrimRight(base, "/")
	c.Wellbin.BaseURL = base
	c.Wellbin.LoginURL = base + "/login"
	c.Wellbin.ExplorerURL = base + "/explorer"
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".wellbin.yaml",
		".wellbin.yml",
		filepath.Join(home, ".config", "wellbin", "config.yaml"),
		filepath.Join(home, ".config", "wellbin", "config.yml"),
		filepath.Join(home, ".wellbin.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Credentials are checked
// separately, right before logging in.
func (c *Config) Validate() error {
	var errList []error

	for _, u := range []struct{ name, value string }{
		{"base URL", c.Wellbin.BaseURL},
		{"login URL", c.Wellbin.LoginURL},
		{"explorer URL", c.Wellbin.ExplorerURL},
	} {
		if !strings.HasPrefix(u.value, "http://") && !strings.HasPrefix(u.value, "https://") {
			errList = append(errList, errs.NewInvalidConfiguration(fmt.Sprintf("%s must be an http(s) URL, got %q", u.name, u.value)))
		}
	}

	// Unknown tags are allowed; their studies land in other_reports.
	if strings.Trim(c.Scrape.StudyTypes, " ,") == "" {
		errList = append(errList, errs.NewInvalidConfiguration("at least one study type is required"))
	}

	if c.Scrape.Limit < 0 {
		errList = append(errList, errs.NewInvalidConfiguration("study limit cannot be negative"))
	}
	switch c.Scrape.Engine {
	case EngineChrome, EngineHTTP:
	default:
		errList = append(errList, errs.NewInvalidConfiguration(fmt.Sprintf("unknown engine %q (want chrome or http)", c.Scrape.Engine)))
	}

	if c.Output.BaseDirectory == "" {
		errList = append(errList, errs.NewInvalidConfiguration("output directory is required"))
	}
	if c.Output.MaxFileSize < 0 {
		errList = append(errList, errs.NewInvalidConfiguration("max file size cannot be negative"))
	}

	if c.Download.Timeout <= 0 {
		errList = append(errList, errs.NewInvalidConfiguration("download timeout must be positive"))
	}
	if c.Download.ChunkSize <= 0 {
		errList = append(errList, errs.NewInvalidConfiguration("chunk size must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errList = append(errList, errs.NewInvalidConfiguration("retry attempts cannot be negative"))
	}

	if c.RateLimit.NavigationInterval < 0 || c.RateLimit.DownloadInterval < 0 {
		errList = append(errList, errs.NewInvalidConfiguration("rate limit intervals cannot be negative"))
	}
	if c.RateLimit.DownloadsPerMinute < 0 {
		errList = append(errList, errs.NewInvalidConfiguration("downloads per minute cannot be negative"))
	}

	switch c.Convert.FileType {
	case FileTypeLab, FileTypeImaging, FileTypeAll:
	default:
		errList = append(errList, errs.NewInvalidConfiguration(fmt.Sprintf("unknown file type %q (want lab, imaging or all)", c.Convert.FileType)))
	}
	if c.Convert.InputDirectory == "" || c.Convert.OutputDirectory == "" {
		errList = append(errList, errs.NewInvalidConfiguration("convert input and output directories are required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errList = append(errList, errs.NewInvalidConfiguration("invalid log level"))
	}

	return errors.Join(errList...)
}

// Save saves the configuration to a file. The password is never written.
func (c *Config) Save(path string) error {
	clean := *c
	clean.Wellbin.Password = ""

	data, err := yaml.Marshal(&clean)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags applies flags that were explicitly set. Keys match
// the flag names of the scrape and convert commands.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if email, ok := flags["email"].(string); ok && email != "" {
		c.Wellbin.Email = email
	}
	if password, ok := flags["password"].(string); ok && password != "" {
		c.Wellbin.Password = password
	}
	if limit, ok := flags["limit"].(int); ok && limit >= 0 {
		c.Scrape.Limit = limit
	}
	if types, ok := flags["types"].(string); ok && types != "" {
		c.Scrape.StudyTypes = types
	}
	if output, ok := flags["output"].(string); ok && output != "" {
		c.Output.BaseDirectory = output
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Scrape.Headless = headless
	}
	if engine, ok := flags["engine"].(string); ok && engine != "" {
		c.Scrape.Engine = strings.ToLower(engine)
	}
	if dryRun, ok := flags["dry-run"].(bool); ok {
		c.Scrape.DryRun = dryRun
	}
	if retries, ok := flags["retries"].(int); ok && retries >= 0 {
		c.Download.RetryAttempts = retries
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.ListenAddress = addr
	}
	if validate, ok := flags["validate-pdfs"].(bool); ok {
		c.Output.ValidatePDFs = validate
	}
	if meta, ok := flags["metadata"].(bool); ok {
		c.Output.WriteMetadata = meta
	}
	if in, ok := flags["input-dir"].(string); ok && in != "" {
		c.Convert.InputDirectory = in
	}
	if out, ok := flags["markdown-dir"].(string); ok && out != "" {
		c.Convert.OutputDirectory = out
	}
	if fileType, ok := flags["file-type"].(string); ok && fileType != "" {
		c.Convert.FileType = strings.ToLower(fileType)
	}
	if preserve, ok := flags["preserve-structure"].(bool); ok {
		c.Convert.PreserveStructure = preserve
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// LoadDotEnv reads .env files into the process environment without
// overriding variables that are already set.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".wellbin.env"))
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	LoadDotEnv()

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
