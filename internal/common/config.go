package common

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Pipeline PipelineConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Store    StoreConfig
	Ingest   IngestConfig
}

// PipelineConfig holds orchestrator behavior settings
type PipelineConfig struct {
	// ConfidenceThreshold gates the image fallback race and defaults to 0.6.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	EnableCorrections   bool    `mapstructure:"enable_corrections"`
	LogResults          bool    `mapstructure:"log_results"`
}

// OCRConfig holds OCR provider configuration
type OCRConfig struct {
	Provider         string        `mapstructure:"provider"`
	FallbackProvider string        `mapstructure:"fallback_provider"`
	TesseractBinary  string        `mapstructure:"tesseract_binary"`
	PdfToTextBinary  string        `mapstructure:"pdftotext_binary"`
	PdfToPpmBinary   string        `mapstructure:"pdftoppm_binary"`
	Languages        string        `mapstructure:"languages"`
	Timeout          time.Duration `mapstructure:"timeout"`
	WorkDir          string        `mapstructure:"work_dir"`
}

// LLMConfig holds enhancement provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StoreConfig holds correction-store configuration
type StoreConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
}

// IngestConfig holds drop-folder watcher configuration
type IngestConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoadConfig loads configuration from an optional yaml file plus RECEIPTD_*
// environment variables, with defaults for every field.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("receiptd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/receiptd/")

	v.SetEnvPrefix("RECEIPTD")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.confidence_threshold", 0.6)
	v.SetDefault("pipeline.enable_corrections", true)
	v.SetDefault("pipeline.log_results", false)

	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.fallback_provider", "")
	v.SetDefault("ocr.tesseract_binary", "tesseract")
	v.SetDefault("ocr.pdftotext_binary", "pdftotext")
	v.SetDefault("ocr.pdftoppm_binary", "pdftoppm")
	v.SetDefault("ocr.languages", "eng")
	v.SetDefault("ocr.timeout", "30s")
	v.SetDefault("ocr.work_dir", "")

	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", "30s")

	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("store.dial_timeout", "3s")

	v.SetDefault("ingest.dir", "")
	v.SetDefault("ingest.debounce", "500ms")
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "pipeline.confidence_threshold must be in [0,1]", ErrInvalidInput)
	}
	if c.OCR.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "ocr.timeout must be positive", ErrInvalidInput)
	}
	if c.LLM.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "llm.timeout must be positive", ErrInvalidInput)
	}
	return nil
}
