package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Pipeline PipelineConfig
	OCR      OCRConfig
	LLM      LLMConfig
}

// DatabaseConfig holds reference-store configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PipelineConfig holds batch sizing and backpressure knobs.
type PipelineConfig struct {
	// PDFBatchSize is how many documents are decomposed per sub-batch.
	PDFBatchSize int
	// SplitWorkers bounds parallel page splitting within a sub-batch.
	SplitWorkers int
	// OCRWorkers bounds concurrent extraction calls across the whole job.
	OCRWorkers int
	// ClassifyBatchSize is how many page images go into one fallback
	// classification call.
	ClassifyBatchSize int
	// MemoryHighWater is the used-memory percentage above which new job
	// submissions are rejected.
	MemoryHighWater float64
	// JobTimeout is the hard ceiling for one job; zero disables it.
	JobTimeout time.Duration
	PagesDir   string
	OutputDir  string
}

// OCRConfig holds local OCR tool configuration
type OCRConfig struct {
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	DPI           int
}

// LLMConfig holds vision-model configuration
type LLMConfig struct {
	Model         string
	ClassifyModel string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	// MinCallInterval paces extraction calls to respect the per-minute quota.
	MinCallInterval time.Duration
	// RateLimitCooldown is the sleep before the single rate-limit retry.
	RateLimitCooldown time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Pipeline: PipelineConfig{
			PDFBatchSize:      getEnvAsInt("PDF_BATCH_SIZE", 10),
			SplitWorkers:      getEnvAsInt("SPLIT_WORKERS", 5),
			OCRWorkers:        getEnvAsInt("OCR_WORKERS", 8),
			ClassifyBatchSize: getEnvAsInt("CLASSIFY_BATCH_SIZE", 10),
			MemoryHighWater:   getEnvAsFloat64("MEMORY_HIGH_WATER_PCT", 85),
			JobTimeout:        getEnvAsDuration("JOB_TIMEOUT", 2*time.Hour),
			PagesDir:          getEnv("PAGES_DIR", "./pages"),
			OutputDir:         getEnv("OUTPUT_DIR", "./output"),
		},
		OCR: OCRConfig{
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			DPI:           getEnvAsInt("PAGE_DPI", 300),
		},
		LLM: LLMConfig{
			Model:             getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			ClassifyModel:     getEnv("GEMINI_CLASSIFY_MODEL", "gemini-2.0-flash-lite"),
			APIKey:            getEnv("GEMINI_API_KEY", ""),
			BaseURL:           getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout:           getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			MinCallInterval:   getEnvAsDuration("GEMINI_MIN_CALL_INTERVAL", 500*time.Millisecond),
			RateLimitCooldown: getEnvAsDuration("GEMINI_RATE_LIMIT_COOLDOWN", 30*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if c.Pipeline.PDFBatchSize <= 0 || c.Pipeline.OCRWorkers <= 0 {
		return NewAppError("CONFIG_ERROR", "batch size and worker counts must be positive", ErrInvalidInput)
	}
	return nil
}
