// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for databases, CSV caches and results (always absolute)
	OutputDir    string // Overrides DataDir/results for run outputs
	LogLevel     string
	LogPretty    bool
	Port         int
	DevMode      bool
	Workers      int // 0 = one per logical CPU
	AlphaVantage AlphaVantageConfig
	Export       ExportConfig
	// PriceSyncSchedule is a cron spec (with seconds) for refreshing the default universe.
	PriceSyncSchedule string
}

// AlphaVantageConfig holds market data API settings.
type AlphaVantageConfig struct {
	APIKey     string
	DailyLimit int // Requests per UTC day (free tier: 25)
	PerMinute  int // Requests per minute (free tier: 5)
}

// ExportConfig holds S3-compatible result export settings. Export is
// disabled when Bucket is empty.
type ExportConfig struct {
	Bucket          string
	Endpoint        string // Empty for AWS, set for R2/MinIO
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // Key prefix for archives
	RetentionDays   int    // Archives older than this are rotated; 0 keeps everything
}

// Enabled reports whether results should be uploaded.
func (e ExportConfig) Enabled() bool {
	return e.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SHARPESCAN_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:   absDataDir,
		OutputDir: getEnv("SHARPESCAN_RESULTS_DIR", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Port:      getEnvAsInt("PORT", 8080),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Workers:   getEnvAsInt("WORKERS", 0),
		AlphaVantage: AlphaVantageConfig{
			APIKey:     getEnv("ALPHAVANTAGE_API_KEY", ""),
			DailyLimit: getEnvAsInt("ALPHAVANTAGE_DAILY_LIMIT", 25),
			PerMinute:  getEnvAsInt("ALPHAVANTAGE_PER_MINUTE", 5),
		},
		Export: ExportConfig{
			Bucket:          getEnv("S3_BUCKET", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "runs"),
			RetentionDays:   getEnvAsInt("S3_RETENTION_DAYS", 90),
		},
		PriceSyncSchedule: getEnv("PRICE_SYNC_SCHEDULE", "0 30 22 * * 1-5"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configured values are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Workers < 0 {
		return fmt.Errorf("WORKERS must be >= 0, got %d", c.Workers)
	}
	if c.AlphaVantage.DailyLimit <= 0 || c.AlphaVantage.PerMinute <= 0 {
		return fmt.Errorf("alpha vantage limits must be positive (daily=%d, per minute=%d)",
			c.AlphaVantage.DailyLimit, c.AlphaVantage.PerMinute)
	}
	if c.Export.Enabled() && (c.Export.AccessKeyID == "" || c.Export.SecretAccessKey == "") {
		return fmt.Errorf("S3_BUCKET is set but S3 credentials are missing")
	}
	if c.Export.RetentionDays < 0 {
		return fmt.Errorf("S3_RETENTION_DAYS must be >= 0, got %d", c.Export.RetentionDays)
	}
	if _, err := cron.NewParser(cronFields).Parse(c.PriceSyncSchedule); err != nil {
		return fmt.Errorf("invalid PRICE_SYNC_SCHEDULE %q: %w", c.PriceSyncSchedule, err)
	}
	return nil
}

// cronFields is the six-field (seconds first) spec format used by the scheduler.
const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow

// ResultsDir is where CSV and summary outputs are written.
func (c *Config) ResultsDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.DataDir, "results")
}

// Helper functions
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
