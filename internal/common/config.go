package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Server     ServerConfig
	Storage    StorageConfig
	OCR        OCRConfig
	Submission SubmissionConfig
	Queue      QueueConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
}

// StorageConfig holds object-storage configuration for receipt images
type StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible stores
	PublicURL string // base URL served to clients; defaults from bucket/region
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	PSM           int    // e.g., 6 is good for uniform block of text
	Timeout       time.Duration
	WorkDir       string
}

// SubmissionConfig holds the thresholds applied at submit time
type SubmissionConfig struct {
	MinConfidence        float32
	MaxReceiptAge        time.Duration
	MaxAmountDrift       float64 // fraction of the OCR amount, e.g. 0.10
	EnableDuplicateCheck bool
}

// QueueConfig holds background processing configuration
type QueueConfig struct {
	Workers        int
	Size           int
	ProcessTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Bucket:    getEnv("S3_BUCKET", "receipts"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			PublicURL: getEnv("S3_PUBLIC_URL", ""),
		},
		OCR: OCRConfig{
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			PSM:           getEnvAsInt("TESSERACT_PSM", 6),
			Timeout:       getEnvAsDuration("OCR_TIMEOUT", 60*time.Second),
			WorkDir:       getEnv("OCR_WORK_DIR", ""),
		},
		Submission: SubmissionConfig{
			MinConfidence:        getEnvAsFloat32("SUBMIT_MIN_CONFIDENCE", 0.7),
			MaxReceiptAge:        getEnvAsDuration("SUBMIT_MAX_RECEIPT_AGE", 7*24*time.Hour),
			MaxAmountDrift:       getEnvAsFloat64("SUBMIT_MAX_AMOUNT_DRIFT", 0.10),
			EnableDuplicateCheck: getEnvAsBool("SUBMIT_ENABLE_DUPLICATE_CHECK", false),
		},
		Queue: QueueConfig{
			Workers:        getEnvAsInt("QUEUE_WORKERS", 4),
			Size:           getEnvAsInt("QUEUE_SIZE", 256),
			ProcessTimeout: getEnvAsDuration("QUEUE_PROCESS_TIMEOUT", 3*time.Minute),
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.Bucket == "" {
		return NewAppError("CONFIG_ERROR", "S3_BUCKET is required", ErrInvalidInput)
	}
	if c.Submission.MinConfidence < 0 || c.Submission.MinConfidence > 1 {
		return NewAppError("CONFIG_ERROR", "SUBMIT_MIN_CONFIDENCE must be in [0,1]", ErrInvalidInput)
	}
	if c.Submission.MaxAmountDrift < 0 {
		return NewAppError("CONFIG_ERROR", "SUBMIT_MAX_AMOUNT_DRIFT cannot be negative", ErrInvalidInput)
	}
	return nil
}
