package backend

import (
	"errors"
	"fmt"
	"time"

	"gagyebu/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GCSBucket string

	OCRProvider       string
	OCRBaseURL        string
	OCRAPIToken       string
	OCRTimeout        time.Duration
	OCRMaxAttempts    int
	GeminiAPIKey      string
	GeminiModel       string
	GeminiConcurrency int

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (valid: %v)", appConfig.DataBackend, GetBackendTypes())
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GCSBucket: appConfig.GCSBucket,

		OCRProvider:       appConfig.OCRProvider,
		OCRBaseURL:        appConfig.OCRBaseURL,
		OCRAPIToken:       appConfig.OCRAPIToken,
		OCRTimeout:        appConfig.OCRTimeout,
		OCRMaxAttempts:    appConfig.OCRMaxAttempts,
		GeminiAPIKey:      appConfig.GeminiAPIKey,
		GeminiModel:       appConfig.GeminiModel,
		GeminiConcurrency: appConfig.GeminiConcurrency,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, MemoryBackend}
}
