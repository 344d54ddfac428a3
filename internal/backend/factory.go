package backend

import (
	"context"
	"errors"
	"fmt"

	"gagyebu/internal/amqp"
	"gagyebu/internal/archive"
	"gagyebu/internal/log"
	"gagyebu/internal/ocr"
	"gagyebu/internal/services"
	"gagyebu/internal/sheets"
	gsheet "gagyebu/internal/sheets/google"
	"gagyebu/internal/sheets/memory"
	"gagyebu/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the ledger store and its optional collaborators.
// AMQP is only wired for sqlite: the worker reads the same database file.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo      storage.Repository
		publisher services.SyncPublisher
		closers   []func() error
	)

	switch config.Type {
	case SQLiteBackend:
		sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		repo = sqliteRepo

		if config.AMQPURL != "" {
			client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
			if err != nil {
				f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
			} else {
				publisher = client
				closers = append(closers, client.Close)
				f.logger.InfoContext(ctx, "Initialized AMQP client",
					"exchange", config.AMQPExchange,
					"queue", config.AMQPQueue)
			}
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend",
			"db_path", config.SQLiteDBPath,
			"amqp_enabled", publisher != nil)

	case MemoryBackend:
		repo = storage.NewMemoryRepository()
		f.logger.InfoContext(ctx, "Initialized memory backend")

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	var archiver archive.Archiver
	if config.GCSBucket != "" {
		gcs, err := archive.NewGCSArchiver(ctx, config.GCSBucket, f.logger)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize receipt archive, continuing without it", log.FieldError, err)
		} else {
			archiver = gcs
			closers = append(closers, gcs.Close)
			f.logger.InfoContext(ctx, "Initialized receipt archive", "bucket", config.GCSBucket)
		}
	}

	ledger := services.NewTransactionService(repo, publisher, archiver, f.logger)
	closers = append(closers, repo.Close)

	return &BackendResult{
		Repository: repo,
		Publisher:  publisher,
		Archiver:   archiver,
		Ledger:     ledger,
		Cleanup:    joinClosers(closers),
	}, nil
}

// CreateAnalyzer returns the configured OCR analyzer.
func (f *DefaultFactory) CreateAnalyzer(ctx context.Context, config Config) (ocr.Analyzer, error) {
	switch config.OCRProvider {
	case "gemini":
		a, err := ocr.NewGeminiAnalyzer(ctx, ocr.GeminiConfig{
			APIKey:      config.GeminiAPIKey,
			Model:       config.GeminiModel,
			Concurrency: config.GeminiConcurrency,
			Logger:      f.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini analyzer: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Gemini analyzer", "model", config.GeminiModel)
		return a, nil
	case "remote", "":
		if config.OCRBaseURL == "" {
			return nil, errors.New("OCR_BASE_URL is required for the remote OCR provider")
		}
		c := ocr.NewClient(ocr.ClientConfig{
			BaseURL:     config.OCRBaseURL,
			Token:       config.OCRAPIToken,
			Timeout:     config.OCRTimeout,
			MaxAttempts: uint(max(config.OCRMaxAttempts, 1)),
			Logger:      f.logger,
		})
		f.logger.InfoContext(ctx, "Initialized remote OCR client", "base_url", config.OCRBaseURL)
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported OCR provider: %s", config.OCRProvider)
	}
}

// CreateSheetsWriter returns the Google Sheets writer, or an in-memory one
// when no spreadsheet is configured.
func (f *DefaultFactory) CreateSheetsWriter(ctx context.Context, config Config) (sheets.TransactionWriter, error) {
	if config.GoogleSpreadsheetID == "" {
		f.logger.WarnContext(ctx, "No spreadsheet configured, syncing to memory")
		return memory.New(), nil
	}
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		SheetName:          config.GoogleSheetName,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets writer")
	return cli, nil
}

func joinClosers(closers []func() error) CleanupFunc {
	return func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
