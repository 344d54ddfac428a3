// Package backend builds the storage, messaging, archive and OCR
// collaborators selected by configuration.
package backend

import (
	"context"
	"slices"

	"gagyebu/internal/archive"
	"gagyebu/internal/ocr"
	"gagyebu/internal/services"
	"gagyebu/internal/sheets"
	"gagyebu/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is the ledger stack the HTTP server runs on.
type BackendResult struct {
	Repository storage.Repository
	Publisher  services.SyncPublisher
	Archiver   archive.Archiver
	Ledger     *services.TransactionService
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateAnalyzer(ctx context.Context, config Config) (ocr.Analyzer, error)
	CreateSheetsWriter(ctx context.Context, config Config) (sheets.TransactionWriter, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
