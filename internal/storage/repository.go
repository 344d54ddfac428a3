// Package storage persists ledger transactions.
package storage

import (
	"context"
	"errors"
	"time"

	"gagyebu/internal/core"
)

var ErrNotFound = errors.New("transaction not found")

const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// Repository is the ledger store used by the services and the sync worker.
type Repository interface {
	Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	Get(ctx context.Context, id int64) (core.Transaction, error)
	ListByMonth(ctx context.Context, year, month int) ([]core.Transaction, error)
	MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error)
	PendingSync(ctx context.Context, limit int) ([]PendingSync, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
	Close() error
}

// PendingSync is the minimal data needed to queue a sync message.
type PendingSync struct {
	ID        int64
	Version   int64
	CreatedAt time.Time
}

// monthBounds returns the first day of the month and of the next one, as
// YYYY-MM-DD strings suitable for range comparison.
func monthBounds(year, month int) (string, string) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start.Format(core.DateLayout), start.AddDate(0, 1, 0).Format(core.DateLayout)
}

// timestampLayout is fixed width so stored timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
