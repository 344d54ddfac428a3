// Package worker copies saved transactions to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"

	"gagyebu/internal/amqp"
	"gagyebu/internal/log"
	"gagyebu/internal/sheets"
	"gagyebu/internal/storage"
)

// SyncWorker handles synchronization of transactions from the ledger to Google Sheets
type SyncWorker struct {
	repo      storage.Repository
	sheets    sheets.TransactionWriter
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(repo storage.Repository, writer sheets.TransactionWriter, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		repo:      repo,
		sheets:    writer,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage processes a single sync message from AMQP. A message
// for a transaction that no longer exists is acknowledged and dropped.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message", log.FieldTxID, msg.ID, "version", msg.Version)

	if err := w.syncOne(ctx, msg.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			w.logger.WarnContext(ctx, "Dropping sync message for unknown transaction", log.FieldTxID, msg.ID)
			return nil
		}
		return err
	}
	return nil
}

// ProcessPending syncs transactions that never made it to the sheet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep once at worker startup.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.repo.PendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Processing pending transactions", log.FieldCount, len(pending))

	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.syncOne(ctx, p.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync transaction", log.FieldTxID, p.ID, log.FieldError, err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncOne(ctx context.Context, id int64) error {
	tx, err := w.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			w.markError(ctx, id)
		}
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	ref, err := w.sheets.Append(ctx, tx)
	if err != nil {
		w.markError(ctx, id)
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.repo.MarkSynced(ctx, id); err != nil {
		// The row is in the sheet; the next sweep finds it by id and does not duplicate it.
		w.logger.ErrorContext(ctx, "Failed to mark as synced", log.FieldTxID, id, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Successfully synced transaction",
		log.FieldOperation, log.OpSync,
		log.FieldTxID, id,
		"sheets_ref", ref,
		log.FieldAmount, tx.Amount,
		log.FieldCategory, tx.Category)
	return nil
}

func (w *SyncWorker) markError(ctx context.Context, id int64) {
	if err := w.repo.MarkSyncError(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldTxID, id, log.FieldError, err)
	}
}
