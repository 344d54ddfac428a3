package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"gagyebu/internal/archive"
	"gagyebu/internal/cache"
	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/storage"
)

const (
	overviewCacheSize = 24
	overviewCacheTTL  = 10 * time.Minute
)

var (
	ErrInvalidMonth = errors.New("invalid year or month")
	ErrNoReceipt    = errors.New("transaction has no archived receipt")
)

// SyncPublisher announces a saved transaction to the sync worker.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64) error
}

// TransactionSubmitter receives drafts handed off by the review workflow.
type TransactionSubmitter interface {
	SubmitReceipt(ctx context.Context, draft core.TransactionDraft, file core.ReceiptFile) (core.Transaction, error)
}

// TransactionService orchestrates ledger writes across storage, the receipt
// archive and AMQP.
type TransactionService struct {
	repo      storage.Repository
	publisher SyncPublisher
	archiver  archive.Archiver
	overviews *cache.LRUCache[core.MonthOverview]
	logger    *log.Logger
	events    *log.StructuredLogger
}

var _ TransactionSubmitter = (*TransactionService)(nil)

// NewTransactionService wires the service. publisher and archiver may be nil.
func NewTransactionService(repo storage.Repository, publisher SyncPublisher, archiver archive.Archiver, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &TransactionService{
		repo:      repo,
		publisher: publisher,
		archiver:  archiver,
		overviews: cache.NewLRUCache[core.MonthOverview](overviewCacheSize, overviewCacheTTL),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

// OverviewCache exposes the month overview cache for periodic cleanup.
func (s *TransactionService) OverviewCache() cache.Cleaner { return s.overviews }

// Create saves a manually entered transaction.
func (s *TransactionService) Create(ctx context.Context, draft core.TransactionDraft) (core.Transaction, error) {
	return s.save(ctx, draft, core.SourceManual, nil)
}

// SubmitReceipt saves a transaction reviewed from a receipt, archiving the image first.
func (s *TransactionService) SubmitReceipt(ctx context.Context, draft core.TransactionDraft, file core.ReceiptFile) (core.Transaction, error) {
	return s.save(ctx, draft, core.SourceReceipt, &file)
}

func (s *TransactionService) save(ctx context.Context, draft core.TransactionDraft, source string, receipt *core.ReceiptFile) (core.Transaction, error) {
	draft = draft.NormalizeTags()
	if err := draft.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{TransactionDraft: draft, Source: source}
	if receipt != nil && s.archiver != nil {
		ref, err := s.archiver.Store(ctx, *receipt)
		if err != nil {
			// The ledger entry matters more than the image.
			s.events.LogError(ctx, "Failed to archive receipt", err, log.OpArchive, log.NewFields().With(log.FieldPayee, draft.Payee))
		} else {
			tx.ReceiptRef = ref
		}
	}

	saved, err := s.repo.Insert(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.events.LogTransactionSaved(ctx, saved.ID, saved.Amount, saved.Category, saved.Payee, saved.Source)

	s.invalidate(saved.Date)

	if err := s.publishSyncMessage(ctx, saved.ID, 1); err != nil {
		// Don't fail the request: the pending sweep picks it up.
		s.logger.ErrorContext(ctx, "Failed to publish sync message", log.FieldTxID, saved.ID, log.FieldError, err)
	}
	return saved, nil
}

func (s *TransactionService) publishSyncMessage(ctx context.Context, id, version int64) error {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}
	return s.publisher.PublishTransactionSync(ctx, id, version)
}

// ListMonth returns the month's transactions ordered by date.
func (s *TransactionService) ListMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	if err := checkMonth(year, month); err != nil {
		return nil, err
	}
	txs, err := s.repo.ListByMonth(ctx, year, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Receipt reads back the archived image of a transaction.
func (s *TransactionService) Receipt(ctx context.Context, id int64) (core.ReceiptFile, error) {
	tx, err := s.repo.Get(ctx, id)
	if err != nil {
		return core.ReceiptFile{}, fmt.Errorf("get transaction: %w", err)
	}
	if tx.ReceiptRef == "" || s.archiver == nil {
		return core.ReceiptFile{}, fmt.Errorf("%w: %d", ErrNoReceipt, id)
	}
	_, object, err := archive.ParseRef(tx.ReceiptRef)
	if err != nil {
		return core.ReceiptFile{}, err
	}
	data, err := s.archiver.Fetch(ctx, tx.ReceiptRef)
	if err != nil {
		return core.ReceiptFile{}, fmt.Errorf("fetch receipt: %w", err)
	}
	return core.ReceiptFile{Name: path.Base(object), Data: data}, nil
}

// Overview returns the dashboard and calendar data for a month.
func (s *TransactionService) Overview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	if err := checkMonth(year, month); err != nil {
		return core.MonthOverview{}, err
	}
	key := monthKey(year, month)
	if ov, ok := s.overviews.Get(key); ok {
		return ov, nil
	}
	ov, err := s.repo.MonthOverview(ctx, year, month)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("month overview: %w", err)
	}
	s.overviews.Set(key, ov)
	return ov, nil
}

func (s *TransactionService) invalidate(date string) {
	if len(date) >= 7 {
		s.overviews.Delete(date[:7])
	}
}

// Close closes storage and the publisher when it can be closed.
func (s *TransactionService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if c, ok := s.archiver.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}
	return errors.Join(errs...)
}

func checkMonth(year, month int) error {
	if year < 1900 || year > 9999 || month < 1 || month > 12 {
		return fmt.Errorf("%w: %d-%d", ErrInvalidMonth, year, month)
	}
	return nil
}

func monthKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
