package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Info("SQLite ledger ready", "db_path", dbPath, "schema_version", version)
	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tags, err := json.Marshal(nonNilTags(tx.Tags))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("encode tags: %w", err)
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	source := tx.Source
	if source == "" {
		source = core.SourceManual
	}

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		OccurredOn: tx.Date,
		Type:       string(tx.Type),
		Method:     string(tx.Method),
		Category:   tx.Category,
		Payee:      tx.Payee,
		Memo:       tx.Memo,
		Tags:       string(tags),
		Amount:     tx.Amount,
		Source:     source,
		ReceiptRef: tx.ReceiptRef,
		CreatedAt:  createdAt.UTC().Format(timestampLayout),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	r.logger.DebugContext(ctx, "Transaction inserted", log.FieldTxID, row.ID, log.FieldAmount, row.Amount)
	return rowToTransaction(row)
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return rowToTransaction(row)
}

func (r *SQLiteRepository) ListByMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	from, to := monthBounds(year, month)
	rows, err := r.queries.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := rowToTransaction(row)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (r *SQLiteRepository) MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	txs, err := r.ListByMonth(ctx, year, month)
	if err != nil {
		return core.MonthOverview{Year: year, Month: month}, err
	}
	return core.BuildMonthOverview(year, month, txs), nil
}

// PendingSync returns transactions not yet written to the spreadsheet,
// including ones whose last sync failed.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.queries.GetPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	out := make([]PendingSync, len(rows))
	for i, row := range rows {
		created, _ := time.Parse(timestampLayout, row.CreatedAt)
		out[i] = PendingSync{ID: row.ID, Version: row.Version, CreatedAt: created}
	}
	return out, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	n, err := r.queries.MarkTransactionSynced(ctx, r.now().UTC().Format(timestampLayout), id)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	r.logger.InfoContext(ctx, "Transaction marked as synced", log.FieldTxID, id)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	n, err := r.queries.MarkTransactionSyncError(ctx, id)
	if err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	r.logger.WarnContext(ctx, "Transaction marked with sync error", log.FieldTxID, id)
	return nil
}

func rowToTransaction(row TransactionRow) (core.Transaction, error) {
	var tags []string
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return core.Transaction{}, fmt.Errorf("decode tags of transaction %d: %w", row.ID, err)
	}
	created, err := time.Parse(timestampLayout, row.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode created_at of transaction %d: %w", row.ID, err)
	}
	return core.Transaction{
		ID: row.ID,
		TransactionDraft: core.TransactionDraft{
			Amount:   row.Amount,
			Date:     row.OccurredOn,
			Type:     core.TransactionType(row.Type),
			Method:   core.PaymentMethod(row.Method),
			Category: row.Category,
			Payee:    row.Payee,
			Memo:     row.Memo,
			Tags:     nonNilTags(tags),
		},
		Source:     row.Source,
		ReceiptRef: row.ReceiptRef,
		CreatedAt:  created,
	}, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
