package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// TransactionRow mirrors the transactions table.
type TransactionRow struct {
	ID           int64
	OccurredOn   string
	Type         string
	Method       string
	Category     string
	Payee        string
	Memo         string
	Tags         string
	Amount       int64
	Source       string
	ReceiptRef   string
	CreatedAt    string
	SyncStatus   string
	Version      int64
	SyncAttempts int64
	SyncedAt     sql.NullString
}

const transactionColumns = `id, occurred_on, type, method, category, payee, memo, tags, amount,
    source, receipt_ref, created_at, sync_status, version, sync_attempts, synced_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (TransactionRow, error) {
	var i TransactionRow
	err := row.Scan(
		&i.ID,
		&i.OccurredOn,
		&i.Type,
		&i.Method,
		&i.Category,
		&i.Payee,
		&i.Memo,
		&i.Tags,
		&i.Amount,
		&i.Source,
		&i.ReceiptRef,
		&i.CreatedAt,
		&i.SyncStatus,
		&i.Version,
		&i.SyncAttempts,
		&i.SyncedAt,
	)
	return i, err
}

const createTransaction = `
INSERT INTO transactions (occurred_on, type, method, category, payee, memo, tags, amount, source, receipt_ref, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	OccurredOn string
	Type       string
	Method     string
	Category   string
	Payee      string
	Memo       string
	Tags       string
	Amount     int64
	Source     string
	ReceiptRef string
	CreatedAt  string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.OccurredOn,
		arg.Type,
		arg.Method,
		arg.Category,
		arg.Payee,
		arg.Memo,
		arg.Tags,
		arg.Amount,
		arg.Source,
		arg.ReceiptRef,
		arg.CreatedAt,
	)
	return scanTransaction(row)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (TransactionRow, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactionsBetween = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE occurred_on >= ? AND occurred_on < ?
ORDER BY occurred_on, id`

func (q *Queries) ListTransactionsBetween(ctx context.Context, from, to string) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactionsBetween, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPendingSync = `
SELECT id, version, created_at
FROM transactions
WHERE sync_status IN ('pending', 'error')
ORDER BY created_at, id
LIMIT ?`

type GetPendingSyncRow struct {
	ID        int64
	Version   int64
	CreatedAt string
}

func (q *Queries) GetPendingSync(ctx context.Context, limit int64) ([]GetPendingSyncRow, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSync, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetPendingSyncRow
	for rows.Next() {
		var i GetPendingSyncRow
		if err := rows.Scan(&i.ID, &i.Version, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markTransactionSynced = `
UPDATE transactions
SET sync_status = 'synced', synced_at = ?
WHERE id = ?`

func (q *Queries) MarkTransactionSynced(ctx context.Context, syncedAt string, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markTransactionSynced, syncedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markTransactionSyncError = `
UPDATE transactions
SET sync_status = 'error', sync_attempts = sync_attempts + 1, version = version + 1
WHERE id = ?`

func (q *Queries) MarkTransactionSyncError(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markTransactionSyncError, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
