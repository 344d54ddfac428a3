package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"gagyebu/internal/core"
)

type memoryRow struct {
	tx      core.Transaction
	status  string
	version int64
}

// MemoryRepository keeps transactions in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	rows   map[int64]*memoryRow
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[int64]*memoryRow), now: time.Now}
}

func (m *MemoryRepository) Insert(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	tx.ID = m.nextID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = m.now().UTC()
	}
	if tx.Source == "" {
		tx.Source = core.SourceManual
	}
	tx.Tags = append([]string{}, tx.Tags...)
	m.rows[tx.ID] = &memoryRow{tx: tx, status: SyncPending, version: 1}
	return tx, nil
}

func (m *MemoryRepository) Get(_ context.Context, id int64) (core.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		return core.Transaction{}, ErrNotFound
	}
	return row.tx, nil
}

func (m *MemoryRepository) ListByMonth(_ context.Context, year, month int) ([]core.Transaction, error) {
	from, to := monthBounds(year, month)
	m.mu.RLock()
	out := []core.Transaction{}
	for _, row := range m.rows {
		if row.tx.Date >= from && row.tx.Date < to {
			out = append(out, row.tx)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) MonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	txs, _ := m.ListByMonth(ctx, year, month)
	return core.BuildMonthOverview(year, month, txs), nil
}

func (m *MemoryRepository) PendingSync(_ context.Context, limit int) ([]PendingSync, error) {
	m.mu.RLock()
	out := []PendingSync{}
	for _, row := range m.rows {
		if row.status != SyncDone {
			out = append(out, PendingSync{ID: row.tx.ID, Version: row.version, CreatedAt: row.tx.CreatedAt})
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) MarkSynced(_ context.Context, id int64) error {
	return m.setStatus(id, SyncDone)
}

func (m *MemoryRepository) MarkSyncError(_ context.Context, id int64) error {
	return m.setStatus(id, SyncError)
}

func (m *MemoryRepository) setStatus(id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	row.status = status
	if status == SyncError {
		row.version++
	}
	return nil
}

func (m *MemoryRepository) Close() error { return nil }
