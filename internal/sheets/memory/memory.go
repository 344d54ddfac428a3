package memory

import (
	"context"
	"fmt"
	"sync"

	"gagyebu/internal/core"
	ports "gagyebu/internal/sheets"
)

var _ ports.TransactionWriter = (*Store)(nil)

// Store keeps appended transactions in memory. Used when no spreadsheet is configured.
type Store struct {
	mu    sync.Mutex
	refs  map[int64]string
	items []core.Transaction
}

func New() *Store {
	return &Store{refs: map[int64]string{}}
}

// Append stores the transaction and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[tx.ID]; ok {
		return ref, nil
	}
	s.items = append(s.items, tx)
	ref := fmt.Sprintf("mem:%d", len(s.items))
	s.refs[tx.ID] = ref
	return ref, nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.items...)
}
