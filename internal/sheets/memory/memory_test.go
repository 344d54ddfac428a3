package memory

import (
	"context"
	"testing"

	"gagyebu/internal/core"
)

func tx(id int64) core.Transaction {
	return core.Transaction{
		ID: id,
		TransactionDraft: core.TransactionDraft{
			Amount: 12300, Date: "2025-03-01", Type: core.Expense,
			Method: core.Card, Category: "식비", Payee: "김밥천국",
		},
	}
}

func TestMemoryStoreAppend(t *testing.T) {
	s := New()
	ref, err := s.Append(context.Background(), tx(1))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = s.Append(context.Background(), tx(2))
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
}

func TestMemoryStoreAppendIsIdempotent(t *testing.T) {
	s := New()
	first, _ := s.Append(context.Background(), tx(7))
	second, err := s.Append(context.Background(), tx(7))
	if err != nil || first != second {
		t.Fatalf("expected same ref, got %q and %q (err=%v)", first, second, err)
	}
	if n := len(s.Rows()); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	s := New()
	bad := tx(3)
	bad.Amount = 0
	if _, err := s.Append(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}
