package google

import (
	"fmt"
	"strconv"
	"strings"

	"gagyebu/internal/core"
)

// transactionRow lays a transaction out as
// id, date, type, method, category, payee, amount, memo, tags.
func transactionRow(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.Date,
		typeLabel(tx.Type),
		methodLabel(tx.Method),
		tx.Category,
		tx.Payee,
		tx.Amount,
		tx.Memo,
		strings.Join(tx.Tags, ", "),
	}
}

func typeLabel(t core.TransactionType) string {
	if t == core.Income {
		return "수입"
	}
	return "지출"
}

func methodLabel(m core.PaymentMethod) string {
	switch m {
	case core.Cash:
		return "현금"
	case core.Bank:
		return "계좌이체"
	default:
		return "카드"
	}
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
