package sheets

import (
	"context"

	"gagyebu/internal/core"
)

// TransactionWriter copies a saved transaction to a spreadsheet. Appending
// the same transaction twice must not produce a second row.
type TransactionWriter interface {
	Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}
