package export

import (
	"context"

	"bilancio/internal/core"
)

// EntryWriter mirrors a materialized ledger entry to an external sheet.
type EntryWriter interface {
	Append(ctx context.Context, accountName string, e core.LedgerEntry) (rowRef string, err error)
}
