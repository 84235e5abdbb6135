package sheets

import (
	"context"

	"financas/internal/core"
)

// Ports for outbound ledger mirrors.
type (
	// LedgerWriter appends a transaction to the external ledger and
	// returns a reference to the written row.
	LedgerWriter interface {
		Append(ctx context.Context, t core.Transaction) (rowRef string, err error)
	}

	// LedgerDeleter removes a mirrored transaction by its id.
	LedgerDeleter interface {
		Delete(ctx context.Context, transactionID string) error
	}
)
