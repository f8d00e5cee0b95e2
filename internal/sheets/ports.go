package sheets

import (
	"context"

	"budgetshare/internal/core"
)

// Ports for outbound adapters.
type (
	// Exporter mirrors the ledger into an external spreadsheet, one row per
	// transaction keyed by ID. Both calls are idempotent.
	Exporter interface {
		Upsert(ctx context.Context, tx core.Transaction) error
		Delete(ctx context.Context, id int64) error
	}
)
