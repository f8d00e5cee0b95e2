package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"budgetshare/internal/amqp"
	"budgetshare/internal/core"
	"budgetshare/internal/metrics"
	"budgetshare/internal/ports"
	"budgetshare/internal/sheets"
)

// Store is the storage the worker reads from.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	ports.SyncStore
}

// SyncWorker mirrors ledger changes to the spreadsheet export.
type SyncWorker struct {
	store     Store
	exporter  sheets.Exporter
	batchSize int
}

func NewSyncWorker(store Store, exporter sheets.Exporter, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// Handlers wires the worker into an AMQP consumer.
func (w *SyncWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		OnSync:   w.HandleSyncMessage,
		OnDelete: w.HandleDeleteMessage,
	}
}

// HandleSyncMessage exports the transaction named by msg. Messages for a
// version older than the stored one are skipped; a newer message follows.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	tx, err := w.store.GetTransaction(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		slog.InfoContext(ctx, "Transaction deleted before export, skipping", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if tx.Version > msg.Version {
		slog.DebugContext(ctx, "Skipping stale sync message",
			"id", msg.ID, "message_version", msg.Version, "stored_version", tx.Version)
		return nil
	}

	return w.export(ctx, tx)
}

// HandleDeleteMessage removes the exported row for msg.ID.
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.TransactionDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message", "id", msg.ID)

	err := w.exporter.Delete(ctx, msg.ID)
	metrics.ExportProcessed("delete", err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to delete exported transaction",
			"id", msg.ID,
			"error", err,
			"timestamp", msg.Timestamp)
		return fmt.Errorf("delete exported row: %w", err)
	}

	slog.InfoContext(ctx, "Deleted exported transaction", "id", msg.ID)
	return nil
}

// ProcessPendingTransactions exports rows still marked pending and retries
// rows whose last export failed. It backs up the message path in case AMQP
// messages are lost. Returns how many were
// exported.
func (w *SyncWorker) ProcessPendingTransactions(ctx context.Context) (int, error) {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		tx, err := w.store.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get transaction", "id", p.ID, "error", err)
			if err := w.store.MarkSyncError(ctx, p.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to mark sync error", "id", p.ID, "error", err)
			}
			continue
		}
		if err := w.export(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", p.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) export(ctx context.Context, tx core.Transaction) error {
	err := w.exporter.Upsert(ctx, tx)
	metrics.ExportProcessed("upsert", err)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("export transaction: %w", err)
	}

	// The row is exported; a failure here only means a redundant re-export later.
	if err := w.store.MarkSynced(ctx, tx.ID, tx.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"id", tx.ID,
		"version", tx.Version,
		"amount_cents", tx.Amount.Cents)
	return nil
}
