package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"financas/internal/amqp"
	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/sheets"
	"financas/internal/storage"
)

// SyncStore is what the sync worker needs from persistence.
type SyncStore interface {
	GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
	PendingSync(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncWorker mirrors transactions from SQLite to the external ledger.
// Events arrive over AMQP; ProcessPending is the backup path for events
// that were lost.
type SyncWorker struct {
	store     SyncStore
	ledger    sheets.LedgerWriter
	deleter   sheets.LedgerDeleter
	batchSize int
}

func NewSyncWorker(store SyncStore, ledger sheets.LedgerWriter, deleter sheets.LedgerDeleter, batchSize int) *SyncWorker {
	return &SyncWorker{
		store:     store,
		ledger:    ledger,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleEvent processes one transaction event from the queue.
func (w *SyncWorker) HandleEvent(ctx context.Context, msg *amqp.TransactionEvent) error {
	switch msg.Kind {
	case amqp.KindSync:
		return w.handleSync(ctx, msg.TransactionID)
	case amqp.KindDelete:
		return w.handleDelete(ctx, msg.TransactionID)
	default:
		return fmt.Errorf("unknown event kind %q", msg.Kind)
	}
}

func (w *SyncWorker) handleSync(ctx context.Context, id string) error {
	tx, err := w.store.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between publish and delivery. Nothing to mirror.
		slog.WarnContext(ctx, "Transaction gone before sync, skipping",
			applog.FieldTransactionID, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	return w.syncToLedger(ctx, *tx)
}

func (w *SyncWorker) handleDelete(ctx context.Context, id string) error {
	if w.deleter == nil {
		slog.WarnContext(ctx, "No ledger deleter configured, skipping",
			applog.FieldTransactionID, id)
		return nil
	}
	if err := w.deleter.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete from ledger: %w", err)
	}
	slog.InfoContext(ctx, "Transaction removed from ledger",
		applog.FieldTransactionID, id)
	return nil
}

// ProcessPending mirrors transactions whose events were lost. Individual
// failures are logged and marked so they stop being retried as pending.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.syncToLedger(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending transaction",
				applog.FieldTransactionID, tx.ID,
				applog.FieldError, err)
		}
	}
	return nil
}

// StartupSyncCheck drains the pending backlog on worker start, with a
// larger batch to recover from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.PendingSync(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup",
		"count", len(pending))

	synced, failed := 0, 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.syncToLedger(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction during startup",
				applog.FieldTransactionID, tx.ID,
				applog.FieldError, err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) syncToLedger(ctx context.Context, tx core.Transaction) error {
	ref, err := w.ledger.Append(ctx, tx)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				applog.FieldTransactionID, tx.ID,
				applog.FieldError, markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	if err := w.store.MarkSynced(ctx, tx.ID); err != nil {
		// The row was written; do not fail the event or it would be
		// appended again on redelivery.
		slog.ErrorContext(ctx, "Failed to mark as synced",
			applog.FieldTransactionID, tx.ID,
			applog.FieldError, err)
	}

	slog.InfoContext(ctx, "Transaction mirrored to ledger",
		applog.FieldTransactionID, tx.ID,
		applog.FieldLedgerRef, ref,
		applog.FieldAmountCents, tx.Amount.Cents)
	return nil
}
