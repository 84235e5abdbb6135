package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/sheets/memory"
	"financas/internal/storage"
)

type failingLedger struct {
	calls int
}

func (f *failingLedger) Append(ctx context.Context, t core.Transaction) (string, error) {
	f.calls++
	return "", errors.New("quota exceeded")
}

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "financas.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository, id string) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		ID:       id,
		Type:     core.Expense,
		Category: core.CategoryAlimentacao,
		Amount:   core.Money{Cents: 4590},
		Date:     core.NewDate(2025, time.June, 15),
	}
	if err := repo.CreateTransaction(context.Background(), &tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

func TestHandleEvent_Sync(t *testing.T) {
	repo := newTestRepo(t)
	ledger := memory.New()
	w := NewSyncWorker(repo, ledger, ledger, 10)
	ctx := context.Background()

	seedTransaction(t, repo, "tx-1")

	if err := w.HandleEvent(ctx, amqp.NewSyncEvent("tx-1")); err != nil {
		t.Fatalf("handle sync: %v", err)
	}

	items := ledger.Items()
	if len(items) != 1 || items[0].ID != "tx-1" {
		t.Errorf("ledger = %+v, want the synced transaction", items)
	}
	if items[0].Amount.Cents != 4590 {
		t.Errorf("amount = %d, want 4590", items[0].Amount.Cents)
	}

	// Marked synced, so the pending backlog is empty.
	pending, err := repo.PendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestHandleEvent_SyncMissingTransaction(t *testing.T) {
	repo := newTestRepo(t)
	ledger := memory.New()
	w := NewSyncWorker(repo, ledger, ledger, 10)

	// Deleted before the event arrived: acked, not retried.
	if err := w.HandleEvent(context.Background(), amqp.NewSyncEvent("gone")); err != nil {
		t.Fatalf("handle sync for missing transaction: %v", err)
	}
	if len(ledger.Items()) != 0 {
		t.Error("nothing should have been mirrored")
	}
}

func TestHandleEvent_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ledger := memory.New()
	w := NewSyncWorker(repo, ledger, ledger, 10)
	ctx := context.Background()

	seedTransaction(t, repo, "tx-1")
	if err := w.HandleEvent(ctx, amqp.NewSyncEvent("tx-1")); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if err := w.HandleEvent(ctx, amqp.NewDeleteEvent("tx-1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(ledger.Items()) != 0 {
		t.Errorf("ledger still holds %d rows", len(ledger.Items()))
	}
}

func TestHandleEvent_UnknownKind(t *testing.T) {
	w := NewSyncWorker(newTestRepo(t), memory.New(), nil, 10)

	err := w.HandleEvent(context.Background(), &amqp.TransactionEvent{Kind: "rename", TransactionID: "tx-1"})
	if err == nil {
		t.Fatal("expected error for unknown event kind")
	}
}

func TestProcessPending(t *testing.T) {
	repo := newTestRepo(t)
	ledger := memory.New()
	w := NewSyncWorker(repo, ledger, ledger, 10)
	ctx := context.Background()

	seedTransaction(t, repo, "tx-1")
	seedTransaction(t, repo, "tx-2")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if len(ledger.Items()) != 2 {
		t.Errorf("ledger = %d rows, want 2", len(ledger.Items()))
	}

	// Second run finds nothing left.
	before := len(ledger.Items())
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(ledger.Items()) != before {
		t.Error("second run duplicated ledger rows")
	}
}

func TestProcessPending_AppendFailureMarked(t *testing.T) {
	repo := newTestRepo(t)
	ledger := &failingLedger{}
	w := NewSyncWorker(repo, ledger, nil, 10)
	ctx := context.Background()

	seedTransaction(t, repo, "tx-1")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if ledger.calls != 1 {
		t.Errorf("append calls = %d, want 1", ledger.calls)
	}

	// Marked as errored: no longer offered as pending.
	pending, err := repo.PendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after sync error", len(pending))
	}
}

func TestStartupSyncCheck(t *testing.T) {
	repo := newTestRepo(t)
	ledger := memory.New()
	w := NewSyncWorker(repo, ledger, ledger, 2)
	ctx := context.Background()

	for _, id := range []string{"tx-1", "tx-2", "tx-3"} {
		seedTransaction(t, repo, id)
	}

	// Batch size is 2 but startup uses a larger batch to drain backlog.
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if len(ledger.Items()) != 3 {
		t.Errorf("ledger = %d rows, want 3", len(ledger.Items()))
	}
}
