package memory

import (
	"context"
	"testing"
	"time"

	"financas/internal/core"
)

func testTransaction(id string) core.Transaction {
	return core.Transaction{
		ID:       id,
		Type:     core.Expense,
		Category: core.CategoryAlimentacao,
		Amount:   core.Money{Cents: 123},
		Date:     core.NewDate(2025, time.June, 1),
	}
}

func TestMemoryStoreAppendAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Append(ctx, testTransaction("tx-1"))
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if _, err := s.Append(ctx, testTransaction("tx-2")); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := s.Delete(ctx, "tx-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items := s.Items()
	if len(items) != 1 || items[0].ID != "tx-2" {
		t.Errorf("items after delete = %+v", items)
	}

	// Deleting an unknown id is a no-op.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	s := New()
	if _, err := s.Append(context.Background(), core.Transaction{}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(s.Items()) != 0 {
		t.Error("invalid transaction was stored")
	}
}
