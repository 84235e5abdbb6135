package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"financas/internal/core"
	"financas/internal/storage"
)

type recordingPublisher struct {
	synced  []string
	deleted []string
}

func (p *recordingPublisher) PublishTransactionSync(ctx context.Context, id string) error {
	p.synced = append(p.synced, id)
	return nil
}

func (p *recordingPublisher) PublishTransactionDelete(ctx context.Context, id string) error {
	p.deleted = append(p.deleted, id)
	return nil
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

func monthlyParams() CreateRecurringParams {
	return CreateRecurringParams{
		Type:          core.Expense,
		Category:      core.CategoryMoradia,
		PaymentMethod: core.PaymentBoleto,
		Amount:        core.Money{Cents: 120000},
		Description:   "aluguel",
		Frequency:     core.Monthly,
		StartDate:     core.NewDate(2025, time.January, 1),
		DayOfMonth:    intp(5),
	}
}

func TestRecurringService_Create(t *testing.T) {
	svc := NewRecurringService(newTestRepo(t), nil)
	ctx := context.Background()

	rt, err := svc.Create(ctx, monthlyParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rt.ID == "" {
		t.Error("missing generated id")
	}
	if !rt.Active {
		t.Error("new definition should start active")
	}

	got, err := svc.Get(ctx, rt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount.Cents != 120000 || got.Frequency != core.Monthly {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestRecurringService_CreateDefaultsCategory(t *testing.T) {
	svc := NewRecurringService(newTestRepo(t), nil)

	params := CreateRecurringParams{
		Type:      core.Income,
		Amount:    core.Money{Cents: 500000},
		Frequency: core.Monthly,
		StartDate: core.NewDate(2025, time.January, 1),
		DayOfMonth: intp(1),
	}
	rt, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rt.Category != core.CategorySalario {
		t.Errorf("category = %q, want default %q", rt.Category, core.CategorySalario)
	}
}

func TestRecurringService_CreateRejectsInvalid(t *testing.T) {
	svc := NewRecurringService(newTestRepo(t), nil)

	params := monthlyParams()
	params.DayOfMonth = nil // MONTHLY needs an anchor day

	_, err := svc.Create(context.Background(), params)
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "dayOfMonth" {
		t.Errorf("field = %q, want dayOfMonth", verr.Field)
	}

	// Nothing was persisted.
	defs, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(defs) != 0 {
		t.Errorf("invalid definition was persisted: %d rows", len(defs))
	}
}

func TestRecurringService_Toggle(t *testing.T) {
	svc := NewRecurringService(newTestRepo(t), nil)
	ctx := context.Background()

	rt, err := svc.Create(ctx, monthlyParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := svc.Toggle(ctx, rt.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if active {
		t.Error("first toggle should deactivate")
	}

	active, err = svc.Toggle(ctx, rt.ID)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if !active {
		t.Error("second toggle should reactivate")
	}

	if _, err := svc.Toggle(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("toggle missing: err = %v, want ErrNotFound", err)
	}
}

func TestRecurringService_DeleteCascadesAndPublishes(t *testing.T) {
	repo := newTestRepo(t)
	events := &recordingPublisher{}
	svc := NewRecurringService(repo, events)
	ctx := context.Background()

	rt, err := svc.Create(ctx, monthlyParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Materialize two occurrences, then one manual entry that must survive.
	m := fastMaterializer(repo)
	if _, err := m.ProcessDefinition(ctx, *rt,
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.February, 28))); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	manual := &core.Transaction{
		ID:       "tx-manual",
		Type:     core.Expense,
		Category: core.CategoryOutros,
		Amount:   core.Money{Cents: 100},
		Date:     core.NewDate(2025, time.January, 5),
	}
	if err := repo.CreateTransaction(ctx, manual); err != nil {
		t.Fatalf("create manual: %v", err)
	}

	if err := svc.Delete(ctx, rt.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.Get(ctx, rt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}
	remaining, err := repo.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "tx-manual" {
		t.Errorf("remaining = %+v, want only the manual entry", remaining)
	}
	if len(events.deleted) != 2 {
		t.Errorf("published %d delete events, want 2", len(events.deleted))
	}
}
