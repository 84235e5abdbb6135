package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"financas/internal/core"
	"financas/internal/schedule"
	"financas/internal/storage"
)

func intp(v int) *int { return &v }

// fakeStore is an in-memory DefinitionStore that mimics the SQLite
// repository's uniqueness guarantee and can inject transient failures.
type fakeStore struct {
	mu         sync.Mutex
	defs       []core.RecurringTransaction
	txs        map[string]map[core.Date]core.Transaction
	watermarks map[string]core.Date

	failDates    map[core.Date]int // remaining injected failures per date
	hideExisting bool              // simulate a stale MaterializedDates read
}

func newFakeStore(defs ...core.RecurringTransaction) *fakeStore {
	return &fakeStore{
		defs:       defs,
		txs:        make(map[string]map[core.Date]core.Transaction),
		watermarks: make(map[string]core.Date),
		failDates:  make(map[core.Date]int),
	}
}

func (f *fakeStore) ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.RecurringTransaction
	for _, d := range f.defs {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) MaterializedDates(ctx context.Context, recurringID string, from, to core.Date) (map[core.Date]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[core.Date]struct{})
	if f.hideExisting {
		return out, nil
	}
	for d := range f.txs[recurringID] {
		if !d.Before(from) && !d.After(to) {
			out[d] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.failDates[t.Date]; n > 0 {
		f.failDates[t.Date] = n - 1
		return fmt.Errorf("database is locked")
	}
	byDate := f.txs[t.RecurringTransactionID]
	if byDate == nil {
		byDate = make(map[core.Date]core.Transaction)
		f.txs[t.RecurringTransactionID] = byDate
	}
	if _, exists := byDate[t.Date]; exists {
		return storage.ErrDuplicateOccurrence
	}
	byDate[t.Date] = *t
	return nil
}

func (f *fakeStore) AdvanceLastProcessed(ctx context.Context, id string, through core.Date) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.watermarks[id]; !ok || cur.Before(through) {
		f.watermarks[id] = through
	}
	return nil
}

func (f *fakeStore) count(recurringID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs[recurringID])
}

func fastMaterializer(store DefinitionStore) *Materializer {
	m := NewMaterializer(store, nil)
	m.retryBase = time.Millisecond
	return m
}

func monthlyDef(id string, dayOfMonth int) core.RecurringTransaction {
	return core.RecurringTransaction{
		ID:         id,
		Type:       core.Expense,
		Category:   core.CategoryMoradia,
		Amount:     core.Money{Cents: 4590},
		Frequency:  core.Monthly,
		StartDate:  core.NewDate(2025, time.January, 1),
		DayOfMonth: intp(dayOfMonth),
		Active:     true,
	}
}

func window(from, to core.Date) Window { return Window{From: from, To: to} }

func TestProcessDefinition_Idempotent(t *testing.T) {
	store := newFakeStore()
	m := fastMaterializer(store)
	def := monthlyDef("rt-1", 15)
	w := window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.March, 31))

	created, err := m.ProcessDefinition(context.Background(), def, w)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if created != 3 {
		t.Fatalf("first pass created %d, want 3", created)
	}

	// The worker reloads definitions between passes, so replay with the
	// advanced watermark the store now holds.
	def.LastProcessed = store.watermarks["rt-1"]
	created, err = m.ProcessDefinition(context.Background(), def, w)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if created != 0 {
		t.Errorf("second pass created %d, want 0", created)
	}
	if store.count("rt-1") != 3 {
		t.Errorf("store holds %d transactions, want 3", store.count("rt-1"))
	}
}

func TestProcessDefinition_RerunWithoutWatermark(t *testing.T) {
	// Even when the watermark was never advanced (e.g. the update failed),
	// a rerun over the same window must not duplicate anything.
	store := newFakeStore()
	m := fastMaterializer(store)
	def := monthlyDef("rt-1", 15)
	w := window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.March, 31))

	if _, err := m.ProcessDefinition(context.Background(), def, w); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	created, err := m.ProcessDefinition(context.Background(), def, w)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if created != 0 || store.count("rt-1") != 3 {
		t.Errorf("created %d, store %d; want 0 and 3", created, store.count("rt-1"))
	}
}

func TestProcessDefinition_DuplicateRace(t *testing.T) {
	// MaterializedDates returns nothing (stale read) but inserts collide:
	// the duplicate must be swallowed, not surfaced.
	store := newFakeStore()
	store.txs["rt-1"] = map[core.Date]core.Transaction{
		core.NewDate(2025, time.February, 15): {},
	}
	store.hideExisting = true

	m := fastMaterializer(store)
	created, err := m.ProcessDefinition(context.Background(), monthlyDef("rt-1", 15),
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.March, 31)))
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if created != 2 {
		t.Errorf("created %d, want 2 (February already existed)", created)
	}
	if store.count("rt-1") != 3 {
		t.Errorf("store holds %d, want 3", store.count("rt-1"))
	}
}

func TestProcessDefinition_InactiveSuppressed(t *testing.T) {
	store := newFakeStore()
	m := fastMaterializer(store)
	def := monthlyDef("rt-1", 15)
	def.Active = false

	created, err := m.ProcessDefinition(context.Background(), def,
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.December, 31)))
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if created != 0 || store.count("rt-1") != 0 {
		t.Errorf("inactive definition produced %d transactions", store.count("rt-1"))
	}
}

func TestProcessDefinition_PartialFailureWatermark(t *testing.T) {
	store := newFakeStore()
	failing := core.NewDate(2025, time.June, 2)
	store.failDates[failing] = 100 // beyond all retries

	m := fastMaterializer(store)
	def := core.RecurringTransaction{
		ID:        "rt-1",
		Type:      core.Expense,
		Category:  core.CategoryOutros,
		Amount:    core.Money{Cents: 100},
		Frequency: core.Daily,
		StartDate: core.NewDate(2025, time.June, 1),
		Active:    true,
	}
	w := window(core.NewDate(2025, time.June, 1), core.NewDate(2025, time.June, 3))

	created, err := m.ProcessDefinition(context.Background(), def, w)
	if err == nil {
		t.Fatal("expected error from failing insert")
	}
	if created != 1 {
		t.Errorf("created %d before failure, want 1", created)
	}
	// Watermark stops short of the failed date so the next pass retries it.
	if want := core.NewDate(2025, time.June, 1); !store.watermarks["rt-1"].Equal(want) {
		t.Errorf("watermark = %v, want %v", store.watermarks["rt-1"], want)
	}

	// Next pass, store healthy again: the failed and remaining dates land.
	store.mu.Lock()
	delete(store.failDates, failing)
	store.mu.Unlock()
	def.LastProcessed = store.watermarks["rt-1"]

	created, err = m.ProcessDefinition(context.Background(), def, w)
	if err != nil {
		t.Fatalf("recovery pass: %v", err)
	}
	if created != 2 || store.count("rt-1") != 3 {
		t.Errorf("recovery created %d, store %d; want 2 and 3", created, store.count("rt-1"))
	}
	if want := core.NewDate(2025, time.June, 3); !store.watermarks["rt-1"].Equal(want) {
		t.Errorf("final watermark = %v, want %v", store.watermarks["rt-1"], want)
	}
}

func TestProcessDefinition_TransientFailureRetried(t *testing.T) {
	store := newFakeStore()
	date := core.NewDate(2025, time.June, 1)
	store.failDates[date] = 2 // fails twice, third attempt succeeds

	m := fastMaterializer(store)
	def := core.RecurringTransaction{
		ID:        "rt-1",
		Type:      core.Income,
		Category:  core.CategorySalario,
		Amount:    core.Money{Cents: 500000},
		Frequency: core.Daily,
		StartDate: date,
		Active:    true,
	}

	created, err := m.ProcessDefinition(context.Background(), def, window(date, date))
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	if created != 1 {
		t.Errorf("created %d, want 1", created)
	}
}

func TestProcessDefinition_Cancelled(t *testing.T) {
	store := newFakeStore()
	m := fastMaterializer(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ProcessDefinition(ctx, monthlyDef("rt-1", 15),
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.March, 31)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, ok := store.watermarks["rt-1"]; ok {
		t.Error("cancelled pass advanced the watermark")
	}
}

func TestProcessDefinition_CorruptRule(t *testing.T) {
	store := newFakeStore()
	m := fastMaterializer(store)
	def := monthlyDef("rt-1", 15)
	def.DayOfMonth = nil // corrupt: MONTHLY without anchor

	_, err := m.ProcessDefinition(context.Background(), def,
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.March, 31)))
	var iv *schedule.InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("err = %v, want InvariantViolation", err)
	}
	if store.count("rt-1") != 0 {
		t.Error("corrupt rule produced transactions")
	}
}

func TestProcessDefinition_InheritsFields(t *testing.T) {
	store := newFakeStore()
	m := fastMaterializer(store)
	def := monthlyDef("rt-1", 31)
	def.PaymentMethod = core.PaymentBoleto
	def.Description = "aluguel"

	created, err := m.ProcessDefinition(context.Background(), def,
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.April, 30)))
	if err != nil {
		t.Fatalf("pass: %v", err)
	}
	// Day 31 over Jan-Apr: January and March only.
	if created != 2 {
		t.Fatalf("created %d, want 2", created)
	}

	for date, tx := range store.txs["rt-1"] {
		if tx.Type != core.Expense || tx.Category != core.CategoryMoradia {
			t.Errorf("%v: type/category not inherited: %+v", date, tx)
		}
		if tx.PaymentMethod != core.PaymentBoleto || tx.Description != "aluguel" {
			t.Errorf("%v: paymentMethod/description not inherited: %+v", date, tx)
		}
		if tx.Amount.Cents != 4590 {
			t.Errorf("%v: amount = %d, want 4590", date, tx.Amount.Cents)
		}
		if tx.RecurringTransactionID != "rt-1" {
			t.Errorf("%v: missing definition back-reference", date)
		}
		if tx.ID == "" {
			t.Errorf("%v: missing id", date)
		}
	}
}

func TestProcessAll_IndependentDefinitions(t *testing.T) {
	corrupt := monthlyDef("rt-bad", 15)
	corrupt.DayOfMonth = nil

	store := newFakeStore(
		monthlyDef("rt-1", 5),
		corrupt,
		monthlyDef("rt-2", 20),
	)
	m := fastMaterializer(store)

	created, err := m.ProcessAll(context.Background(),
		window(core.NewDate(2025, time.January, 1), core.NewDate(2025, time.February, 28)))
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	// Two healthy definitions, two months each; the corrupt one is logged
	// and skipped without stopping the others.
	if created != 4 {
		t.Errorf("created %d, want 4", created)
	}
	if store.count("rt-1") != 2 || store.count("rt-2") != 2 {
		t.Errorf("per-definition counts: rt-1=%d rt-2=%d, want 2 each",
			store.count("rt-1"), store.count("rt-2"))
	}
	if store.count("rt-bad") != 0 {
		t.Error("corrupt definition produced transactions")
	}
}
