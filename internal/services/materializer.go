package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/schedule"
	"financas/internal/storage"
)

// DefinitionStore is the persistence boundary of the materializer. The
// store must enforce uniqueness of (recurring_transaction_id, date) —
// CreateTransaction returns storage.ErrDuplicateOccurrence on collision —
// because that constraint, not any in-memory check, is what makes
// repeated and concurrent passes safe.
type DefinitionStore interface {
	ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error)
	MaterializedDates(ctx context.Context, recurringID string, from, to core.Date) (map[core.Date]struct{}, error)
	CreateTransaction(ctx context.Context, t *core.Transaction) error
	AdvanceLastProcessed(ctx context.Context, id string, through core.Date) error
}

// Window is the date range a materialization pass covers, both bounds
// inclusive. The trigger supplies it explicitly; the engine never reads
// the clock, which keeps passes reproducible under test.
type Window struct {
	From core.Date
	To   core.Date
}

// Materializer turns due occurrences of active recurring transactions into
// concrete ledger entries, exactly once each.
type Materializer struct {
	store  DefinitionStore
	events EventPublisher

	// MaxParallel bounds how many definitions are processed at once.
	// Passes for different definitions are independent.
	MaxParallel int

	// insert retry policy for transient store failures
	retryAttempts int
	retryBase     time.Duration

	locks sync.Map // definition id -> *sync.Mutex
}

func NewMaterializer(store DefinitionStore, events EventPublisher) *Materializer {
	return &Materializer{
		store:         store,
		events:        events,
		MaxParallel:   4,
		retryAttempts: 3,
		retryBase:     100 * time.Millisecond,
	}
}

// ProcessAll runs a materialization pass for every active definition.
// Individual definition failures are logged and do not stop the others;
// the failed dates are retried on the next pass. Returns the number of
// transactions created.
func (m *Materializer) ProcessAll(ctx context.Context, w Window) (int, error) {
	defs, err := m.store.ListActiveRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recurring transactions: %w", err)
	}

	slog.InfoContext(ctx, "Materialization pass started",
		"active_definitions", len(defs),
		applog.FieldWindowFrom, w.From.String(),
		applog.FieldWindowTo, w.To.String())

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.MaxParallel)

	for _, def := range defs {
		g.Go(func() error {
			// Advisory per-definition lock: avoids wasted duplicate
			// inserts when two passes overlap in-process. The store's
			// unique index remains the correctness guard.
			lock := m.lockFor(def.ID)
			lock.Lock()
			defer lock.Unlock()

			n, err := m.ProcessDefinition(gctx, def, w)
			created.Add(int64(n))
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				slog.ErrorContext(gctx, "Materialization failed for definition",
					applog.FieldDefinitionID, def.ID,
					"created_before_failure", n,
					applog.FieldError, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}

	slog.InfoContext(ctx, "Materialization pass complete",
		"created", created.Load(),
		"definitions_checked", len(defs))
	return int(created.Load()), nil
}

// ProcessDefinition materializes the due occurrences of one definition
// within the window. Already-materialized dates are skipped; the watermark
// only advances through dates whose transactions are confirmed persisted,
// so a failed insert is retried by the next pass instead of being lost.
func (m *Materializer) ProcessDefinition(ctx context.Context, def core.RecurringTransaction, w Window) (int, error) {
	if !def.Active {
		return 0, nil
	}

	rule, err := schedule.FromDefinition(def)
	if err != nil {
		// A stored definition that fails rule extraction is corrupt
		// state, not user input. Surface it, create nothing.
		return 0, err
	}

	from := w.From
	if !def.LastProcessed.IsZero() {
		if next := def.LastProcessed.AddDays(1); next.After(from) {
			from = next
		}
	}
	if from.After(w.To) {
		return 0, nil
	}

	candidates, err := schedule.Occurrences(rule, from, w.To)
	if err != nil {
		return 0, err
	}

	existing, err := m.store.MaterializedDates(ctx, def.ID, from, w.To)
	if err != nil {
		return 0, fmt.Errorf("query materialized dates: %w", err)
	}

	created := 0
	through := w.To
	var failure error

	for _, date := range candidates {
		if err := ctx.Err(); err != nil {
			// Cancelled mid-pass: leave the watermark untouched so the
			// remaining dates are picked up on resume.
			return created, err
		}
		if _, ok := existing[date]; ok {
			continue
		}

		tx := transactionFrom(def, date)
		err := m.createWithRetry(ctx, tx)
		switch {
		case errors.Is(err, storage.ErrDuplicateOccurrence):
			// Another pass won the race for this date. Fine.
			slog.InfoContext(ctx, "Occurrence already materialized, skipping",
				applog.FieldDefinitionID, def.ID,
				applog.FieldOccurrenceDate, date.String())
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return created, err
		case err != nil:
			// The watermark must stop short of this date or the
			// occurrence would be skipped forever.
			through = date.AddDays(-1)
			failure = fmt.Errorf("materialize %s: %w", date, err)
		default:
			created++
			m.publishSync(ctx, tx.ID)
			slog.InfoContext(ctx, "Transaction materialized",
				applog.FieldDefinitionID, def.ID,
				applog.FieldTransactionID, tx.ID,
				applog.FieldOccurrenceDate, date.String(),
				applog.FieldAmountCents, tx.Amount.Cents)
		}
		if failure != nil {
			break
		}
	}

	if !through.Before(from.AddDays(-1)) {
		if err := m.store.AdvanceLastProcessed(ctx, def.ID, through); err != nil {
			slog.ErrorContext(ctx, "Failed to advance watermark",
				applog.FieldDefinitionID, def.ID,
				"through", through.String(),
				applog.FieldError, err)
			// Not fatal: the unique index absorbs the re-work next pass.
		}
	}
	return created, failure
}

func transactionFrom(def core.RecurringTransaction, date core.Date) *core.Transaction {
	return &core.Transaction{
		ID:                     uuid.NewString(),
		Type:                   def.Type,
		Category:               def.Category,
		PaymentMethod:          def.PaymentMethod,
		Amount:                 def.Amount,
		Description:            def.Description,
		Date:                   date,
		RecurringTransactionID: def.ID,
	}
}

func (m *Materializer) createWithRetry(ctx context.Context, tx *core.Transaction) error {
	var err error
	for attempt := 0; attempt < m.retryAttempts; attempt++ {
		if attempt > 0 {
			delay := m.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		err = m.store.CreateTransaction(ctx, tx)
		if err == nil || errors.Is(err, storage.ErrDuplicateOccurrence) {
			return err
		}
		slog.WarnContext(ctx, "Transaction insert failed, retrying",
			applog.FieldTransactionID, tx.ID,
			"attempt", attempt+1,
			applog.FieldError, err)
	}
	return err
}

func (m *Materializer) publishSync(ctx context.Context, id string) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishTransactionSync(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync event",
			applog.FieldTransactionID, id,
			applog.FieldError, err)
	}
}

func (m *Materializer) lockFor(id string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}
