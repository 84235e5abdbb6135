package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/storage"
)

// RecurringService manages recurring transaction definitions. Definitions
// are immutable after creation except for the active toggle; editing is
// delete + recreate.
type RecurringService struct {
	store  *storage.SQLiteRepository
	events EventPublisher
}

func NewRecurringService(store *storage.SQLiteRepository, events EventPublisher) *RecurringService {
	return &RecurringService{store: store, events: events}
}

// CreateRecurringParams is the accepted creation payload. Amount arrives
// already converted to cents; Category may be empty for INCOME and
// INVESTMENT, in which case the type's default applies.
type CreateRecurringParams struct {
	Type          core.TransactionType
	Category      core.Category
	PaymentMethod core.PaymentMethod
	Amount        core.Money
	Description   string
	Frequency     core.Frequency
	StartDate     core.Date
	EndDate       core.Date
	DayOfMonth    *int
	DayOfWeek     *int
}

func (s *RecurringService) Create(ctx context.Context, params CreateRecurringParams) (*core.RecurringTransaction, error) {
	rt := &core.RecurringTransaction{
		ID:            uuid.NewString(),
		Type:          params.Type,
		Category:      params.Category,
		PaymentMethod: params.PaymentMethod,
		Amount:        params.Amount,
		Description:   params.Description,
		Frequency:     params.Frequency,
		StartDate:     params.StartDate,
		EndDate:       params.EndDate,
		DayOfMonth:    params.DayOfMonth,
		DayOfWeek:     params.DayOfWeek,
		Active:        true,
	}
	if rt.Category == "" {
		if def, ok := core.DefaultCategory(rt.Type); ok {
			rt.Category = def
		}
	}
	if err := rt.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateRecurring(ctx, rt); err != nil {
		return nil, fmt.Errorf("save recurring transaction: %w", err)
	}

	slog.InfoContext(ctx, "Recurring transaction created",
		"id", rt.ID,
		"type", rt.Type,
		applog.FieldFrequency, rt.Frequency,
		applog.FieldAmountCents, rt.Amount.Cents)
	return rt, nil
}

func (s *RecurringService) List(ctx context.Context) ([]core.RecurringTransaction, error) {
	return s.store.ListRecurring(ctx)
}

func (s *RecurringService) Get(ctx context.Context, id string) (*core.RecurringTransaction, error) {
	return s.store.GetRecurring(ctx, id)
}

// Toggle flips the active flag and returns the new state. Deactivating
// stops future materialization immediately; already-generated transactions
// stay.
func (s *RecurringService) Toggle(ctx context.Context, id string) (bool, error) {
	return s.store.ToggleRecurringActive(ctx, id)
}

// Delete removes the definition and cascades to every transaction
// generated from it, then publishes delete events so the external ledger
// mirror can drop the rows too.
func (s *RecurringService) Delete(ctx context.Context, id string) error {
	generated, err := s.store.ListTransactions(ctx, storage.TransactionFilter{RecurringID: id})
	if err != nil {
		return fmt.Errorf("list generated transactions: %w", err)
	}

	if err := s.store.DeleteRecurring(ctx, id); err != nil {
		return err
	}

	if s.events != nil {
		for _, tx := range generated {
			if err := s.events.PublishTransactionDelete(ctx, tx.ID); err != nil {
				slog.ErrorContext(ctx, "Failed to publish delete event",
					applog.FieldTransactionID, tx.ID,
					applog.FieldError, err)
			}
		}
	}
	return nil
}
