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

// TransactionService handles manual ledger entries and queries over the
// combined ledger (manual + generated). Writes are saved to SQLite first;
// sync events for the external ledger mirror are published best-effort.
type TransactionService struct {
	store  *storage.SQLiteRepository
	events EventPublisher
}

func NewTransactionService(store *storage.SQLiteRepository, events EventPublisher) *TransactionService {
	return &TransactionService{store: store, events: events}
}

// CreateParams describes a manual transaction entry. Amounts arrive
// already converted to cents.
type CreateParams struct {
	Type          core.TransactionType
	Category      core.Category
	PaymentMethod core.PaymentMethod
	Amount        core.Money
	Description   string
	Date          core.Date
}

func (s *TransactionService) Create(ctx context.Context, params CreateParams) (*core.Transaction, error) {
	tx := &core.Transaction{
		ID:            uuid.NewString(),
		Type:          params.Type,
		Category:      params.Category,
		PaymentMethod: params.PaymentMethod,
		Amount:        params.Amount,
		Description:   params.Description,
		Date:          params.Date,
	}
	if tx.Category == "" {
		if def, ok := core.DefaultCategory(tx.Type); ok {
			tx.Category = def
		}
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishTransactionSync(ctx, tx.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish sync event",
				applog.FieldTransactionID, tx.ID,
				applog.FieldError, err)
			// The transaction is saved; the pending-sync backup loop
			// will pick it up.
		}
	}
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, id string) (*core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) List(ctx context.Context, filter storage.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, filter)
}

func (s *TransactionService) Summary(ctx context.Context, from, to core.Date) (core.Summary, error) {
	return s.store.Summary(ctx, from, to)
}

// Delete removes a single transaction. Generated transactions normally go
// away with their definition; direct deletion is still allowed.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return err
	}

	if s.events != nil {
		if err := s.events.PublishTransactionDelete(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to publish delete event",
				applog.FieldTransactionID, id,
				applog.FieldError, err)
		}
	}
	return nil
}
