package services

import "context"

// EventPublisher emits transaction lifecycle events for downstream
// consumers (the ledger sync worker). A nil publisher disables eventing;
// publish failures are logged and never fail the originating operation.
type EventPublisher interface {
	PublishTransactionSync(ctx context.Context, id string) error
	PublishTransactionDelete(ctx context.Context, id string) error
}
