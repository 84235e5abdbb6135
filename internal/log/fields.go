package log

// Field names shared by every binary.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"

	FieldTransactionID  = "transaction_id"
	FieldDefinitionID   = "definition_id"
	FieldOccurrenceDate = "occurrence_date"
	FieldFrequency      = "frequency"
	FieldAmountCents    = "amount_cents"
	FieldLedgerRef      = "ledger_ref"
	FieldWindowFrom     = "window_from"
	FieldWindowTo       = "window_to"
)

// Component values, one per binary.
const (
	ComponentAPI             = "api"
	ComponentRecurringWorker = "recurring-worker"
	ComponentSyncWorker      = "sync-worker"
)
