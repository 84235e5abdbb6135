package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds carried on the transaction queue.
const (
	KindSync   = "sync"
	KindDelete = "delete"
)

// TransactionEvent is a lightweight notification about a ledger entry.
// It carries only the transaction id; the sync worker fetches the full
// row from the database, so a stale or replayed event is harmless.
type TransactionEvent struct {
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transactionId"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewSyncEvent(transactionID string) *TransactionEvent {
	return &TransactionEvent{
		Kind:          KindSync,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func NewDeleteEvent(transactionID string) *TransactionEvent {
	return &TransactionEvent{
		Kind:          KindDelete,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (m *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventFromJSON parses and validates an event payload.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var msg TransactionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != KindSync && msg.Kind != KindDelete {
		return nil, fmt.Errorf("unknown event kind %q", msg.Kind)
	}
	if msg.TransactionID == "" {
		return nil, fmt.Errorf("event missing transaction id")
	}
	return &msg, nil
}
