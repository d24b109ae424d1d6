package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Dispatcher delivers an event to its subscribers and reports their failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, e Event) error
}

// Record is a side-effect intent persisted in the same transaction as the
// aggregate change that produced it.
type Record struct {
	ID            string
	AggregateID   string
	Kind          string
	Payload       []byte
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	DispatchedAt  *time.Time
	// ParkedAt is set once the record is given up on; it is never claimed again.
	ParkedAt *time.Time
}

// NewRecord serialises e into a pending record due immediately.
func NewRecord(id, aggregateID string, e Event) (Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Record{}, fmt.Errorf("outbox: encode %s: %w", e.EventName(), err)
	}
	now := time.Now().UTC()
	return Record{
		ID:            id,
		AggregateID:   aggregateID,
		Kind:          e.EventName(),
		Payload:       payload,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, nil
}

// Store is the relay's view of persisted records.
type Store interface {
	// ClaimPending leases up to limit due records with fewer than maxAttempts
	// attempts; leased records are hidden from other claimers until lease expires.
	ClaimPending(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]Record, error)
	MarkDispatched(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, reason string, nextAttempt time.Time) error
	// Park records a final failure and withdraws the record from claiming.
	Park(ctx context.Context, id string, reason string) error
}
