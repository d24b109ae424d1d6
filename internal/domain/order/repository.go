package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
)

type Filter struct {
	Status         Status
	IncludeDeleted bool
}

// Repository persists orders together with the outbox records their change
// produced; the order row and its records commit or fail as one.
type Repository interface {
	Insert(ctx context.Context, o *Order, records ...outbox.Record) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByCode(ctx context.Context, code string) (*Order, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	// Update writes o if the stored version still equals o.Version, then
	// increments o.Version. A stale version yields ErrConflict.
	Update(ctx context.Context, o *Order, records ...outbox.Record) error
	// Delete hard-deletes o under the same version check as Update.
	Delete(ctx context.Context, o *Order, records ...outbox.Record) error
}
