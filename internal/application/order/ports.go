package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

type IDGenerator interface {
	NewID() string
}

// Notifier wakes the outbox relay once new records are committed.
type Notifier interface {
	Notify()
}

// InventoryPort applies a stock adjustment batch on the inventory service.
// key identifies the batch so a retried call is applied once.
type InventoryPort interface {
	Adjust(ctx context.Context, key string, items []inventory.Adjustment) error
}

// InvoicePort asks the invoice service for an invoice. duplicate reports that
// one already existed for (orderID, t), which is still a success.
type InvoicePort interface {
	Emit(ctx context.Context, orderID string, t invoice.Type, s invoice.Snapshot) (duplicate bool, err error)
}
