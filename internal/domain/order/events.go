package order

import (
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

const (
	EventInventoryAdjust = "inventory.adjust"
	EventInvoiceEmit     = "invoice.emit"
)

// InventoryAdjustmentRequested is the durable intent to move stock for an order.
type InventoryAdjustmentRequested struct {
	RecordID   string                 `json:"recordId"`
	OrderID    string                 `json:"orderId"`
	Items      []inventory.Adjustment `json:"items"`
	OccurredAt time.Time              `json:"occurredAt"`
}

func (InventoryAdjustmentRequested) EventName() string { return EventInventoryAdjust }

func NewInventoryAdjustmentRequested(recordID string, o *Order, op inventory.Operation) InventoryAdjustmentRequested {
	return InventoryAdjustmentRequested{
		RecordID:   recordID,
		OrderID:    o.ID,
		Items:      o.Adjustments(op),
		OccurredAt: time.Now().UTC(),
	}
}

// InvoiceRequested is the durable intent to issue an invoice. The snapshot is
// taken when the intent is recorded, never re-read from the order later.
type InvoiceRequested struct {
	RecordID    string           `json:"recordId"`
	OrderID     string           `json:"orderId"`
	InvoiceType invoice.Type     `json:"invoiceType"`
	Snapshot    invoice.Snapshot `json:"snapshot"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

func (InvoiceRequested) EventName() string { return EventInvoiceEmit }

func NewInvoiceRequested(recordID string, o *Order, t invoice.Type) InvoiceRequested {
	return InvoiceRequested{
		RecordID:    recordID,
		OrderID:     o.ID,
		InvoiceType: t,
		Snapshot:    o.Snapshot(),
		OccurredAt:  time.Now().UTC(),
	}
}

// CreatedEvent is a lifecycle notification emitted after a new order commits.
type CreatedEvent struct {
	OrderID    string    `json:"orderId"`
	Code       string    `json:"code"`
	Status     Status    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (CreatedEvent) EventName() string { return "order.created" }

func (e CreatedEvent) AggregateID() string { return e.OrderID }

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{OrderID: o.ID, Code: o.Code, Status: o.Status, OccurredAt: time.Now().UTC()}
}

// StatusChangedEvent is emitted after a committed status change.
type StatusChangedEvent struct {
	OrderID    string    `json:"orderId"`
	Code       string    `json:"code"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (StatusChangedEvent) EventName() string { return "order.status_changed" }

func (e StatusChangedEvent) AggregateID() string { return e.OrderID }

func NewStatusChangedEvent(o *Order, from Status) StatusChangedEvent {
	return StatusChangedEvent{OrderID: o.ID, Code: o.Code, From: from, To: o.Status, OccurredAt: time.Now().UTC()}
}

// DeletedEvent is emitted after a hard or soft delete.
type DeletedEvent struct {
	OrderID    string    `json:"orderId"`
	Code       string    `json:"code"`
	Hard       bool      `json:"hard"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (DeletedEvent) EventName() string { return "order.deleted" }

func (e DeletedEvent) AggregateID() string { return e.OrderID }

func NewDeletedEvent(o *Order, hard bool) DeletedEvent {
	return DeletedEvent{OrderID: o.ID, Code: o.Code, Hard: hard, OccurredAt: time.Now().UTC()}
}

// LifecycleEvents lists the notification names sinks may subscribe to.
var LifecycleEvents = []string{
	CreatedEvent{}.EventName(),
	StatusChangedEvent{}.EventName(),
	DeletedEvent{}.EventName(),
}
