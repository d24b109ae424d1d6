package order

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	effectService = "order-effects"

	useCaseInventoryAdjust = "order.effect.inventory_adjust"
	useCaseInvoiceEmit     = "order.effect.invoice_emit"
)

// EffectWorker carries out the side effects recorded in the outbox. A handler
// error leaves the record pending so the relay retries it later.
type EffectWorker struct {
	subscriber domoutbox.Subscriber
	inventory  InventoryPort
	invoices   InvoicePort
	instr      *application.Instrument
}

func NewEffectWorker(sub domoutbox.Subscriber, inventory InventoryPort, invoices InvoicePort, tel observability.Observability) *EffectWorker {
	return &EffectWorker{
		subscriber: sub,
		inventory:  inventory,
		invoices:   invoices,
		instr:      application.NewInstrument(tel, effectService),
	}
}

func (w *EffectWorker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(domain.EventInventoryAdjust, w.HandleInventoryAdjust)
	w.subscriber.Subscribe(domain.EventInvoiceEmit, w.HandleInvoiceEmit)
}

func (w *EffectWorker) HandleInventoryAdjust(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domain.InventoryAdjustmentRequested)
	if !ok {
		w.instr.Count(useCaseInventoryAdjust, application.OutcomeIgnored)
		return nil
	}

	ctx, run := w.instr.Start(ctx, useCaseInventoryAdjust, "AdjustInventory",
		attribute.String("order.id", evt.OrderID),
		attribute.String("outbox.record_id", evt.RecordID),
		attribute.Int("inventory.items", len(evt.Items)),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", evt.OrderID)
	run.Field("record_id", evt.RecordID)

	if len(evt.Items) == 0 {
		run.SetStatus("NOTHING_TO_ADJUST")
		return nil
	}
	// the record id is stable across retries, so the inventory side applies the batch once
	if err := w.inventory.Adjust(ctx, evt.RecordID, evt.Items); err != nil {
		return run.Fail("INVENTORY_ADJUST_FAILED", fmt.Errorf("adjust inventory for order %s: %w", evt.OrderID, err))
	}
	return nil
}

func (w *EffectWorker) HandleInvoiceEmit(ctx context.Context, e domoutbox.Event) (err error) {
	evt, ok := e.(domain.InvoiceRequested)
	if !ok {
		w.instr.Count(useCaseInvoiceEmit, application.OutcomeIgnored)
		return nil
	}

	ctx, run := w.instr.Start(ctx, useCaseInvoiceEmit, "EmitInvoice",
		attribute.String("order.id", evt.OrderID),
		attribute.String("invoice.type", string(evt.InvoiceType)),
		attribute.String("outbox.record_id", evt.RecordID),
	)
	defer func() { run.End(err) }()
	run.Field("order_id", evt.OrderID)
	run.Field("invoice_type", string(evt.InvoiceType))

	duplicate, err := w.invoices.Emit(ctx, evt.OrderID, evt.InvoiceType, evt.Snapshot)
	if err != nil {
		return run.Fail("INVOICE_EMIT_FAILED", fmt.Errorf("emit %s invoice for order %s: %w", evt.InvoiceType, evt.OrderID, err))
	}
	if duplicate {
		run.SetStatus("ALREADY_ISSUED")
	}
	return nil
}
