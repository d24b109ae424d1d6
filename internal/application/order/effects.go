package order

import (
	"encoding/json"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
)

// planEffects turns the effects of a transition into outbox records, the
// inventory adjustment first and the invoice second.
func planEffects(ids IDGenerator, o *domain.Order, eff domain.Effects) ([]domoutbox.Record, error) {
	var records []domoutbox.Record

	if eff.Inventory != 0 && len(o.Items) > 0 {
		id := ids.NewID()
		rec, err := domoutbox.NewRecord(id, o.ID, domain.NewInventoryAdjustmentRequested(id, o, eff.Inventory))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if eff.Invoice != "" {
		id := ids.NewID()
		rec, err := domoutbox.NewRecord(id, o.ID, domain.NewInvoiceRequested(id, o, eff.Invoice))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeEffect restores the typed event persisted in rec. It is the relay's
// decoder for order side effects.
func DecodeEffect(rec domoutbox.Record) (domoutbox.Event, error) {
	switch rec.Kind {
	case domain.EventInventoryAdjust:
		var e domain.InventoryAdjustmentRequested
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Kind, err)
		}
		return e, nil
	case domain.EventInvoiceEmit:
		var e domain.InvoiceRequested
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.Kind, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}
