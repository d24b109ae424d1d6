package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	peerInventory       = "inventory"
	InventoryUpdatePath = "/inventory/update"
	// IdempotencyHeader carries the outbox record id so a retried batch is applied once.
	IdempotencyHeader = "Idempotency-Key"
)

type adjustmentDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Operation int    `json:"operation"`
}

// Inventory sends batched stock adjustments to the inventory service.
type Inventory struct {
	c *jsonClient
}

func NewInventory(cfg Config, tel observability.Observability) *Inventory {
	return &Inventory{c: newJSONClient(peerInventory, cfg, tel)}
}

// Adjust posts every adjustment in one request. The batch is rejected as a
// whole by the server when any product would go below zero.
func (i *Inventory) Adjust(ctx context.Context, key string, items []inventory.Adjustment) error {
	if len(items) == 0 {
		return nil
	}
	body := make([]adjustmentDTO, 0, len(items))
	for _, it := range items {
		body = append(body, adjustmentDTO{ProductID: it.ProductID, Quantity: it.Quantity, Operation: int(it.Operation)})
	}
	header := http.Header{}
	if key != "" {
		header.Set(IdempotencyHeader, key)
	}

	resp, err := i.c.post(ctx, "inventory.update", InventoryUpdatePath, body, header, http.StatusOK)
	if err != nil {
		return fmt.Errorf("inventory client: %w", err)
	}
	env, err := decodeEnvelope(resp.body)
	if err != nil {
		return fmt.Errorf("inventory client: %w", err)
	}
	if env.Message != "" && !env.Success {
		return fmt.Errorf("inventory client: %w: %s", domain.ErrValidation, env.Message)
	}
	return nil
}
