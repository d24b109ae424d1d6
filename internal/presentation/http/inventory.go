package httppresentation

import (
	"net/http"
	"time"

	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

const headerIdempotencyKey = "Idempotency-Key"

type adjustmentRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
	Operation int    `json:"operation" validate:"oneof=1 -1"`
}

type adjustBatch struct {
	Items []adjustmentRequest `json:"items" validate:"required,min=1,dive"`
}

type setStockRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

type stockResponse struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type adjustResponse struct {
	Applied bool `json:"applied"`
}

// handleAdjustInventory takes the bare JSON array the order effects send.
func (h *Handler) handleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	var items []adjustmentRequest
	if err := decodeBody(w, r, &items); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.validate.Struct(adjustBatch{Items: items}); err != nil {
		h.writeDomainError(w, r, validationError(err))
		return
	}

	batch := make([]dominv.Adjustment, 0, len(items))
	for _, it := range items {
		batch = append(batch, dominv.Adjustment{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Operation: dominv.Operation(it.Operation),
		})
	}

	res, err := h.svc.Inventory.Adjust.Execute(r.Context(), appinventory.AdjustInput{
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
		Items:          batch,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	msg := "inventory updated"
	if !res.Applied {
		msg = "already applied"
	}
	writeOK(w, http.StatusOK, msg, adjustResponse{Applied: res.Applied})
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.Stock.Execute(r.Context(), r.PathValue("productId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "stock found", stockResponse(*item))
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	item, err := h.svc.Inventory.SetStock.Execute(r.Context(), appinventory.SetStockInput{
		ProductID: r.PathValue("productId"),
		Quantity:  *req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "stock set", stockResponse(*item))
}
