package httppresentation

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type lineItemRequest struct {
	ProductID   string          `json:"productId" validate:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type createOrderRequest struct {
	Status         string            `json:"status"`
	Items          []lineItemRequest `json:"items" validate:"dive"`
	TaxAmount      decimal.Decimal   `json:"taxAmount"`
	DiscountAmount decimal.Decimal   `json:"discountAmount"`
	PaymentMethod  string            `json:"paymentMethod"`
	CustomerName   string            `json:"customerName"`
	Notes          string            `json:"notes"`
}

type updateOrderRequest struct {
	Status         *string            `json:"status"`
	Items          *[]lineItemRequest `json:"items" validate:"omitnil,dive"`
	TaxAmount      *decimal.Decimal   `json:"taxAmount"`
	DiscountAmount *decimal.Decimal   `json:"discountAmount"`
	PaymentMethod  *string            `json:"paymentMethod"`
	CustomerName   *string            `json:"customerName"`
	Notes          *string            `json:"notes"`
	ReturnReason   *string            `json:"returnReason"`
}

type lineItemResponse struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type orderResponse struct {
	ID             string             `json:"id"`
	Code           string             `json:"code"`
	Status         domorder.Status    `json:"status"`
	Items          []lineItemResponse `json:"items"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	TaxAmount      decimal.Decimal    `json:"taxAmount"`
	DiscountAmount decimal.Decimal    `json:"discountAmount"`
	PaymentMethod  string             `json:"paymentMethod"`
	CustomerName   string             `json:"customerName"`
	Notes          string             `json:"notes"`
	ReturnReason   string             `json:"returnReason,omitempty"`
	DeletedByUser  bool               `json:"deletedByUser"`
	Version        int64              `json:"version"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

type deleteOrderResponse struct {
	ID   string `json:"id"`
	Hard bool   `json:"hard"`
}

func toLineItemInputs(in []lineItemRequest) []apporder.LineItemInput {
	out := make([]apporder.LineItemInput, 0, len(in))
	for _, it := range in {
		out = append(out, apporder.LineItemInput(it))
	}
	return out
}

func toOrderResponse(o *domorder.Order) orderResponse {
	items := make([]lineItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemResponse(it))
	}
	return orderResponse{
		ID:             o.ID,
		Code:           o.Code,
		Status:         o.Status,
		Items:          items,
		TotalAmount:    o.TotalAmount,
		TaxAmount:      o.TaxAmount,
		DiscountAmount: o.DiscountAmount,
		PaymentMethod:  o.PaymentMethod,
		CustomerName:   o.CustomerName,
		Notes:          o.Notes,
		ReturnReason:   o.ReturnReason,
		DeletedByUser:  o.DeletedByUser,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	o, err := h.svc.Orders.Create.Execute(r.Context(), apporder.CreateOrderInput{
		Status:         req.Status,
		Items:          toLineItemInputs(req.Items),
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
		PaymentMethod:  req.PaymentMethod,
		CustomerName:   req.CustomerName,
		Notes:          req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "order created", toOrderResponse(o))
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	patch := apporder.PatchInput{
		Status:         req.Status,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: req.DiscountAmount,
		PaymentMethod:  req.PaymentMethod,
		CustomerName:   req.CustomerName,
		Notes:          req.Notes,
		ReturnReason:   req.ReturnReason,
	}
	if req.Items != nil {
		items := toLineItemInputs(*req.Items)
		patch.Items = &items
	}

	o, err := h.svc.Orders.Update.Execute(r.Context(), apporder.UpdateOrderInput{ID: r.PathValue("id"), Patch: patch})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "order updated", toOrderResponse(o))
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	hard, err := queryBool(r, "hard")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	res, err := h.svc.Orders.Delete.Execute(r.Context(), apporder.DeleteOrderInput{ID: r.PathValue("id"), RequireHard: hard})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	msg := "order hidden"
	if res.Hard {
		msg = "order deleted"
	}
	writeOK(w, http.StatusOK, msg, deleteOrderResponse{ID: r.PathValue("id"), Hard: res.Hard})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Orders.Get.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "order found", toOrderResponse(o))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	includeDeleted, err := queryBool(r, "includeDeleted")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	orders, err := h.svc.Orders.List.Execute(r.Context(), apporder.ListOrdersInput{
		Status:         r.URL.Query().Get("status"),
		IncludeDeleted: includeDeleted,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeList(w, "orders listed", out)
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrValidation, key)
	}
	return v, nil
}
