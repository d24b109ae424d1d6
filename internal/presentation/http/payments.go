package httppresentation

import (
	"net/http"

	"github.com/shopspring/decimal"

	apppayment "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type createPaymentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type createPaymentResponse struct {
	PayURL string          `json:"payUrl"`
	TxnRef string          `json:"txnRef"`
	Amount decimal.Decimal `json:"amount"`
}

type paymentReturnResponse struct {
	TxnRef        string          `json:"txnRef"`
	ResponseCode  string          `json:"responseCode"`
	TransactionNo string          `json:"transactionNo,omitempty"`
	Paid          bool            `json:"paid"`
	OrderID       string          `json:"orderId,omitempty"`
	OrderStatus   domorder.Status `json:"orderStatus,omitempty"`
}

func (h *Handler) handleCreatePaymentURL(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	res, err := h.svc.Payments.CreateURL.Execute(r.Context(), apppayment.CreateURLInput{
		OrderID:  req.OrderID,
		ClientIP: clientIP(r),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "payment url created", createPaymentResponse(res))
}

// handlePaymentReturn serves the gateway redirect. Only the first value of
// each query parameter takes part in signature verification.
func (h *Handler) handlePaymentReturn(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := make(map[string]string, len(query))
	for k := range query {
		params[k] = query.Get(k)
	}

	res, err := h.svc.Payments.HandleReturn.Execute(r.Context(), params)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	body := paymentReturnResponse{
		TxnRef:        res.TxnRef,
		ResponseCode:  res.ResponseCode,
		TransactionNo: res.TransactionNo,
		Paid:          res.Paid,
	}
	if res.Order != nil {
		body.OrderID = res.Order.ID
		body.OrderStatus = res.Order.Status
	}
	if !res.Paid {
		writeJSON(w, http.StatusOK, envelope{Status: http.StatusOK, Message: "payment declined", Success: false, Data: body})
		return
	}
	writeOK(w, http.StatusOK, "payment confirmed", body)
}
