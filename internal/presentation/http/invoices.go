package httppresentation

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	appinvoice "github.com/Zhima-Mochi/minishop-orders/internal/application/invoice"
	dominvoice "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

// duplicateMessage tells the invoice client that nothing new was issued.
const duplicateMessage = "duplicate"

type invoiceItem struct {
	ProductID   string          `json:"productId" validate:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type createInvoiceRequest struct {
	OrderID       string          `json:"orderId" validate:"required"`
	Code          string          `json:"code"`
	InvoiceType   string          `json:"invoiceType" validate:"required,oneof=COMPLETED CANCELLED RETURNED"`
	CustomerName  string          `json:"customerName"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []invoiceItem   `json:"items" validate:"dive"`
}

type invoiceResponse struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	Code          string          `json:"code"`
	InvoiceType   dominvoice.Type `json:"invoiceType"`
	CustomerName  string          `json:"customerName"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []invoiceItem   `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func toInvoiceResponse(inv *dominvoice.Invoice) invoiceResponse {
	items := make([]invoiceItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, invoiceItem(it))
	}
	return invoiceResponse{
		ID:            inv.ID,
		OrderID:       inv.OrderID,
		Code:          inv.Code,
		InvoiceType:   inv.Type,
		CustomerName:  inv.CustomerName,
		TotalAmount:   inv.TotalAmount,
		PaymentMethod: inv.PaymentMethod,
		Items:         items,
		CreatedAt:     inv.CreatedAt,
	}
}

func (h *Handler) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]dominvoice.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, dominvoice.Item(it))
	}
	res, err := h.svc.Invoices.Emit.Execute(r.Context(), appinvoice.EmitInput{
		OrderID: req.OrderID,
		Type:    dominvoice.Type(req.InvoiceType),
		Snapshot: dominvoice.Snapshot{
			Code:          req.Code,
			CustomerName:  req.CustomerName,
			TotalAmount:   req.TotalAmount,
			PaymentMethod: req.PaymentMethod,
			Items:         items,
		},
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if res.Duplicate {
		writeOK(w, http.StatusOK, duplicateMessage, toInvoiceResponse(res.Invoice))
		return
	}
	writeOK(w, http.StatusCreated, "invoice created", toInvoiceResponse(res.Invoice))
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.Invoices.List.Execute(r.Context(), r.URL.Query().Get("orderId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	writeList(w, "invoices listed", out)
}

func (h *Handler) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.Invoices.Get.Execute(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "invoice found", toInvoiceResponse(inv))
}

type salesReportResponse struct {
	TotalRevenue         decimal.Decimal `json:"totalRevenue"`
	TotalRevenueDisplay  string          `json:"totalRevenueDisplay"`
	TotalOrders          int64           `json:"totalOrders"`
	TotalQuantityProduct int64           `json:"totalQuantityProduct"`
	TotalOrdersReturned  int64           `json:"totalOrdersReturned"`
}

func reportInput(r *http.Request) appinvoice.ReportInput {
	q := r.URL.Query()
	return appinvoice.ReportInput{FromDate: q.Get("fromDate"), ToDate: q.Get("toDate")}
}

func (h *Handler) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Invoices.Report.Execute(r.Context(), reportInput(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "report generated", salesReportResponse(rep))
}

func (h *Handler) handleDailyRevenue(w http.ResponseWriter, r *http.Request) {
	h.writeRevenue(w, r, h.svc.Invoices.Daily, "daily report generated")
}

func (h *Handler) handleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	h.writeRevenue(w, r, h.svc.Invoices.Monthly, "monthly report generated")
}

func (h *Handler) writeRevenue(w http.ResponseWriter, r *http.Request, uc *appinvoice.RevenueUseCase, msg string) {
	total, err := uc.Execute(r.Context(), reportInput(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, msg, total)
}
