package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	peerInvoice       = "invoice"
	InvoiceCreatePath = "/invoices/create"
)

type invoiceItemDTO struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type createInvoiceDTO struct {
	OrderID       string           `json:"orderId"`
	Code          string           `json:"code"`
	InvoiceType   string           `json:"invoiceType"`
	CustomerName  string           `json:"customerName"`
	TotalAmount   decimal.Decimal  `json:"totalAmount"`
	PaymentMethod string           `json:"paymentMethod"`
	Items         []invoiceItemDTO `json:"items"`
}

// Invoice asks the invoice service to record an invoice snapshot.
type Invoice struct {
	c *jsonClient
}

func NewInvoice(cfg Config, tel observability.Observability) *Invoice {
	return &Invoice{c: newJSONClient(peerInvoice, cfg, tel)}
}

// Emit reports duplicate=true when the service already held an invoice for
// (orderID, t); that outcome is a success.
func (i *Invoice) Emit(ctx context.Context, orderID string, t invoice.Type, s invoice.Snapshot) (duplicate bool, err error) {
	body := createInvoiceDTO{
		OrderID:       orderID,
		Code:          s.Code,
		InvoiceType:   string(t),
		CustomerName:  s.CustomerName,
		TotalAmount:   s.TotalAmount,
		PaymentMethod: s.PaymentMethod,
		Items:         make([]invoiceItemDTO, 0, len(s.Items)),
	}
	for _, it := range s.Items {
		body.Items = append(body.Items, invoiceItemDTO(it))
	}

	resp, err := i.c.post(ctx, "invoices.create", InvoiceCreatePath, body, nil,
		http.StatusOK, http.StatusCreated, http.StatusConflict)
	if err != nil {
		return false, fmt.Errorf("invoice client: %w", err)
	}
	if resp.status == http.StatusConflict {
		return true, nil
	}
	env, err := decodeEnvelope(resp.body)
	if err != nil {
		return false, fmt.Errorf("invoice client: %w", err)
	}
	return strings.EqualFold(env.Message, "duplicate"), nil
}
