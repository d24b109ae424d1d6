package invoice

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = fmt.Errorf("invoice: %w", domain.ErrNotFound)
	ErrDuplicate    = fmt.Errorf("invoice: %w: already issued for order and type", domain.ErrConflict)
	ErrInvalidType  = fmt.Errorf("invoice: %w: unknown invoice type", domain.ErrValidation)
	ErrMissingOrder = fmt.Errorf("invoice: %w: order id is required", domain.ErrValidation)
)

// Type mirrors the order status that produced the invoice.
type Type string

const (
	TypeCompleted Type = "COMPLETED"
	TypeCancelled Type = "CANCELLED"
	TypeReturned  Type = "RETURNED"
)

func (t Type) Valid() bool {
	switch t {
	case TypeCompleted, TypeCancelled, TypeReturned:
		return true
	}
	return false
}

type Item struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Snapshot is the order state copied into an invoice at emission time.
type Snapshot struct {
	Code          string          `json:"code"`
	CustomerName  string          `json:"customerName"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentMethod string          `json:"paymentMethod"`
	Items         []Item          `json:"items"`
}

// Invoice is append-only; nothing mutates it after New.
type Invoice struct {
	ID      string
	OrderID string
	Type    Type
	Snapshot
	CreatedAt time.Time
}

func New(id, orderID string, t Type, s Snapshot) (*Invoice, error) {
	if orderID == "" {
		return nil, ErrMissingOrder
	}
	if !t.Valid() {
		return nil, ErrInvalidType
	}
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	s.Items = items
	return &Invoice{
		ID:        id,
		OrderID:   orderID,
		Type:      t,
		Snapshot:  s,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	c.Items = append([]Item(nil), i.Items...)
	return &c
}
