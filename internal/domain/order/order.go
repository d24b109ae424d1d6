package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = fmt.Errorf("order: %w", domain.ErrNotFound)
	ErrConflict          = fmt.Errorf("order: %w: version changed", domain.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("order: %w", domain.ErrInvalidTransition)
	ErrItemsFrozen       = fmt.Errorf("order: %w: line items and pricing can only change while DRAFT", domain.ErrInvalidTransition)
	ErrDeleted           = fmt.Errorf("order: %w: order was deleted", domain.ErrInvalidTransition)
	ErrInvalidStatus     = fmt.Errorf("order: %w: unknown status", domain.ErrValidation)
	ErrEmptyItems        = fmt.Errorf("order: %w: line items are required to complete an order", domain.ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("order: %w: quantity must be at least one", domain.ErrValidation)
	ErrInvalidPrice      = fmt.Errorf("order: %w: unit price must be zero or greater", domain.ErrValidation)
	ErrInvalidAmount     = fmt.Errorf("order: %w: amounts must be zero or greater", domain.ErrValidation)
	ErrMissingProduct    = fmt.Errorf("order: %w: product id is required", domain.ErrValidation)
)

type Status string

const (
	StatusNone      Status = ""
	StatusDraft     Status = "DRAFT"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusReturned  Status = "RETURNED"
)

var validStatuses = map[Status]struct{}{
	StatusDraft:     {},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusReturned:  {},
}

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validStatuses[st]; !ok {
		return StatusNone, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

type LineItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

func NewLineItem(productID, productName string, quantity int, unitPrice decimal.Decimal) (LineItem, error) {
	if productID == "" {
		return LineItem{}, ErrMissingProduct
	}
	if quantity < 1 {
		return LineItem{}, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return LineItem{}, ErrInvalidPrice
	}
	return LineItem{
		ProductID:   productID,
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		LineTotal:   unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

type Order struct {
	ID             string
	Code           string
	Status         Status
	Items          []LineItem
	TotalAmount    decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentMethod  string
	CustomerName   string
	Notes          string
	ReturnReason   string
	DeletedByUser  bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Draft carries the caller-supplied part of a new order.
type Draft struct {
	Status         Status
	Items          []LineItem
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	PaymentMethod  string
	CustomerName   string
	Notes          string
}

// New builds an order at its initial status and returns the effects of
// entering that status from nothing.
func New(id, code string, d Draft) (*Order, Effects, error) {
	eff, err := Transition(StatusNone, d.Status)
	if err != nil {
		return nil, Effects{}, err
	}
	now := time.Now().UTC()
	o := &Order{
		ID:             id,
		Code:           code,
		Status:         d.Status,
		Items:          append([]LineItem(nil), d.Items...),
		TaxAmount:      d.TaxAmount,
		DiscountAmount: d.DiscountAmount,
		PaymentMethod:  d.PaymentMethod,
		CustomerName:   d.CustomerName,
		Notes:          d.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.reprice(); err != nil {
		return nil, Effects{}, err
	}
	if o.Status == StatusCompleted && len(o.Items) == 0 {
		return nil, Effects{}, ErrEmptyItems
	}
	return o, eff, nil
}

// Patch lists the fields an update may change; nil means unchanged.
type Patch struct {
	Status         *Status
	Items          *[]LineItem
	TaxAmount      *decimal.Decimal
	DiscountAmount *decimal.Decimal
	PaymentMethod  *string
	CustomerName   *string
	Notes          *string
	ReturnReason   *string
}

func (p Patch) touchesPricing() bool {
	return p.Items != nil || p.TaxAmount != nil || p.DiscountAmount != nil
}

// Apply mutates the order and returns the effects of its status change.
// On error the order is left untouched.
func (o *Order) Apply(p Patch) (Effects, error) {
	if o.DeletedByUser {
		return Effects{}, ErrDeleted
	}
	target := o.Status
	if p.Status != nil {
		target = *p.Status
	}
	eff, err := Transition(o.Status, target)
	if err != nil {
		return Effects{}, err
	}
	if p.touchesPricing() && o.Status != StatusDraft {
		return Effects{}, ErrItemsFrozen
	}

	next := o.Clone()
	next.Status = target
	if p.Items != nil {
		next.Items = append([]LineItem(nil), (*p.Items)...)
	}
	if p.TaxAmount != nil {
		next.TaxAmount = *p.TaxAmount
	}
	if p.DiscountAmount != nil {
		next.DiscountAmount = *p.DiscountAmount
	}
	if p.PaymentMethod != nil {
		next.PaymentMethod = *p.PaymentMethod
	}
	if p.CustomerName != nil {
		next.CustomerName = *p.CustomerName
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.ReturnReason != nil {
		next.ReturnReason = *p.ReturnReason
	}
	if err := next.reprice(); err != nil {
		return Effects{}, err
	}
	if next.Status == StatusCompleted && len(next.Items) == 0 {
		return Effects{}, ErrEmptyItems
	}

	next.touch()
	*o = *next
	return eff, nil
}

// Delete decides between hard and soft deletion. A DRAFT order is removed
// outright and its reservation released; any other order is only flagged.
func (o *Order) Delete() (hard bool, eff Effects) {
	if o.Status == StatusDraft {
		return true, Effects{Inventory: inventory.Increment}
	}
	if !o.DeletedByUser {
		o.DeletedByUser = true
		o.touch()
	}
	return false, Effects{}
}

// Adjustments returns one stock adjustment per line item.
func (o *Order) Adjustments(op inventory.Operation) []inventory.Adjustment {
	out := make([]inventory.Adjustment, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, inventory.Adjustment{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Operation: op,
		})
	}
	return out
}

// Snapshot copies the invoice-relevant state of the order.
func (o *Order) Snapshot() invoice.Snapshot {
	items := make([]invoice.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, invoice.Item{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return invoice.Snapshot{
		Code:          o.Code,
		CustomerName:  o.CustomerName,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
		Items:         items,
	}
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	return &c
}

// reprice recomputes line totals and the order total from the line items.
func (o *Order) reprice() error {
	if o.TaxAmount.IsNegative() || o.DiscountAmount.IsNegative() {
		return ErrInvalidAmount
	}
	subtotal := decimal.Zero
	for i, it := range o.Items {
		priced, err := NewLineItem(it.ProductID, it.ProductName, it.Quantity, it.UnitPrice)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		o.Items[i] = priced
		subtotal = subtotal.Add(priced.LineTotal)
	}
	total := subtotal.Sub(o.DiscountAmount).Add(o.TaxAmount)
	if total.IsNegative() {
		return ErrInvalidAmount
	}
	o.TotalAmount = total
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
