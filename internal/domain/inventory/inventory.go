package inventory

import (
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
)

var (
	ErrNotFound          = fmt.Errorf("inventory: product %w", domain.ErrNotFound)
	ErrInvalidQuantity   = fmt.Errorf("inventory: %w: quantity must be greater than zero", domain.ErrValidation)
	ErrInvalidOperation  = fmt.Errorf("inventory: %w: operation must be 1 or -1", domain.ErrValidation)
	ErrInsufficientStock = fmt.Errorf("inventory: %w: insufficient stock", domain.ErrValidation)
	ErrEmptyBatch        = fmt.Errorf("inventory: %w: adjustment batch is empty", domain.ErrValidation)
)

// Operation is the sign of a stock delta.
type Operation int

const (
	Decrement Operation = -1
	Increment Operation = 1
)

func (o Operation) Valid() bool { return o == Decrement || o == Increment }

func (o Operation) String() string {
	switch o {
	case Decrement:
		return "decrement"
	case Increment:
		return "increment"
	default:
		return "none"
	}
}

// Adjustment is one line of a stock update batch.
type Adjustment struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Operation Operation `json:"operation"`
}

// Delta is the signed stock change.
func (a Adjustment) Delta() int { return a.Quantity * int(a.Operation) }

func (a Adjustment) Validate() error {
	if a.ProductID == "" {
		return fmt.Errorf("inventory: %w: product id is required", domain.ErrValidation)
	}
	if a.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !a.Operation.Valid() {
		return ErrInvalidOperation
	}
	return nil
}

// ValidateBatch checks every adjustment; the whole batch is rejected on the first bad line.
func ValidateBatch(batch []Adjustment) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}
	for i, a := range batch {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

type Item struct {
	ProductID string
	Quantity  int
	UpdatedAt time.Time
}

func NewItem(productID string, quantity int) (*Item, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	return &Item{
		ProductID: productID,
		Quantity:  quantity,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (i *Item) Deduct(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if quantity > i.Quantity {
		return ErrInsufficientStock
	}
	i.Quantity -= quantity
	i.touch()
	return nil
}

func (i *Item) Restock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	i.Quantity += quantity
	i.touch()
	return nil
}

// Apply performs a single adjustment against the item.
func (i *Item) Apply(a Adjustment) error {
	if a.Operation == Decrement {
		return i.Deduct(a.Quantity)
	}
	return i.Restock(a.Quantity)
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

func (i *Item) touch() {
	i.UpdatedAt = time.Now().UTC()
}
