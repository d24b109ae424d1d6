package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

type invoiceKey struct {
	orderID string
	t       domain.Type
}

// InvoiceRepository enforces one invoice per (order, type) through its map key.
type InvoiceRepository struct {
	mu       sync.RWMutex
	invoices map[invoiceKey]*domain.Invoice
}

func NewInvoiceRepository() *InvoiceRepository {
	return &InvoiceRepository{invoices: make(map[invoiceKey]*domain.Invoice)}
}

func (r *InvoiceRepository) Insert(ctx context.Context, inv *domain.Invoice) error {
	_ = ctx
	k := invoiceKey{orderID: inv.OrderID, t: inv.Type}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.invoices[k]; exists {
		return domain.ErrDuplicate
	}
	r.invoices[k] = inv.Clone()
	return nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, inv := range r.invoices {
		if inv.ID == id {
			return inv.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *InvoiceRepository) FindByOrderAndType(ctx context.Context, orderID string, t domain.Type) (*domain.Invoice, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.invoices[invoiceKey{orderID: orderID, t: t}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inv.Clone(), nil
}

// List returns invoices for orderID, or all invoices when it is empty, oldest first.
func (r *InvoiceRepository) List(ctx context.Context, orderID string) ([]*domain.Invoice, error) {
	_ = ctx

	r.mu.RLock()
	out := make([]*domain.Invoice, 0, len(r.invoices))
	for k, inv := range r.invoices {
		if orderID != "" && k.orderID != orderID {
			continue
		}
		out = append(out, inv.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *domain.Invoice) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (r *InvoiceRepository) Summarize(ctx context.Context, p domain.Period) (domain.Summary, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		all = append(all, inv)
	}
	return domain.Summarize(p, all), nil
}
