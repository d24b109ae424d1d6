package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

const invoiceColumns = `id, order_id, invoice_type, code, customer_name, total_amount, payment_method, items, created_at`

// InvoiceRepository relies on the (order_id, invoice_type) unique index.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

var _ domain.Repository = (*InvoiceRepository)(nil)

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

func (r *InvoiceRepository) Insert(ctx context.Context, inv *domain.Invoice) error {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("invoice repository: encode items: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.OrderID, string(inv.Type), inv.Code, inv.CustomerName, inv.TotalAmount,
		inv.PaymentMethod, items, inv.CreatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("invoice repository: insert: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.findOne(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
}

func (r *InvoiceRepository) FindByOrderAndType(ctx context.Context, orderID string, t domain.Type) (*domain.Invoice, error) {
	return r.findOne(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE order_id = $1 AND invoice_type = $2`, orderID, string(t))
}

func (r *InvoiceRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("invoice repository: find: %w", err)
	}
	inv, err := pgx.CollectExactlyOneRow(rows, scanInvoice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("invoice repository: find: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) List(ctx context.Context, orderID string) ([]*domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE $1 = '' OR order_id = $1
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("invoice repository: list: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanInvoice)
	if err != nil {
		return nil, fmt.Errorf("invoice repository: list: %w", err)
	}
	return out, nil
}

// Summarize aggregates in one statement; item quantities are summed out of
// the items JSONB array.
func (r *InvoiceRepository) Summarize(ctx context.Context, p domain.Period) (domain.Summary, error) {
	var s domain.Summary
	err := r.pool.QueryRow(ctx, `SELECT
			COALESCE(SUM(i.total_amount) FILTER (WHERE i.invoice_type = 'COMPLETED'), 0),
			COUNT(*) FILTER (WHERE i.invoice_type = 'COMPLETED'),
			COALESCE(SUM(q.quantity) FILTER (WHERE i.invoice_type = 'COMPLETED'), 0)::bigint,
			COUNT(*) FILTER (WHERE i.invoice_type = 'RETURNED')
		FROM invoices i
		CROSS JOIN LATERAL (
			SELECT COALESCE(SUM((e->>'quantity')::bigint), 0) AS quantity
			FROM jsonb_array_elements(CASE WHEN jsonb_typeof(i.items) = 'array' THEN i.items ELSE '[]'::jsonb END) e
		) q
		WHERE ($1::timestamptz IS NULL OR i.created_at >= $1)
		  AND ($2::timestamptz IS NULL OR i.created_at < $2)`,
		bound(p.From), bound(p.To),
	).Scan(&s.Revenue, &s.Completed, &s.QuantitySold, &s.Returned)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("invoice repository: summarize: %w", err)
	}
	return s, nil
}

// bound maps an open period bound to NULL.
func bound(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanInvoice(row pgx.CollectableRow) (*domain.Invoice, error) {
	var (
		inv   domain.Invoice
		t     string
		items []byte
	)
	err := row.Scan(&inv.ID, &inv.OrderID, &t, &inv.Code, &inv.CustomerName, &inv.TotalAmount,
		&inv.PaymentMethod, &items, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.Type = domain.Type(t)
	inv.CreatedAt = inv.CreatedAt.UTC()
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return &inv, nil
}
