package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
)

const orderColumns = `id, code, status, total_amount, tax_amount, discount_amount, payment_method,
	customer_name, notes, return_reason, deleted_by_user, version, created_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

var _ domain.Repository = (*OrderRepository)(nil)

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order, records ...outbox.Record) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		_, err := tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			o.ID, o.Code, string(o.Status), o.TotalAmount, o.TaxAmount, o.DiscountAmount, o.PaymentMethod,
			o.CustomerName, o.Notes, o.ReturnReason, o.DeletedByUser, o.Version, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			if pgCode(err) == codeUniqueViolation {
				return struct{}{}, fmt.Errorf("%w: %s", domain.ErrConflict, err)
			}
			return struct{}{}, fmt.Errorf("tx.Exec insert order: %w", err)
		}
		if err := insertItems(ctx, tx, o); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, insertRecords(ctx, tx, records)
	})
	if err != nil {
		return fmt.Errorf("order repository: insert: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *OrderRepository) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE code = $1`, code)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, arg string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("order repository: get: %w", err)
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 OR NOT deleted_by_user) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id`,
		f.IncludeDeleted, string(f.Status))
	if err != nil {
		return nil, fmt.Errorf("order repository: list: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("order repository: list: %w", err)
	}

	items, err := r.loadItems(ctx, lo.Map(orders, func(o *domain.Order, _ int) string { return o.ID }))
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}
	return orders, nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order, records ...outbox.Record) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		tag, err := tx.Exec(ctx, `UPDATE orders SET
				status = $3, total_amount = $4, tax_amount = $5, discount_amount = $6,
				payment_method = $7, customer_name = $8, notes = $9, return_reason = $10,
				deleted_by_user = $11, updated_at = $12, version = version + 1
			WHERE id = $1 AND version = $2`,
			o.ID, o.Version, string(o.Status), o.TotalAmount, o.TaxAmount, o.DiscountAmount,
			o.PaymentMethod, o.CustomerName, o.Notes, o.ReturnReason, o.DeletedByUser, o.UpdatedAt)
		if err != nil {
			return struct{}{}, fmt.Errorf("tx.Exec update order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, missingOrStale(ctx, tx, o.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
			return struct{}{}, fmt.Errorf("tx.Exec delete items: %w", err)
		}
		if err := insertItems(ctx, tx, o); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, insertRecords(ctx, tx, records)
	})
	if err != nil {
		return fmt.Errorf("order repository: update: %w", err)
	}
	o.Version++
	return nil
}

func (r *OrderRepository) Delete(ctx context.Context, o *domain.Order, records ...outbox.Record) error {
	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1 AND version = $2`, o.ID, o.Version)
		if err != nil {
			return struct{}{}, fmt.Errorf("tx.Exec delete order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return struct{}{}, missingOrStale(ctx, tx, o.ID)
		}
		return struct{}{}, insertRecords(ctx, tx, records)
	})
	if err != nil {
		return fmt.Errorf("order repository: delete: %w", err)
	}
	return nil
}

func missingOrStale(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("tx.QueryRow exists: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *OrderRepository) loadItems(ctx context.Context, ids []string) (map[string][]domain.LineItem, error) {
	if len(ids) == 0 {
		return map[string][]domain.LineItem{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT order_id, product_id, product_name, quantity, unit_price, line_total
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("order repository: items: %w", err)
	}
	type itemRow struct {
		orderID string
		item    domain.LineItem
	}
	all, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (itemRow, error) {
		var ir itemRow
		err := row.Scan(&ir.orderID, &ir.item.ProductID, &ir.item.ProductName, &ir.item.Quantity,
			&ir.item.UnitPrice, &ir.item.LineTotal)
		return ir, err
	})
	if err != nil {
		return nil, fmt.Errorf("order repository: items: %w", err)
	}

	grouped := lo.GroupBy(all, func(ir itemRow) string { return ir.orderID })
	return lo.MapValues(grouped, func(rows []itemRow, _ string) []domain.LineItem {
		return lo.Map(rows, func(ir itemRow, _ int) domain.LineItem { return ir.item })
	}), nil
}

func insertItems(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	if len(o.Items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, line_no, product_id, product_name, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.LineTotal)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("tx.SendBatch items: %w", err)
	}
	return nil
}

func insertRecords(ctx context.Context, tx pgx.Tx, records []outbox.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`INSERT INTO outbox (id, aggregate_id, kind, payload, attempts, last_error, created_at, next_attempt_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.AggregateID, rec.Kind, rec.Payload, rec.Attempts, rec.LastError, rec.CreatedAt, rec.NextAttemptAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("tx.SendBatch outbox: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.Code, &status, &o.TotalAmount, &o.TaxAmount, &o.DiscountAmount,
		&o.PaymentMethod, &o.CustomerName, &o.Notes, &o.ReturnReason, &o.DeletedByUser, &o.Version,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
