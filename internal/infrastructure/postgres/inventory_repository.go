package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

var _ domain.Repository = (*InventoryRepository)(nil)

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Item, error) {
	var item domain.Item
	err := r.pool.QueryRow(ctx, `SELECT product_id, quantity, updated_at FROM inventory_items WHERE product_id = $1`,
		productID).Scan(&item.ProductID, &item.Quantity, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("inventory repository: get: %w", err)
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

func (r *InventoryRepository) Set(ctx context.Context, productID string, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory_items (product_id, quantity, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`,
		productID, quantity)
	if err != nil {
		return fmt.Errorf("inventory repository: set: %w", err)
	}
	return nil
}

// ApplyBatch records the key and every stock change in one transaction; the
// non-negative check constraint rejects the whole batch on any shortfall.
func (r *InventoryRepository) ApplyBatch(ctx context.Context, key string, batch []domain.Adjustment) (bool, error) {
	applied, err := withTx(ctx, r.pool, func(tx pgx.Tx) (bool, error) {
		if key != "" {
			tag, err := tx.Exec(ctx, `INSERT INTO inventory_requests (idempotency_key, applied_at)
				VALUES ($1, now()) ON CONFLICT DO NOTHING`, key)
			if err != nil {
				return false, fmt.Errorf("tx.Exec request key: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return false, nil
			}
		}
		for i, a := range batch {
			if err := applyOne(ctx, tx, a); err != nil {
				return false, fmt.Errorf("item %d (%s): %w", i, a.ProductID, err)
			}
		}
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("inventory repository: apply: %w", err)
	}
	return applied, nil
}

func applyOne(ctx context.Context, tx pgx.Tx, a domain.Adjustment) error {
	if a.Operation == domain.Increment {
		_, err := tx.Exec(ctx, `INSERT INTO inventory_items (product_id, quantity, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (product_id) DO UPDATE SET quantity = inventory_items.quantity + EXCLUDED.quantity, updated_at = now()`,
			a.ProductID, a.Quantity)
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE inventory_items SET quantity = quantity - $2, updated_at = now()
		WHERE product_id = $1`, a.ProductID, a.Quantity)
	if err != nil {
		if pgCode(err) == codeCheckViolation {
			return domain.ErrInsufficientStock
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
