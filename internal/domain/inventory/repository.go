package inventory

import "context"

type Repository interface {
	Get(ctx context.Context, productID string) (*Item, error)
	// ApplyBatch applies every adjustment atomically. When key is non-empty and was
	// already applied, it returns applied=false and leaves stock untouched.
	ApplyBatch(ctx context.Context, key string, batch []Adjustment) (applied bool, err error)
	// Set overwrites the stock level for a product.
	Set(ctx context.Context, productID string, quantity int) error
}
