package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

type InventoryRepository struct {
	mu    sync.Mutex
	items map[string]*domain.Item
	keys  map[string]struct{}
}

func NewInventoryRepository() *InventoryRepository {
	return &InventoryRepository{
		items: make(map[string]*domain.Item),
		keys:  make(map[string]struct{}),
	}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Item, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *InventoryRepository) Set(ctx context.Context, productID string, quantity int) error {
	_ = ctx
	item, err := domain.NewItem(productID, quantity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[productID] = item
	return nil
}

// ApplyBatch works on copies and swaps them in only when every line succeeds.
func (r *InventoryRepository) ApplyBatch(ctx context.Context, key string, batch []domain.Adjustment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if key != "" {
		if _, seen := r.keys[key]; seen {
			return false, nil
		}
	}

	working := make(map[string]*domain.Item, len(batch))
	for i, a := range batch {
		item, ok := working[a.ProductID]
		if !ok {
			if stored, exists := r.items[a.ProductID]; exists {
				item = stored.Clone()
			} else if a.Operation == domain.Increment {
				item, _ = domain.NewItem(a.ProductID, 0)
			} else {
				return false, fmt.Errorf("item %d: %w: %s", i, domain.ErrNotFound, a.ProductID)
			}
			working[a.ProductID] = item
		}
		if err := item.Apply(a); err != nil {
			return false, fmt.Errorf("item %d (%s): %w", i, a.ProductID, err)
		}
	}

	for id, item := range working {
		r.items[id] = item
	}
	if key != "" {
		r.keys[key] = struct{}{}
	}
	return true, nil
}
