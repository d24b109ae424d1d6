package inventory_test

import (
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appinv "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
)

func newService(t *testing.T, stock map[string]int) *appinv.Service {
	t.Helper()
	repo := memory.NewInventoryRepository()
	for id, qty := range stock {
		require.NoError(t, repo.Set(t.Context(), id, qty))
	}
	return appinv.NewService(repo, nil)
}

func TestAdjustAppliesBatchOnce(t *testing.T) {
	svc := newService(t, map[string]int{"P1": 5, "P2": 1})
	key := gofakeit.UUID()
	batch := []dominv.Adjustment{
		{ProductID: "P1", Quantity: 2, Operation: dominv.Decrement},
		{ProductID: "P2", Quantity: 3, Operation: dominv.Increment},
	}

	res, err := svc.Adjust.Execute(t.Context(), appinv.AdjustInput{IdempotencyKey: key, Items: batch})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	res, err = svc.Adjust.Execute(t.Context(), appinv.AdjustInput{IdempotencyKey: key, Items: batch})
	require.NoError(t, err)
	assert.False(t, res.Applied)

	p1, err := svc.Stock.Execute(t.Context(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Quantity)
	p2, err := svc.Stock.Execute(t.Context(), "P2")
	require.NoError(t, err)
	assert.Equal(t, 4, p2.Quantity)
}

func TestAdjustIsAllOrNothing(t *testing.T) {
	svc := newService(t, map[string]int{"P1": 5, "P2": 1})

	_, err := svc.Adjust.Execute(t.Context(), appinv.AdjustInput{Items: []dominv.Adjustment{
		{ProductID: "P1", Quantity: 2, Operation: dominv.Decrement},
		{ProductID: "P2", Quantity: 2, Operation: dominv.Decrement},
	}})
	require.ErrorIs(t, err, dominv.ErrInsufficientStock)

	p1, err := svc.Stock.Execute(t.Context(), "P1")
	require.NoError(t, err)
	assert.Equal(t, 5, p1.Quantity)
}

func TestAdjustRejectsInvalidBatches(t *testing.T) {
	svc := newService(t, nil)
	tests := map[string][]dominv.Adjustment{
		"empty":           nil,
		"zero quantity":   {{ProductID: "P1", Quantity: 0, Operation: dominv.Increment}},
		"no operation":    {{ProductID: "P1", Quantity: 1}},
		"missing product": {{Quantity: 1, Operation: dominv.Increment}},
	}
	for name, batch := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Adjust.Execute(t.Context(), appinv.AdjustInput{Items: batch})
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestDecrementUnknownProduct(t *testing.T) {
	svc := newService(t, nil)
	_, err := svc.Adjust.Execute(t.Context(), appinv.AdjustInput{Items: []dominv.Adjustment{
		{ProductID: "ghost", Quantity: 1, Operation: dominv.Decrement},
	}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetStock(t *testing.T) {
	svc := newService(t, nil)

	item, err := svc.SetStock.Execute(t.Context(), appinv.SetStockInput{ProductID: "P9", Quantity: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, item.Quantity)

	_, err = svc.SetStock.Execute(t.Context(), appinv.SetStockInput{ProductID: "P9", Quantity: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Stock.Execute(t.Context(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
