package order_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

func TestTransitionTable(t *testing.T) {
	none := order.Effects{}
	tests := []struct {
		from, to order.Status
		want     order.Effects
		ok       bool
	}{
		{order.StatusNone, order.StatusDraft, none, true},
		{order.StatusNone, order.StatusCompleted, order.Effects{Inventory: inventory.Decrement, Invoice: invoice.TypeCompleted}, true},
		{order.StatusNone, order.StatusCancelled, none, false},
		{order.StatusNone, order.StatusReturned, none, false},

		{order.StatusDraft, order.StatusDraft, none, true},
		{order.StatusDraft, order.StatusCompleted, order.Effects{Inventory: inventory.Decrement, Invoice: invoice.TypeCompleted}, true},
		{order.StatusDraft, order.StatusCancelled, order.Effects{Inventory: inventory.Increment}, true},
		{order.StatusDraft, order.StatusReturned, none, false},

		{order.StatusCompleted, order.StatusCompleted, none, true},
		{order.StatusCompleted, order.StatusCancelled, order.Effects{Inventory: inventory.Increment, Invoice: invoice.TypeCancelled}, true},
		{order.StatusCompleted, order.StatusReturned, order.Effects{Inventory: inventory.Increment, Invoice: invoice.TypeReturned}, true},
		{order.StatusCompleted, order.StatusDraft, none, false},

		{order.StatusCancelled, order.StatusCancelled, none, true},
		{order.StatusCancelled, order.StatusDraft, none, false},
		{order.StatusCancelled, order.StatusCompleted, none, false},
		{order.StatusCancelled, order.StatusReturned, none, false},

		{order.StatusReturned, order.StatusReturned, none, true},
		{order.StatusReturned, order.StatusDraft, none, false},
		{order.StatusReturned, order.StatusCompleted, none, false},
		{order.StatusReturned, order.StatusCancelled, none, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "->" + string(tt.to)
		if tt.from == order.StatusNone {
			name = "none->" + string(tt.to)
		}
		t.Run(name, func(t *testing.T) {
			eff, err := order.Transition(tt.from, tt.to)
			if !tt.ok {
				require.ErrorIs(t, err, domain.ErrInvalidTransition)
				assert.True(t, eff.None())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, eff)
		})
	}
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	_, err := order.Transition(order.StatusDraft, order.Status("SHIPPED"))
	require.ErrorIs(t, err, order.ErrInvalidStatus)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestParseStatus(t *testing.T) {
	st, err := order.ParseStatus(" completed ")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, st)

	_, err = order.ParseStatus("paid")
	require.ErrorIs(t, err, order.ErrInvalidStatus)
}

func TestNewPricesLineItems(t *testing.T) {
	o, eff, err := order.New("o-1", "DH1", order.Draft{
		Status: order.StatusCompleted,
		Items: []order.LineItem{
			item(t, "p1", 2, "10.50"),
			item(t, "p2", 1, "4"),
		},
		TaxAmount:      decimal.RequireFromString("1.25"),
		DiscountAmount: decimal.RequireFromString("5"),
		CustomerName:   "Lan",
	})
	require.NoError(t, err)

	assert.Equal(t, order.Effects{Inventory: inventory.Decrement, Invoice: invoice.TypeCompleted}, eff)
	assert.True(t, o.Items[0].LineTotal.Equal(decimal.RequireFromString("21")))
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("21.25")), o.TotalAmount.String())
	assert.Equal(t, int64(0), o.Version)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		draft   order.Draft
		wantErr error
	}{
		{
			name:    "completed without items",
			draft:   order.Draft{Status: order.StatusCompleted},
			wantErr: order.ErrEmptyItems,
		},
		{
			name:    "initial status cancelled",
			draft:   order.Draft{Status: order.StatusCancelled},
			wantErr: order.ErrInvalidTransition,
		},
		{
			name: "discount larger than subtotal",
			draft: order.Draft{
				Status:         order.StatusDraft,
				Items:          []order.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(3)}},
				DiscountAmount: decimal.NewFromInt(4),
			},
			wantErr: order.ErrInvalidAmount,
		},
		{
			name: "zero quantity",
			draft: order.Draft{
				Status: order.StatusDraft,
				Items:  []order.LineItem{{ProductID: "p1", Quantity: 0, UnitPrice: decimal.NewFromInt(3)}},
			},
			wantErr: order.ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := order.New("o-1", "DH1", tt.draft)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDraftMayHaveNoItems(t *testing.T) {
	o, eff, err := order.New("o-1", "DH1", order.Draft{Status: order.StatusDraft})
	require.NoError(t, err)
	assert.True(t, eff.None())
	assert.True(t, o.TotalAmount.IsZero())
}

func TestApply(t *testing.T) {
	t.Run("draft items can be edited", func(t *testing.T) {
		o := newOrder(t, order.StatusDraft)
		items := []order.LineItem{item(t, "p9", 3, "2")}

		eff, err := o.Apply(order.Patch{Items: &items})
		require.NoError(t, err)
		assert.True(t, eff.None())
		assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(6)))
	})

	t.Run("completed items are frozen", func(t *testing.T) {
		o := newOrder(t, order.StatusCompleted)
		before := o.Clone()
		tax := decimal.NewFromInt(1)

		_, err := o.Apply(order.Patch{TaxAmount: &tax})
		require.ErrorIs(t, err, order.ErrItemsFrozen)
		assert.Equal(t, before, o)
	})

	t.Run("completed notes can change", func(t *testing.T) {
		o := newOrder(t, order.StatusCompleted)
		notes := "leave at the door"

		eff, err := o.Apply(order.Patch{Notes: &notes})
		require.NoError(t, err)
		assert.True(t, eff.None())
		assert.Equal(t, notes, o.Notes)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		o := newOrder(t, order.StatusCompleted)
		st := order.StatusCompleted

		eff, err := o.Apply(order.Patch{Status: &st})
		require.NoError(t, err)
		assert.True(t, eff.None())
	})

	t.Run("return records reason", func(t *testing.T) {
		o := newOrder(t, order.StatusCompleted)
		st := order.StatusReturned
		reason := "damaged"

		eff, err := o.Apply(order.Patch{Status: &st, ReturnReason: &reason})
		require.NoError(t, err)
		assert.Equal(t, order.Effects{Inventory: inventory.Increment, Invoice: invoice.TypeReturned}, eff)
		assert.Equal(t, order.StatusReturned, o.Status)
		assert.Equal(t, "damaged", o.ReturnReason)
	})

	t.Run("completing an empty draft fails", func(t *testing.T) {
		o, _, err := order.New("o-2", "DH2", order.Draft{Status: order.StatusDraft})
		require.NoError(t, err)
		st := order.StatusCompleted

		_, err = o.Apply(order.Patch{Status: &st})
		require.ErrorIs(t, err, order.ErrEmptyItems)
		assert.Equal(t, order.StatusDraft, o.Status)
	})

	t.Run("deleted orders reject updates", func(t *testing.T) {
		o := newOrder(t, order.StatusCompleted)
		o.Delete()
		notes := "x"

		_, err := o.Apply(order.Patch{Notes: &notes})
		require.ErrorIs(t, err, order.ErrDeleted)
	})
}

func TestDelete(t *testing.T) {
	t.Run("draft is hard deleted and releases stock", func(t *testing.T) {
		o := newOrder(t, order.StatusDraft)
		hard, eff := o.Delete()
		assert.True(t, hard)
		assert.Equal(t, order.Effects{Inventory: inventory.Increment}, eff)
		assert.False(t, o.DeletedByUser)
	})

	for _, st := range []order.Status{order.StatusCompleted, order.StatusCancelled, order.StatusReturned} {
		t.Run(string(st)+" is soft deleted", func(t *testing.T) {
			o := newOrder(t, order.StatusCompleted)
			if st != order.StatusCompleted {
				target := st
				_, err := o.Apply(order.Patch{Status: &target})
				require.NoError(t, err)
			}
			hard, eff := o.Delete()
			assert.False(t, hard)
			assert.True(t, eff.None())
			assert.True(t, o.DeletedByUser)
			assert.Equal(t, st, o.Status)
		})
	}
}

func TestAdjustmentsAndSnapshot(t *testing.T) {
	o := newOrder(t, order.StatusCompleted)

	adj := o.Adjustments(inventory.Increment)
	require.Len(t, adj, 2)
	assert.Equal(t, inventory.Adjustment{ProductID: "p1", Quantity: 2, Operation: inventory.Increment}, adj[0])
	assert.Equal(t, 1, adj[1].Delta())

	snap := o.Snapshot()
	assert.Equal(t, o.Code, snap.Code)
	assert.True(t, snap.TotalAmount.Equal(o.TotalAmount))
	require.Len(t, snap.Items, 2)
	assert.Equal(t, "p2", snap.Items[1].ProductID)
}

func TestCloneIsDeep(t *testing.T) {
	o := newOrder(t, order.StatusDraft)
	c := o.Clone()
	c.Items[0].Quantity = 99
	assert.Equal(t, 2, o.Items[0].Quantity)
}

func newOrder(t *testing.T, st order.Status) *order.Order {
	t.Helper()
	o, _, err := order.New("o-1", "DH1", order.Draft{
		Status:        st,
		Items:         []order.LineItem{item(t, "p1", 2, "10"), item(t, "p2", 1, "5")},
		PaymentMethod: "cash",
		CustomerName:  "Minh",
	})
	require.NoError(t, err)
	return o
}

func item(t *testing.T, productID string, qty int, price string) order.LineItem {
	t.Helper()
	li, err := order.NewLineItem(productID, "name-"+productID, qty, decimal.RequireFromString(price))
	require.NoError(t, err)
	return li
}
