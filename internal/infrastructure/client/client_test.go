package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

func writeEnvelope(w http.ResponseWriter, status int, message string, success bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"message": message,
		"success": success,
		"data":    nil,
	})
}

func TestInventoryAdjust(t *testing.T) {
	var (
		gotKey  string
		gotBody []adjustmentDTO
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, InventoryUpdatePath, r.URL.Path)
		gotKey = r.Header.Get(IdempotencyHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeEnvelope(w, http.StatusOK, "ok", true)
	}))
	defer srv.Close()

	c := NewInventory(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, nil)
	err := c.Adjust(t.Context(), "rec-1", []inventory.Adjustment{
		{ProductID: "P1", Quantity: 2, Operation: inventory.Decrement},
		{ProductID: "P2", Quantity: 1, Operation: inventory.Increment},
	})
	require.NoError(t, err)

	assert.Equal(t, "rec-1", gotKey)
	assert.Equal(t, []adjustmentDTO{
		{ProductID: "P1", Quantity: 2, Operation: -1},
		{ProductID: "P2", Quantity: 1, Operation: 1},
	}, gotBody)
}

func TestInventoryAdjustEmptyBatchSkipsCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	require.NoError(t, NewInventory(Config{BaseURL: srv.URL}, nil).Adjust(t.Context(), "k", nil))
	assert.Zero(t, hits.Load())
}

func TestInventoryAdjustErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusInternalServerError, "boom", false)
			},
			want: domain.ErrDependencyUnavailable,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusTooManyRequests, "slow down", false)
			},
			want: domain.ErrDependencyUnavailable,
		},
		{
			name: "rejected batch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusBadRequest, "insufficient stock", false)
			},
			want: domain.ErrValidation,
		},
		{
			name: "unsuccessful envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusOK, "insufficient stock", false)
			},
			want: domain.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			err := NewInventory(Config{BaseURL: srv.URL}, nil).Adjust(t.Context(), "k",
				[]inventory.Adjustment{{ProductID: "P1", Quantity: 1, Operation: inventory.Decrement}})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewInventory(Config{BaseURL: url, Timeout: 200 * time.Millisecond}, nil).Adjust(t.Context(), "k",
		[]inventory.Adjustment{{ProductID: "P1", Quantity: 1, Operation: inventory.Decrement}})
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}

func TestBreakerOpensOnDependencyFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewInventory(Config{BaseURL: srv.URL}, nil)
	batch := []inventory.Adjustment{{ProductID: "P1", Quantity: 1, Operation: inventory.Increment}}
	for i := 0; i < 5; i++ {
		require.ErrorIs(t, c.Adjust(t.Context(), "k", batch), domain.ErrDependencyUnavailable)
	}
	require.Equal(t, int32(5), hits.Load())

	err := c.Adjust(t.Context(), "k", batch)
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	assert.Equal(t, int32(5), hits.Load(), "open breaker must not reach the server")
}

func TestBreakerIgnoresValidationFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusBadRequest, "bad", false)
	}))
	defer srv.Close()

	c := NewInventory(Config{BaseURL: srv.URL}, nil)
	batch := []inventory.Adjustment{{ProductID: "P1", Quantity: 1, Operation: inventory.Increment}}
	for i := 0; i < 8; i++ {
		require.ErrorIs(t, c.Adjust(t.Context(), "k", batch), domain.ErrValidation)
	}
	assert.Equal(t, int32(8), hits.Load())
}

func TestInvoiceEmit(t *testing.T) {
	snap := invoice.Snapshot{
		Code:          "DH7",
		CustomerName:  "Lan",
		TotalAmount:   decimal.RequireFromString("20.00"),
		PaymentMethod: "cash",
		Items: []invoice.Item{
			{ProductID: "P1", ProductName: "Tea", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}

	tests := []struct {
		name          string
		status        int
		message       string
		wantDuplicate bool
	}{
		{name: "created", status: http.StatusCreated, message: "created"},
		{name: "duplicate message", status: http.StatusOK, message: "duplicate", wantDuplicate: true},
		{name: "conflict status", status: http.StatusConflict, message: "exists", wantDuplicate: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got createInvoiceDTO
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, InvoiceCreatePath, r.URL.Path)
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				writeEnvelope(w, tt.status, tt.message, tt.status != http.StatusConflict)
			}))
			defer srv.Close()

			dup, err := NewInvoice(Config{BaseURL: srv.URL}, nil).Emit(t.Context(), "o-1", invoice.TypeCompleted, snap)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDuplicate, dup)

			assert.Equal(t, "o-1", got.OrderID)
			assert.Equal(t, "DH7", got.Code)
			assert.Equal(t, "COMPLETED", got.InvoiceType)
			assert.True(t, got.TotalAmount.Equal(snap.TotalAmount))
			require.Len(t, got.Items, 1)
			assert.Equal(t, "Tea", got.Items[0].ProductName)
		})
	}
}

func TestInvoiceEmitUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, "down", false)
	}))
	defer srv.Close()

	_, err := NewInvoice(Config{BaseURL: srv.URL}, nil).Emit(t.Context(), "o-1", invoice.TypeReturned, invoice.Snapshot{})
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}
