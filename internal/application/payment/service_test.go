package payment_test

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-orders/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/sequence"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
)

type counterSequence struct {
	mu sync.Mutex
	n  int64
}

func (s *counterSequence) Next(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return sequence.Format(prefix, s.n), nil
}

type fixture struct {
	gateway *dompay.Gateway
	orch    *apporder.Orchestrator
	svc     *apppay.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gateway := dompay.NewGateway(dompay.GatewayConfig{
		TmnCode:   "TMN01",
		Secret:    "vnpay-secret",
		PayURL:    "https://sandbox.example/paymentv2/vpcpay.html",
		ReturnURL: "http://localhost:8080/api/payments/vnpay/return",
		Version:   "2.1.0",
		Command:   "pay",
		CurrCode:  "VND",
		Locale:    "vn",
		OrderType: "other",
		HexCase:   dompay.HexUpper,
	})
	orch := apporder.NewOrchestrator(apporder.Deps{
		Repo:     memory.NewOrderRepository(),
		Sequence: &counterSequence{},
		IDs:      id.NewUUIDGenerator(),
	})
	return fixture{
		gateway: gateway,
		orch:    orch,
		svc:     apppay.NewService(gateway, orch.Get, orch.Complete, nil),
	}
}

func (f fixture) draft(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.orch.Create.Execute(t.Context(), apporder.CreateOrderInput{
		Items: []apporder.LineItemInput{{ProductID: "P1", Quantity: 3, UnitPrice: decimal.NewFromInt(50000)}},
	})
	require.NoError(t, err)
	return o
}

func (f fixture) callback(txnRef, code, minorAmount string) map[string]string {
	params := map[string]string{
		dompay.FieldTmnCode:       "TMN01",
		dompay.FieldTxnRef:        txnRef,
		dompay.FieldResponseCode:  code,
		dompay.FieldTransactionNo: "14123456",
		dompay.FieldBankCode:      "NCB",
		dompay.FieldAmount:        minorAmount,
	}
	params[dompay.FieldSecureHash] = f.gateway.Codec().Sign(params)
	params[dompay.FieldSecureHashType] = "HmacSHA512"
	return params
}

func TestCreateURL(t *testing.T) {
	f := newFixture(t)
	o := f.draft(t)

	res, err := f.svc.CreateURL.Execute(t.Context(), apppay.CreateURLInput{OrderID: o.ID, ClientIP: "::1"})
	require.NoError(t, err)
	assert.Equal(t, o.Code, res.TxnRef)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(150000)))

	u, err := url.Parse(res.PayURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "15000000", q.Get(dompay.FieldAmount))
	assert.Equal(t, o.Code, q.Get(dompay.FieldTxnRef))
	assert.Equal(t, "127.0.0.1", q.Get(dompay.FieldIPAddr))
	assert.Equal(t, "Thanh toan don hang "+o.Code, q.Get(dompay.FieldOrderInfo))

	signed := make(map[string]string, len(q))
	for k := range q {
		signed[k] = q.Get(k)
	}
	assert.NoError(t, f.gateway.Codec().Verify(signed))
}

func TestCreateURLRejectsCompletedOrder(t *testing.T) {
	f := newFixture(t)
	o := f.draft(t)
	_, err := f.orch.Complete.Execute(t.Context(), apporder.CompleteOrderInput{Code: o.Code})
	require.NoError(t, err)

	_, err = f.svc.CreateURL.Execute(t.Context(), apppay.CreateURLInput{OrderID: o.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.CreateURL.Execute(t.Context(), apppay.CreateURLInput{OrderID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleReturnCompletesOrder(t *testing.T) {
	f := newFixture(t)
	o := f.draft(t)

	res, err := f.svc.HandleReturn.Execute(t.Context(), f.callback(o.Code, "00", "15000000"))
	require.NoError(t, err)
	assert.True(t, res.Paid)
	require.NotNil(t, res.Order)
	assert.Equal(t, order.StatusCompleted, res.Order.Status)

	// the gateway may redeliver the same return
	again, err := f.svc.HandleReturn.Execute(t.Context(), f.callback(o.Code, "00", "15000000"))
	require.NoError(t, err)
	assert.True(t, again.Paid)
}

func TestHandleReturnDeclined(t *testing.T) {
	f := newFixture(t)
	o := f.draft(t)

	res, err := f.svc.HandleReturn.Execute(t.Context(), f.callback(o.Code, "24", "15000000"))
	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Equal(t, "24", res.ResponseCode)

	stored, err := f.orch.Get.Execute(t.Context(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDraft, stored.Status)
}

func TestHandleReturnRejections(t *testing.T) {
	f := newFixture(t)
	o := f.draft(t)

	tampered := f.callback(o.Code, "00", "15000000")
	tampered[dompay.FieldAmount] = "100"
	_, err := f.svc.HandleReturn.Execute(t.Context(), tampered)
	assert.ErrorIs(t, err, domain.ErrSignatureMismatch)

	_, err = f.svc.HandleReturn.Execute(t.Context(), f.callback(o.Code, "00", "100"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := f.orch.Get.Execute(t.Context(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDraft, stored.Status)
}

func TestHandleReturnCompletionUnavailable(t *testing.T) {
	f := newFixture(t)
	o := f.draft(t)

	down := application.UseCaseFunc[apporder.CompleteOrderInput, *order.Order](
		func(context.Context, apporder.CompleteOrderInput) (*order.Order, error) {
			return nil, fmt.Errorf("orders store: %w", domain.ErrDependencyUnavailable)
		},
	)
	svc := apppay.NewService(f.gateway, f.orch.Get, down, nil)

	_, err := svc.HandleReturn.Execute(t.Context(), f.callback(o.Code, dompay.ResponseSuccess, "15000000"))
	require.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	got, err := f.orch.Get.Execute(t.Context(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDraft, got.Status)
}
