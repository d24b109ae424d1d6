package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	paymentService = "payment-service"

	useCaseCreateURL    = "payment.create_url"
	useCaseHandleReturn = "payment.handle_return"

	orderInfoFormat = "Thanh toán đơn hàng %s"
)

var ErrNotPayable = fmt.Errorf("payment: %w: only DRAFT orders can be paid", domain.ErrInvalidTransition)

type (
	OrderReader    = application.UseCase[string, *domorder.Order]
	OrderCompleter = application.UseCase[apporder.CompleteOrderInput, *domorder.Order]
)

var (
	_ application.UseCase[CreateURLInput, CreateURLResult] = (*CreateURLUseCase)(nil)
	_ application.UseCase[map[string]string, ReturnResult] = (*HandleReturnUseCase)(nil)
)

// Service groups the gateway-facing use cases.
type Service struct {
	CreateURL    *CreateURLUseCase
	HandleReturn *HandleReturnUseCase
}

func NewService(gateway *dompay.Gateway, orders OrderReader, complete OrderCompleter, tel observability.Observability) *Service {
	instr := application.NewInstrument(tel, paymentService)
	return &Service{
		CreateURL:    &CreateURLUseCase{gateway: gateway, orders: orders, instr: instr, now: time.Now},
		HandleReturn: &HandleReturnUseCase{gateway: gateway, complete: complete, instr: instr},
	}
}

type CreateURLInput struct {
	OrderID  string
	ClientIP string
}

type CreateURLResult struct {
	PayURL string
	TxnRef string
	Amount decimal.Decimal
}

// CreateURLUseCase builds the signed redirect to the gateway for a DRAFT
// order, using the order code as transaction reference.
type CreateURLUseCase struct {
	gateway *dompay.Gateway
	orders  OrderReader
	instr   *application.Instrument
	now     func() time.Time
}

func (uc *CreateURLUseCase) Execute(ctx context.Context, cmd CreateURLInput) (_ CreateURLResult, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseCreateURL, "CreatePaymentURL", attribute.String("order.id", cmd.OrderID))
	defer func() { run.End(err) }()

	o, err := uc.orders.Execute(ctx, cmd.OrderID)
	if err != nil {
		return CreateURLResult{}, run.Fail("ORDER_LOAD_FAILED", err)
	}
	if o.Status != domorder.StatusDraft || o.DeletedByUser {
		return CreateURLResult{}, run.Fail("ORDER_NOT_PAYABLE", fmt.Errorf("%w: order %s is %s", ErrNotPayable, o.Code, o.Status))
	}

	payURL, err := uc.gateway.PaymentURL(dompay.Request{
		TxnRef:    o.Code,
		Amount:    o.TotalAmount,
		OrderInfo: fmt.Sprintf(orderInfoFormat, o.Code),
		ClientIP:  cmd.ClientIP,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return CreateURLResult{}, run.Fail("URL_BUILD_FAILED", err)
	}

	run.Field("order_code", o.Code)
	run.Span().SetAttributes(attribute.String("payment.txn_ref", o.Code))
	return CreateURLResult{PayURL: payURL, TxnRef: o.Code, Amount: o.TotalAmount}, nil
}

type ReturnResult struct {
	TxnRef        string
	ResponseCode  string
	TransactionNo string
	Paid          bool
	Order         *domorder.Order
}

// HandleReturnUseCase verifies the gateway callback and, for a successful
// payment, completes the order the transaction references. Declined payments
// leave the order as it is.
type HandleReturnUseCase struct {
	gateway  *dompay.Gateway
	complete OrderCompleter
	instr    *application.Instrument
}

func (uc *HandleReturnUseCase) Execute(ctx context.Context, params map[string]string) (_ ReturnResult, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseHandleReturn, "HandlePaymentReturn")
	defer func() { run.End(err) }()

	cb, err := uc.gateway.ParseCallback(params)
	if err != nil {
		return ReturnResult{}, run.Fail("CALLBACK_REJECTED", err)
	}
	res := ReturnResult{
		TxnRef:        cb.TxnRef,
		ResponseCode:  cb.ResponseCode,
		TransactionNo: cb.TransactionNo,
	}
	run.Field("txn_ref", cb.TxnRef)
	run.Field("response_code", cb.ResponseCode)
	run.Span().SetAttributes(
		attribute.String("payment.txn_ref", cb.TxnRef),
		attribute.String("payment.response_code", cb.ResponseCode),
	)

	if !cb.Success() {
		run.SetStatus("PAYMENT_DECLINED")
		return res, nil
	}

	o, err := uc.complete.Execute(ctx, apporder.CompleteOrderInput{Code: cb.TxnRef, PaidAmount: cb.Amount})
	if err != nil {
		return ReturnResult{}, run.Fail("ORDER_COMPLETE_FAILED", err)
	}
	res.Paid = true
	res.Order = o
	return res, nil
}
