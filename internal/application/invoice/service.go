package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	dominvoice "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	invoiceService = "invoice-service"

	useCaseEmit    = "invoice.emit"
	useCaseList    = "invoice.list"
	useCaseGet     = "invoice.get"
	useCaseReport  = "invoice.report"
	useCaseRevenue = "invoice.revenue"
)

type IDGenerator interface {
	NewID() string
}

var (
	_ application.UseCase[EmitInput, EmitResult]         = (*EmitInvoiceUseCase)(nil)
	_ application.UseCase[string, []*dominvoice.Invoice] = (*ListInvoicesUseCase)(nil)
	_ application.UseCase[string, *dominvoice.Invoice]   = (*GetInvoiceUseCase)(nil)
	_ application.UseCase[ReportInput, Report]           = (*SalesReportUseCase)(nil)
	_ application.UseCase[ReportInput, decimal.Decimal]  = (*RevenueUseCase)(nil)
)

type Service struct {
	Emit    *EmitInvoiceUseCase
	List    *ListInvoicesUseCase
	Get     *GetInvoiceUseCase
	Report  *SalesReportUseCase
	Daily   *RevenueUseCase
	Monthly *RevenueUseCase
}

func NewService(repo dominvoice.Repository, ids IDGenerator, tel observability.Observability) *Service {
	instr := application.NewInstrument(tel, invoiceService)
	return &Service{
		Emit:    &EmitInvoiceUseCase{repo: repo, ids: ids, instr: instr},
		List:    &ListInvoicesUseCase{repo: repo, instr: instr},
		Get:     &GetInvoiceUseCase{repo: repo, instr: instr},
		Report:  &SalesReportUseCase{repo: repo, instr: instr},
		Daily:   &RevenueUseCase{repo: repo, instr: instr, window: "daily", fallback: today, now: time.Now},
		Monthly: &RevenueUseCase{repo: repo, instr: instr, window: "monthly", fallback: thisMonth, now: time.Now},
	}
}

type EmitInput struct {
	OrderID  string
	Type     dominvoice.Type
	Snapshot dominvoice.Snapshot
}

type EmitResult struct {
	Invoice *dominvoice.Invoice
	// Duplicate reports that an invoice for (OrderID, Type) already existed;
	// Invoice is then the existing one.
	Duplicate bool
}

// EmitInvoiceUseCase issues at most one invoice per order and type.
type EmitInvoiceUseCase struct {
	repo  dominvoice.Repository
	ids   IDGenerator
	instr *application.Instrument
}

func (uc *EmitInvoiceUseCase) Execute(ctx context.Context, cmd EmitInput) (_ EmitResult, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseEmit, "EmitInvoice",
		attribute.String("order.id", cmd.OrderID),
		attribute.String("invoice.type", string(cmd.Type)),
	)
	defer func() { run.End(err) }()

	inv, err := dominvoice.New(uc.ids.NewID(), cmd.OrderID, cmd.Type, cmd.Snapshot)
	if err != nil {
		return EmitResult{}, run.Fail("INVOICE_INVALID", err)
	}

	existing, err := uc.repo.FindByOrderAndType(ctx, cmd.OrderID, cmd.Type)
	switch {
	case err == nil:
		run.SetStatus("DUPLICATE")
		return EmitResult{Invoice: existing, Duplicate: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return EmitResult{}, run.Fail("INVOICE_LOOKUP_FAILED", fmt.Errorf("invoice: lookup: %w", err))
	}

	if err := uc.repo.Insert(ctx, inv); err != nil {
		if !errors.Is(err, dominvoice.ErrDuplicate) {
			return EmitResult{}, run.Fail("INVOICE_INSERT_FAILED", fmt.Errorf("invoice: insert: %w", err))
		}
		// lost a race with a concurrent emission
		existing, findErr := uc.repo.FindByOrderAndType(ctx, cmd.OrderID, cmd.Type)
		if findErr != nil {
			return EmitResult{}, run.Fail("INVOICE_LOOKUP_FAILED", fmt.Errorf("invoice: lookup after duplicate: %w", findErr))
		}
		run.SetStatus("DUPLICATE")
		return EmitResult{Invoice: existing, Duplicate: true}, nil
	}

	run.Field("invoice_id", inv.ID)
	run.Field("order_id", inv.OrderID)
	return EmitResult{Invoice: inv}, nil
}

type ListInvoicesUseCase struct {
	repo  dominvoice.Repository
	instr *application.Instrument
}

// Execute lists the invoices of one order, or all invoices when orderID is empty.
func (uc *ListInvoicesUseCase) Execute(ctx context.Context, orderID string) (_ []*dominvoice.Invoice, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseList, "ListInvoices", attribute.String("order.id", orderID))
	defer func() { run.End(err) }()

	out, err := uc.repo.List(ctx, orderID)
	if err != nil {
		return nil, run.Fail("INVOICE_LIST_FAILED", err)
	}
	run.Field("count", len(out))
	return out, nil
}

type GetInvoiceUseCase struct {
	repo  dominvoice.Repository
	instr *application.Instrument
}

func (uc *GetInvoiceUseCase) Execute(ctx context.Context, id string) (_ *dominvoice.Invoice, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseGet, "GetInvoice", attribute.String("invoice.id", id))
	defer func() { run.End(err) }()

	inv, err := uc.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, run.Fail("INVOICE_NOT_FOUND", err)
		}
		return nil, run.Fail("INVOICE_LOOKUP_FAILED", err)
	}
	return inv, nil
}
