package invoice

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	dominvoice "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
)

// DateLayout is the calendar-day format of report bounds.
const DateLayout = "2006-01-02"

var million = decimal.NewFromInt(1_000_000)

// ReportInput bounds a report by calendar days, both inclusive. Either may
// be empty.
type ReportInput struct {
	FromDate string
	ToDate   string
}

func (in ReportInput) empty() bool { return in.FromDate == "" && in.ToDate == "" }

// period turns the inclusive day range into a half-open UTC window.
func (in ReportInput) period() (dominvoice.Period, error) {
	var p dominvoice.Period
	if in.FromDate != "" {
		from, err := time.Parse(DateLayout, in.FromDate)
		if err != nil {
			return p, fmt.Errorf("%w: fromDate must be %s", domain.ErrValidation, DateLayout)
		}
		p.From = from
	}
	if in.ToDate != "" {
		to, err := time.Parse(DateLayout, in.ToDate)
		if err != nil {
			return p, fmt.Errorf("%w: toDate must be %s", domain.ErrValidation, DateLayout)
		}
		p.To = to.AddDate(0, 0, 1)
	}
	if !p.From.IsZero() && !p.To.IsZero() && !p.From.Before(p.To) {
		return p, fmt.Errorf("%w: fromDate is after toDate", domain.ErrValidation)
	}
	return p, nil
}

type Report struct {
	TotalRevenue         decimal.Decimal
	// TotalRevenueDisplay is TotalRevenue in millions, e.g. "47.22 triệu".
	TotalRevenueDisplay  string
	TotalOrders          int64
	TotalQuantityProduct int64
	TotalOrdersReturned  int64
}

func displayMillions(v decimal.Decimal) string {
	if !v.IsPositive() {
		return "0 triệu"
	}
	return v.Div(million).StringFixed(2) + " triệu"
}

// SalesReportUseCase aggregates invoices; with no bounds it covers all time.
type SalesReportUseCase struct {
	repo  dominvoice.Repository
	instr *application.Instrument
}

func (uc *SalesReportUseCase) Execute(ctx context.Context, in ReportInput) (_ Report, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseReport, "SalesReport",
		attribute.String("report.from", in.FromDate),
		attribute.String("report.to", in.ToDate),
	)
	defer func() { run.End(err) }()

	p, err := in.period()
	if err != nil {
		return Report{}, run.Fail("REPORT_INVALID", err)
	}
	sum, err := uc.repo.Summarize(ctx, p)
	if err != nil {
		return Report{}, run.Fail("REPORT_FAILED", fmt.Errorf("invoice: summarize: %w", err))
	}
	run.Field("completed", sum.Completed)
	return Report{
		TotalRevenue:         sum.Revenue,
		TotalRevenueDisplay:  displayMillions(sum.Revenue),
		TotalOrders:          sum.Completed,
		TotalQuantityProduct: sum.QuantitySold,
		TotalOrdersReturned:  sum.Returned,
	}, nil
}

// RevenueUseCase sums COMPLETED revenue over the requested days, or over a
// default window ending at now when no bound is given.
type RevenueUseCase struct {
	repo     dominvoice.Repository
	instr    *application.Instrument
	window   string
	fallback func(now time.Time) dominvoice.Period
	now      func() time.Time
}

func (uc *RevenueUseCase) Execute(ctx context.Context, in ReportInput) (_ decimal.Decimal, err error) {
	ctx, run := uc.instr.Start(ctx, useCaseRevenue, "Revenue",
		attribute.String("report.window", uc.window),
		attribute.String("report.from", in.FromDate),
		attribute.String("report.to", in.ToDate),
	)
	defer func() { run.End(err) }()

	p := uc.fallback(uc.now().UTC())
	if !in.empty() {
		if p, err = in.period(); err != nil {
			return decimal.Zero, run.Fail("REPORT_INVALID", err)
		}
	}
	sum, err := uc.repo.Summarize(ctx, p)
	if err != nil {
		return decimal.Zero, run.Fail("REPORT_FAILED", fmt.Errorf("invoice: summarize: %w", err))
	}
	return sum.Revenue, nil
}

func today(now time.Time) dominvoice.Period {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return dominvoice.Period{From: from, To: from.AddDate(0, 0, 1)}
}

func thisMonth(now time.Time) dominvoice.Period {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return dominvoice.Period{From: from, To: from.AddDate(0, 1, 0)}
}
