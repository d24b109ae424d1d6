package invoice

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain"
	dominvoice "github.com/Zhima-Mochi/minishop-orders/internal/domain/invoice"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
)

func TestReportInputPeriod(t *testing.T) {
	p, err := ReportInput{FromDate: "2025-03-01", ToDate: "2025-03-31"}.period()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), p.From)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), p.To)

	p, err = ReportInput{ToDate: "2025-03-31"}.period()
	require.NoError(t, err)
	assert.True(t, p.From.IsZero())

	p, err = ReportInput{FromDate: "2025-03-05", ToDate: "2025-03-05"}.period()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, p.To.Sub(p.From))

	for _, in := range []ReportInput{
		{FromDate: "03/01/2025"},
		{ToDate: "2025-13-01"},
		{FromDate: "2025-03-02", ToDate: "2025-03-01"},
	} {
		_, err := in.period()
		assert.ErrorIs(t, err, domain.ErrValidation, "%+v", in)
	}
}

func TestDefaultWindows(t *testing.T) {
	now := time.Date(2024, 2, 29, 17, 30, 0, 0, time.UTC)

	d := today(now)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d.From)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d.To)

	m := thisMonth(now)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), m.From)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), m.To)
}

func TestRevenueFallsBackToWindow(t *testing.T) {
	repo := memory.NewInvoiceRepository()
	at := func(orderID string, total int64, ts time.Time) {
		inv, err := dominvoice.New(orderID, orderID, dominvoice.TypeCompleted, dominvoice.Snapshot{TotalAmount: decimal.NewFromInt(total)})
		require.NoError(t, err)
		inv.CreatedAt = ts
		require.NoError(t, repo.Insert(t.Context(), inv))
	}
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	at("o-1", 100, now.Add(-time.Hour))
	at("o-2", 40, now.AddDate(0, 0, -3))
	at("o-3", 7, now.AddDate(0, -1, 0))

	svc := NewService(repo, nil, nil)
	clock := func() time.Time { return now }
	svc.Daily.now, svc.Monthly.now = clock, clock

	daily, err := svc.Daily.Execute(t.Context(), ReportInput{})
	require.NoError(t, err)
	assert.True(t, daily.Equal(decimal.NewFromInt(100)), daily.String())

	monthly, err := svc.Monthly.Execute(t.Context(), ReportInput{})
	require.NoError(t, err)
	assert.True(t, monthly.Equal(decimal.NewFromInt(140)), monthly.String())

	explicit, err := svc.Daily.Execute(t.Context(), ReportInput{FromDate: "2025-05-01", ToDate: "2025-06-15"})
	require.NoError(t, err)
	assert.True(t, explicit.Equal(decimal.NewFromInt(147)), explicit.String())

	_, err = svc.Monthly.Execute(t.Context(), ReportInput{FromDate: "June"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDisplayMillions(t *testing.T) {
	assert.Equal(t, "0 triệu", displayMillions(decimal.Zero))
	assert.Equal(t, "47.22 triệu", displayMillions(decimal.NewFromInt(47_215_000)))
	assert.Equal(t, "0.02 triệu", displayMillions(decimal.NewFromInt(15_000)))
}
