package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period is the half-open creation window [From, To). A zero bound is open.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// Summary is the sales aggregate over the invoices of a Period. Revenue,
// Completed and QuantitySold count COMPLETED invoices only.
type Summary struct {
	Revenue      decimal.Decimal
	Completed    int64
	QuantitySold int64
	Returned     int64
}

// Summarize folds the invoices created inside p into a Summary.
func Summarize(p Period, invoices []*Invoice) Summary {
	s := Summary{Revenue: decimal.Zero}
	for _, inv := range invoices {
		if !p.Contains(inv.CreatedAt) {
			continue
		}
		switch inv.Type {
		case TypeCompleted:
			s.Revenue = s.Revenue.Add(inv.TotalAmount)
			s.Completed++
			for _, it := range inv.Items {
				s.QuantitySold += int64(it.Quantity)
			}
		case TypeReturned:
			s.Returned++
		}
	}
	return s
}
