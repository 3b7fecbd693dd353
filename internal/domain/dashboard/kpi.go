// Package dashboard derives the summary figures shown on the school dashboard.
package dashboard

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/student"
)

// KPIs is computed from one snapshot of students and transactions; the
// five values are always mutually consistent.
type KPIs struct {
	TotalStudents   int             `json:"totalStudents"`
	TotalRevenue    decimal.Decimal `json:"totalRevenue"`
	TotalExpenses   decimal.Decimal `json:"totalExpenses"`
	NetBalance      decimal.Decimal `json:"netBalance"`
	DelinquencyRate float64         `json:"delinquencyRate"`
}

// Snapshot is a KPIs value stamped with when it was computed, as kept by
// caches outside the store.
type Snapshot struct {
	KPIs       KPIs      `json:"kpis"`
	ComputedAt time.Time `json:"computed_at"`
}

// ClassifyFunc re-derives a financial status from paid periods.
type ClassifyFunc func(paid []string) student.FinancialStatus

// Compute aggregates the dashboard figures. Delinquency is re-derived with
// classify rather than read from the cached FinancialStatus field.
func Compute(students []student.Student, transactions []finance.Transaction, classify ClassifyFunc) KPIs {
	k := KPIs{
		TotalStudents: len(students),
		TotalRevenue:  decimal.Zero,
		TotalExpenses: decimal.Zero,
	}

	for _, t := range transactions {
		if !t.Counts() {
			continue
		}
		switch t.Type {
		case finance.TypeIncome:
			k.TotalRevenue = k.TotalRevenue.Add(t.Amount)
		case finance.TypeExpense:
			k.TotalExpenses = k.TotalExpenses.Add(t.Amount)
		}
	}
	k.NetBalance = k.TotalRevenue.Sub(k.TotalExpenses)

	if k.TotalStudents == 0 {
		return k
	}

	late := 0
	for _, s := range students {
		if classify(s.PaidMonths) == student.FinancialLate {
			late++
		}
	}
	k.DelinquencyRate = roundTenth(float64(late) / float64(k.TotalStudents) * 100)

	return k
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
