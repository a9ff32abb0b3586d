// Package allocation distributes the business result across partners in
// proportion to what each partner invested.
//
// Compute is a pure function: the same snapshots always produce the same
// report, inputs are never modified, and every division by zero yields 0.
// It is re-run from scratch on every snapshot change; there is no
// incremental state to drift.
package allocation

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"trackbus/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Totals sums the three collections. Negative amounts count as 0.
func Totals(partners []core.Partner, sales []core.Sale, expenses []core.Expense) core.Totals {
	var t core.Totals
	for _, p := range partners {
		t.TotalInvestment = t.TotalInvestment.Add(nonNegative(p.MoneyInvested))
	}
	for _, s := range sales {
		t.TotalSales = t.TotalSales.Add(nonNegative(s.TotalSalePrice))
	}
	for _, e := range expenses {
		t.TotalExpenses = t.TotalExpenses.Add(nonNegative(e.TotalCost))
	}
	t.OverallProfitLoss = t.TotalSales.Sub(t.TotalExpenses)
	return t
}

// Compute derives the per-partner metrics for the given snapshots.
//
// For each partner:
//
//	share      = invested / totalInvestment * 100     (0 when totalInvestment is 0)
//	profitLoss = overallProfitLoss * share / 100
//	percentPL  = profitLoss / invested * 100          (0 when invested is 0)
//
// Intermediate values are kept exact; only the emitted figures are rounded to
// two decimal places. Partners are ordered by name, then ID.
func Compute(partners []core.Partner, sales []core.Sale, expenses []core.Expense) core.Report {
	totals := Totals(partners, sales, expenses)

	ordered := slices.Clone(partners)
	slices.SortStableFunc(ordered, func(a, b core.Partner) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	metrics := make([]core.PartnerMetric, 0, len(ordered))
	for _, p := range ordered {
		metrics = append(metrics, allocate(p, totals))
	}

	return core.Report{
		Totals:   roundTotals(totals),
		Partners: metrics,
	}
}

func allocate(p core.Partner, t core.Totals) core.PartnerMetric {
	invested := nonNegative(p.MoneyInvested)

	share := decimal.Zero
	if t.TotalInvestment.IsPositive() {
		share = invested.Div(t.TotalInvestment).Mul(hundred)
	}

	profitLoss := t.OverallProfitLoss.Mul(share).Div(hundred)

	percent := decimal.Zero
	if invested.IsPositive() {
		percent = profitLoss.Div(invested).Mul(hundred)
	}

	return core.PartnerMetric{
		Partner:                    p,
		PercentOfOverallInvestment: core.Round2(share),
		ProfitLoss:                 core.Round2(profitLoss),
		PercentOfProfitLoss:        core.Round2(percent),
	}
}

func roundTotals(t core.Totals) core.Totals {
	return core.Totals{
		TotalInvestment:   core.Round2(t.TotalInvestment),
		TotalSales:        core.Round2(t.TotalSales),
		TotalExpenses:     core.Round2(t.TotalExpenses),
		OverallProfitLoss: core.Round2(t.OverallProfitLoss),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
