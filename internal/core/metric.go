package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartnerMetric is a partner together with its share of the business result.
// Values are rounded to two decimal places.
type PartnerMetric struct {
	Partner
	PercentOfOverallInvestment decimal.Decimal
	ProfitLoss                 decimal.Decimal
	PercentOfProfitLoss        decimal.Decimal
}

// Totals are the business-wide aggregates a set of metrics was derived from.
type Totals struct {
	TotalInvestment   decimal.Decimal
	TotalSales        decimal.Decimal
	TotalExpenses     decimal.Decimal
	OverallProfitLoss decimal.Decimal
}

// Report is the result of one allocation run.
type Report struct {
	Totals
	Partners   []PartnerMetric
	ComputedAt time.Time
}
