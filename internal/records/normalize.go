package records

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"trackbus/internal/core"
	"trackbus/internal/store"
)

// Normalization never fails: a missing, malformed or negative number becomes
// zero and is reported through the returned list of defaulted field names.

func toPartner(r store.Record) (core.Partner, []string) {
	var bad []string
	invested, ok := amount(r.Fields[core.FieldMoneyInvested])
	if !ok {
		bad = append(bad, core.FieldMoneyInvested)
	}
	return core.Partner{
		ID:             r.ID,
		Name:           text(r.Fields[core.FieldName]),
		MoneyInvested:  invested,
		InvestmentDate: date(r.Fields[core.FieldInvestmentDate]),
	}, bad
}

func toExpense(r store.Record) (core.Expense, []string) {
	var bad []string
	unit, ok := amount(r.Fields[core.FieldPerUnitCost])
	if !ok {
		bad = append(bad, core.FieldPerUnitCost)
	}
	qty, ok := amount(r.Fields[core.FieldQuantity])
	if !ok {
		bad = append(bad, core.FieldQuantity)
	}
	total, ok := amount(r.Fields[core.FieldTotalCost])
	if !ok {
		bad = append(bad, core.FieldTotalCost)
	}
	return core.Expense{
		ID:          r.ID,
		Type:        core.ExpenseType(text(r.Fields[core.FieldTypeOfExpense])),
		Description: text(r.Fields[core.FieldDescription]),
		Date:        date(r.Fields[core.FieldDate]),
		PerUnitCost: unit,
		Quantity:    qty,
		TotalCost:   total,
		Timestamp:   timestamp(r.Fields[core.FieldTimestamp]),
	}, bad
}

func toSale(r store.Record) (core.Sale, []string) {
	var bad []string
	unit, ok := amount(r.Fields[core.FieldPerUnitSalePrice])
	if !ok {
		bad = append(bad, core.FieldPerUnitSalePrice)
	}
	qty, ok := amount(r.Fields[core.FieldQuantity])
	if !ok {
		bad = append(bad, core.FieldQuantity)
	}
	total, ok := amount(r.Fields[core.FieldTotalSalePrice])
	if !ok {
		bad = append(bad, core.FieldTotalSalePrice)
	}
	return core.Sale{
		ID:               r.ID,
		Type:             core.SaleType(text(r.Fields[core.FieldTypeOfSale])),
		Description:      text(r.Fields[core.FieldDescription]),
		Date:             date(r.Fields[core.FieldDate]),
		PerUnitSalePrice: unit,
		Quantity:         qty,
		TotalSalePrice:   total,
		Timestamp:        timestamp(r.Fields[core.FieldTimestamp]),
	}, bad
}

// amount converts a stored number to a non-negative decimal. ok is false
// when the value was missing or unusable and zero was substituted.
func amount(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		d = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int32:
		d = decimal.NewFromInt32(x)
	case int64:
		d = decimal.NewFromInt(x)
	case json.Number:
		parsed, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		if s == "" {
			return decimal.Zero, false
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	default:
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// date accepts YYYY-MM-DD, an RFC 3339 timestamp or a time value. Anything
// else is the zero Date.
func date(v any) core.Date {
	switch x := v.(type) {
	case core.Date:
		return x
	case time.Time:
		return core.NewDate(x.Year(), int(x.Month()), x.Day())
	case string:
		return dateFromString(x)
	case fmt.Stringer:
		return dateFromString(x.String())
	}
	return core.Date{}
}

func dateFromString(s string) core.Date {
	s = strings.TrimSpace(s)
	if d, err := core.ParseDate(s); err == nil {
		return d
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return core.NewDate(t.Year(), int(t.Month()), t.Day())
	}
	return core.Date{}
}

func timestamp(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(x)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// dedupe keeps one entity per ID, the last one seen, at the position of the
// first. Entities without an ID are kept as they are.
func dedupe[T any](items []T, id func(T) string) []T {
	pos := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		key := id(it)
		if key == "" {
			out = append(out, it)
			continue
		}
		if i, ok := pos[key]; ok {
			out[i] = it
			continue
		}
		pos[key] = len(out)
		out = append(out, it)
	}
	return out
}
