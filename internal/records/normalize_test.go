package records

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"trackbus/internal/core"
	"trackbus/internal/store"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{"nil", nil, "0", false},
		{"decimal", decimal.RequireFromString("12.5"), "12.5", true},
		{"float", 10.25, "10.25", true},
		{"float32", float32(2.5), "2.5", true},
		{"int", 7, "7", true},
		{"int64", int64(9), "9", true},
		{"json number", json.Number("3.75"), "3.75", true},
		{"string", " 100.10 ", "100.1", true},
		{"comma string", "12,34", "12.34", true},
		{"empty string", "  ", "0", false},
		{"garbage", "abc", "0", false},
		{"negative", -5, "0", false},
		{"negative string", "-0.01", "0", false},
		{"NaN", math.NaN(), "0", false},
		{"Inf", math.Inf(1), "0", false},
		{"bool", true, "0", false},
		{"zero", "0", "0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := amount(tt.in)
			if ok != tt.wantOK {
				t.Errorf("amount(%v) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("amount(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

type stringer string

func (s stringer) String() string { return string(s) }

func TestDate(t *testing.T) {
	want := core.NewDate(2024, 3, 9)
	tests := []struct {
		name string
		in   any
		want core.Date
	}{
		{"plain", "2024-03-09", want},
		{"rfc3339", "2024-03-09T15:04:05+02:00", want},
		{"time", time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC), want},
		{"core date", want, want},
		{"stringer", stringer("2024-03-09"), want},
		{"garbage", "09/03/2024", core.Date{}},
		{"nil", nil, core.Date{}},
		{"number", 20240309, core.Date{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := date(tt.in); !got.Equal(tt.want.Time) {
				t.Errorf("date(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToExpenseKeepsStoredTotal(t *testing.T) {
	e, bad := toExpense(store.Record{ID: "e1", Fields: map[string]any{
		core.FieldTypeOfExpense: "shuttle cost",
		core.FieldDescription:   " fuel ",
		core.FieldDate:          "2024-01-02",
		core.FieldPerUnitCost:   "10",
		core.FieldQuantity:      "3",
		core.FieldTotalCost:     "25",
		core.FieldTimestamp:     "2024-01-02T10:00:00Z",
	}})
	if len(bad) != 0 {
		t.Fatalf("unexpected defaulted fields %v", bad)
	}
	if !e.TotalCost.Equal(decimal.NewFromInt(25)) {
		t.Errorf("TotalCost = %s, want stored 25", e.TotalCost)
	}
	if e.Type != core.ExpenseShuttle || e.Description != "fuel" {
		t.Errorf("unexpected expense %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestToSaleDefaultsMalformed(t *testing.T) {
	s, bad := toSale(store.Record{ID: "s1", Fields: map[string]any{
		core.FieldTotalSalePrice: "lots",
		core.FieldQuantity:       2,
	}})
	if !s.TotalSalePrice.IsZero() {
		t.Errorf("TotalSalePrice = %s, want 0", s.TotalSalePrice)
	}
	want := []string{core.FieldPerUnitSalePrice, core.FieldTotalSalePrice}
	if len(bad) != len(want) || bad[0] != want[0] || bad[1] != want[1] {
		t.Errorf("bad = %v, want %v", bad, want)
	}
}

func TestToPartner(t *testing.T) {
	p, bad := toPartner(store.Record{ID: "p1", Fields: map[string]any{
		core.FieldName:           "Alice",
		core.FieldMoneyInvested:  600.0,
		core.FieldInvestmentDate: "2024-01-15",
	}})
	if len(bad) != 0 || p.Name != "Alice" || !p.MoneyInvested.Equal(decimal.NewFromInt(600)) {
		t.Errorf("unexpected partner %+v (bad %v)", p, bad)
	}
	if p.InvestmentDate.String() != "2024-01-15" {
		t.Errorf("InvestmentDate = %s", p.InvestmentDate)
	}
}

func TestDedupe(t *testing.T) {
	in := []core.Partner{{ID: "a", Name: "1"}, {ID: "b"}, {ID: "a", Name: "2"}, {ID: ""}, {ID: ""}}
	out := dedupe(in, func(p core.Partner) string { return p.ID })
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if out[0].ID != "a" || out[0].Name != "2" {
		t.Errorf("last occurrence should win in first position, got %+v", out[0])
	}
}
