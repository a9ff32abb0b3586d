package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trackbus/internal/core"
	"trackbus/internal/store"
)

type column struct {
	field string
	name  string
}

type table struct {
	name    string
	columns []column
}

var tables = map[store.Collection]table{
	store.Partners: {
		name: "partners",
		columns: []column{
			{core.FieldName, "name"},
			{core.FieldMoneyInvested, "money_invested"},
			{core.FieldInvestmentDate, "investment_date"},
		},
	},
	store.Expenses: {
		name: "expenses",
		columns: []column{
			{core.FieldTypeOfEntry, "type_of_entry"},
			{core.FieldTypeOfExpense, "type_of_expense"},
			{core.FieldDescription, "description"},
			{core.FieldDate, "date"},
			{core.FieldPerUnitCost, "per_unit_cost"},
			{core.FieldQuantity, "quantity"},
			{core.FieldTotalCost, "total_cost"},
			{core.FieldTimestamp, "timestamp"},
		},
	},
	store.Sales: {
		name: "sales",
		columns: []column{
			{core.FieldTypeOfEntry, "type_of_entry"},
			{core.FieldTypeOfSale, "type_of_sale"},
			{core.FieldDescription, "description"},
			{core.FieldDate, "date"},
			{core.FieldPerUnitSalePrice, "per_unit_sale_price"},
			{core.FieldQuantity, "quantity"},
			{core.FieldTotalSalePrice, "total_sale_price"},
			{core.FieldTimestamp, "timestamp"},
		},
	},
}

func (t table) selectSQL() string {
	names := make([]string, 0, len(t.columns)+1)
	names = append(names, "id")
	for _, c := range t.columns {
		names = append(names, c.name)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(names, ", "), t.name)
}

func (t table) insertSQL() string {
	names := []string{"id"}
	marks := []string{"?"}
	for _, c := range t.columns {
		names = append(names, c.name)
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(names, ", "), strings.Join(marks, ", "))
}

func (t table) insertArgs(id string, fields map[string]any) []any {
	args := make([]any, 0, len(t.columns)+1)
	args = append(args, id)
	for _, c := range t.columns {
		args = append(args, toText(fields[c.field]))
	}
	return args
}

// toText renders a field value the way it is stored. Every column is TEXT so
// decimals keep their exact representation.
func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case decimal.Decimal:
		return x.String()
	case core.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
