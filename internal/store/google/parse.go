package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trackbus/internal/core"
	"trackbus/internal/store"
)

// parseRows converts a values matrix with a header row into records. Rows
// without an id cell are keyed by their sheet row number.
func parseRows(values [][]any) []store.Record {
	if len(values) == 0 {
		return nil
	}
	header := toStrings(values[0])
	idCol := indexOf(header, "id")

	out := make([]store.Record, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if isBlank(row) {
			continue
		}
		rec := store.Record{Fields: make(map[string]any, len(header))}
		for col, name := range header {
			if name == "" || col == idCol {
				continue
			}
			if v := safeGet(row, col); v != "" {
				rec.Fields[name] = v
			}
		}
		rec.ID = safeGet(row, idCol)
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("row:%d", i+1)
		}
		out = append(out, rec)
	}
	return out
}

// buildRow lays fields out in header order.
func buildRow(header []string, id string, fields map[string]any) []any {
	row := make([]any, len(header))
	for i, name := range header {
		if strings.EqualFold(name, "id") {
			row[i] = id
			continue
		}
		row[i] = cell(fields[name])
	}
	return row
}

func cell(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case decimal.Decimal:
		return x.String()
	case core.Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return x
	}
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
