package http

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"trackbus/internal/core"
	"trackbus/internal/session"
)

// Monetary metrics are fixed two-decimal strings.
type partnerResponse struct {
	ID                         string `json:"id"`
	Name                       string `json:"name"`
	MoneyInvested              string `json:"moneyInvested"`
	InvestmentDate             string `json:"investmentDate,omitempty"`
	PercentOfOverallInvestment string `json:"percentOfOverallInvestment"`
	PartnerProfitLoss          string `json:"partnerProfitLoss"`
	PercentOfProfitLoss        string `json:"percentOfProfitLoss"`
}

type reportResponse struct {
	TotalInvestment   string            `json:"totalInvestment"`
	TotalSales        string            `json:"totalSales"`
	TotalExpenses     string            `json:"totalExpenses"`
	OverallProfitLoss string            `json:"overallProfitLoss"`
	Partners          []partnerResponse `json:"partners"`
	ComputedAt        time.Time         `json:"computedAt"`
}

type expenseResponse struct {
	ID            string `json:"id"`
	TypeOfExpense string `json:"typeOfExpense"`
	Description   string `json:"description"`
	Date          string `json:"date"`
	PerUnitCost   string `json:"perUnitCost"`
	Quantity      string `json:"quantity"`
	TotalCost     string `json:"totalCost"`
	Timestamp     string `json:"timestamp,omitempty"`
}

type saleResponse struct {
	ID               string `json:"id"`
	TypeOfSale       string `json:"typeOfSale"`
	Description      string `json:"description"`
	Date             string `json:"date"`
	PerUnitSalePrice string `json:"perUnitSalePrice"`
	Quantity         string `json:"quantity"`
	TotalSalePrice   string `json:"totalSalePrice"`
	Timestamp        string `json:"timestamp,omitempty"`
}

type sessionResponse struct {
	State    string            `json:"state"`
	Ready    bool              `json:"ready"`
	Identity *session.Identity `json:"identity,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type submissionResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type listResponse[T any] struct {
	Items  []T  `json:"items"`
	Loaded bool `json:"loaded"`
}

func newReportResponse(r core.Report) reportResponse {
	out := reportResponse{
		TotalInvestment:   core.Fixed2(r.TotalInvestment),
		TotalSales:        core.Fixed2(r.TotalSales),
		TotalExpenses:     core.Fixed2(r.TotalExpenses),
		OverallProfitLoss: core.Fixed2(r.OverallProfitLoss),
		Partners:          make([]partnerResponse, 0, len(r.Partners)),
		ComputedAt:        r.ComputedAt,
	}
	for _, m := range r.Partners {
		out.Partners = append(out.Partners, partnerResponse{
			ID:                         m.ID,
			Name:                       m.Name,
			MoneyInvested:              core.Fixed2(m.MoneyInvested),
			InvestmentDate:             m.InvestmentDate.String(),
			PercentOfOverallInvestment: core.Fixed2(m.PercentOfOverallInvestment),
			PartnerProfitLoss:          core.Fixed2(m.ProfitLoss),
			PercentOfProfitLoss:        core.Fixed2(m.PercentOfProfitLoss),
		})
	}
	return out
}

func newExpenseResponses(in []core.Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(in))
	for _, e := range in {
		out = append(out, expenseResponse{
			ID:            e.ID,
			TypeOfExpense: string(e.Type),
			Description:   e.Description,
			Date:          e.Date.String(),
			PerUnitCost:   e.PerUnitCost.String(),
			Quantity:      e.Quantity.String(),
			TotalCost:     core.Fixed2(e.TotalCost),
			Timestamp:     formatTimestamp(e.Timestamp),
		})
	}
	return out
}

func newSaleResponses(in []core.Sale) []saleResponse {
	out := make([]saleResponse, 0, len(in))
	for _, s := range in {
		out = append(out, saleResponse{
			ID:               s.ID,
			TypeOfSale:       string(s.Type),
			Description:      s.Description,
			Date:             s.Date.String(),
			PerUnitSalePrice: s.PerUnitSalePrice.String(),
			Quantity:         s.Quantity.String(),
			TotalSalePrice:   core.Fixed2(s.TotalSalePrice),
			Timestamp:        formatTimestamp(s.Timestamp),
		})
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field, message string) {
	writeJSON(w, status, errorResponse{Error: code, Field: field, Message: message})
}
