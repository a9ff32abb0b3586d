package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackbus/internal/core"
)

func report(partners ...core.PartnerMetric) core.Report {
	return core.Report{
		Totals: core.Totals{
			TotalInvestment:   decimal.NewFromInt(1000),
			TotalSales:        decimal.NewFromInt(1000),
			TotalExpenses:     decimal.NewFromInt(1200),
			OverallProfitLoss: decimal.NewFromInt(-200),
		},
		Partners: partners,
	}
}

func metric(name, pl string) core.PartnerMetric {
	return core.PartnerMetric{
		Partner:    core.Partner{ID: name, Name: name},
		ProfitLoss: decimal.RequireFromString(pl),
	}
}

func TestObserveReport(t *testing.T) {
	m := New()
	m.ObserveReport(report(metric("Alice", "-120"), metric("Bob", "-80")))

	assert.InDelta(t, -200, testutil.ToFloat64(m.overallProfitLoss), 1e-9)
	assert.InDelta(t, -120, testutil.ToFloat64(m.partnerProfitLoss.WithLabelValues("Alice")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recomputations))

	// A partner that vanished is dropped from the vector.
	m.ObserveReport(report(metric("Alice", "-200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.partnerProfitLoss))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recomputations))
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveSubmission("expense", "success")
	m.ObserveSubmission("expense", "success")
	m.ObserveSubmission("sale", "invalid")
	m.ObserveSourceError("partners")
	m.ObserveCollection("sales", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.submissions.WithLabelValues("expense", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceErrors.WithLabelValues("partners")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.collectionRecords.WithLabelValues("sales")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReport(report(metric("Alice", "10")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `trackbus_partner_profit_loss{partner="Alice"} 10`))
	assert.Contains(t, string(body), "go_goroutines")
}
