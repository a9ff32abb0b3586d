// Package telemetry exposes tracker state as Prometheus metrics on a
// private registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trackbus/internal/core"
)

const namespace = "trackbus"

type Metrics struct {
	registry *prometheus.Registry

	totalInvestment   prometheus.Gauge
	totalSales        prometheus.Gauge
	totalExpenses     prometheus.Gauge
	overallProfitLoss prometheus.Gauge
	partnerProfitLoss *prometheus.GaugeVec
	partnerShare      *prometheus.GaugeVec
	collectionRecords *prometheus.GaugeVec
	recomputations    prometheus.Counter
	submissions       *prometheus.CounterVec
	sourceErrors      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		totalInvestment: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "total_investment",
			Help: "Sum of money invested by all partners.",
		}),
		totalSales: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "total_sales",
			Help: "Sum of all sale totals.",
		}),
		totalExpenses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "total_expenses",
			Help: "Sum of all expense totals.",
		}),
		overallProfitLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "overall_profit_loss",
			Help: "Total sales minus total expenses.",
		}),
		partnerProfitLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "partner_profit_loss",
			Help: "Profit or loss allocated to a partner.",
		}, []string{"partner"}),
		partnerShare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "partner_investment_share_percent",
			Help: "Partner share of the total investment.",
		}, []string{"partner"}),
		collectionRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "collection_records",
			Help: "Records in the current snapshot of a collection.",
		}, []string{"collection"}),
		recomputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recomputations_total",
			Help: "Allocation runs triggered by snapshot changes.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "submissions_total",
			Help: "Entry submissions by kind and result.",
		}, []string{"kind", "result"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_errors_total",
			Help: "Data source failures by collection.",
		}, []string{"collection"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.totalInvestment, m.totalSales, m.totalExpenses, m.overallProfitLoss,
		m.partnerProfitLoss, m.partnerShare, m.collectionRecords,
		m.recomputations, m.submissions, m.sourceErrors,
	)
	return m
}

// ObserveReport records a freshly computed report.
func (m *Metrics) ObserveReport(r core.Report) {
	m.recomputations.Inc()
	m.totalInvestment.Set(r.TotalInvestment.InexactFloat64())
	m.totalSales.Set(r.TotalSales.InexactFloat64())
	m.totalExpenses.Set(r.TotalExpenses.InexactFloat64())
	m.overallProfitLoss.Set(r.OverallProfitLoss.InexactFloat64())

	// Partners can disappear between reports.
	m.partnerProfitLoss.Reset()
	m.partnerShare.Reset()
	for _, p := range r.Partners {
		label := p.Name
		if label == "" {
			label = p.ID
		}
		m.partnerProfitLoss.WithLabelValues(label).Set(p.ProfitLoss.InexactFloat64())
		m.partnerShare.WithLabelValues(label).Set(p.PercentOfOverallInvestment.InexactFloat64())
	}
}

// ObserveCollection records the size of a collection snapshot.
func (m *Metrics) ObserveCollection(collection string, records int) {
	m.collectionRecords.WithLabelValues(collection).Set(float64(records))
}

func (m *Metrics) ObserveSubmission(kind, result string) {
	m.submissions.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveSourceError(collection string) {
	m.sourceErrors.WithLabelValues(collection).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests and for callers adding collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
