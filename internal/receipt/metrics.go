package receipt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zombor/receipt-analyzer/internal/scanning"
)

// Analysis outcomes used as the "outcome" label
const (
	outcomeSuccess          = "success"
	outcomeImagePreparation = "image_preparation"
	outcomeTransport        = "transport"
	outcomeMalformedReply   = "malformed_reply"
	outcomeCanceled         = "canceled"
	outcomeOther            = "other"
)

// Metrics holds Prometheus metrics for receipt analysis.
//
// Metrics:
//   - receipt_analyses_total{outcome} - analyses by outcome
//   - receipt_analysis_duration_seconds - end to end analysis latency
//   - receipt_analyses_in_flight - analyses currently running
//   - receipt_model_tokens_total{direction} - model tokens, "input" or "output"
//   - receipt_usage_records_dropped_total - usage records the ledger dropped
type Metrics struct {
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	InFlight         prometheus.Gauge
	TokensTotal      *prometheus.CounterVec
	UsageDropped     prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AnalysesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_analyses_total",
				Help: "Total number of receipt analyses by outcome",
			},
			[]string{"outcome"},
		),
		AnalysisDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "receipt_analysis_duration_seconds",
				Help:    "Duration of receipt analyses in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "receipt_analyses_in_flight",
				Help: "Number of receipt analyses currently running",
			},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "receipt_model_tokens_total",
				Help: "Total number of model tokens reported",
			},
			[]string{"direction"},
		),
		UsageDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "receipt_usage_records_dropped_total",
				Help: "Total number of usage records dropped because the ledger queue was full",
			},
		),
	}
}

// RecordUsage implements scanning.UsageRecorder
func (m *Metrics) RecordUsage(report scanning.UsageReport) {
	m.TokensTotal.WithLabelValues("input").Add(float64(report.Usage.InputTokens))
	m.TokensTotal.WithLabelValues("output").Add(float64(report.Usage.OutputTokens))
}
