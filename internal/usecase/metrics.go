package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus instruments for the scan flow. A nil *Metrics
// records nothing.
type Metrics struct {
	scans       *prometheus.CounterVec
	predictions *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewMetrics registers the scan instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		scans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leafscan",
			Name:      "scans_total",
			Help:      "Scans handled, by outcome.",
		}, []string{"outcome"}),
		predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leafscan",
			Name:      "predictions_total",
			Help:      "Successful predictions, by class.",
		}, []string{"class"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leafscan",
			Name:      "scan_duration_seconds",
			Help:      "End-to-end duration of a scan.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(outcome, class string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if class != "" {
		m.predictions.WithLabelValues(class).Inc()
	}
}

// StatsSummary represents aggregated scan insights.
type StatsSummary struct {
	TotalScans        int64   `json:"total_scans"`
	HealthyScans      int64   `json:"healthy_scans"`
	HealthyRate       float64 `json:"healthy_rate"`
	AverageConfidence float64 `json:"average_confidence"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
}

// Stats aggregates scan metrics from persisted logs.
func (uc *ScanUseCase) Stats(ctx context.Context) (*StatsSummary, error) {
	aggregation, err := uc.repo.AggregateStats(ctx)
	if err != nil {
		return nil, err
	}

	summary := &StatsSummary{
		TotalScans:        aggregation.TotalCount,
		HealthyScans:      aggregation.HealthyCount,
		AverageConfidence: aggregation.AverageConfidence,
		AverageLatencyMs:  aggregation.AverageLatencyMs,
	}
	if aggregation.TotalCount > 0 {
		summary.HealthyRate = float64(aggregation.HealthyCount) / float64(aggregation.TotalCount)
	}
	return summary, nil
}

func isHealthy(class string) bool {
	return strings.HasSuffix(class, "healthy")
}
