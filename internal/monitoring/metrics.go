// Package monitoring records batch counters on a private prometheus
// registry and exports them in the node_exporter textfile format.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Pair outcomes.
const (
	OutcomeSuccess = "success"
)

// Metrics holds the batch collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	pairsTotal      *prometheus.CounterVec
	pairDuration    prometheus.Histogram
	userCharsTotal  prometheus.Counter
	rowsTotal       *prometheus.CounterVec
	corpusLines     prometheus.Gauge
	estimatedTokens *prometheus.GaugeVec
	estimatedCost   *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finetune_pairs_total",
				Help: "Document/spreadsheet pairs processed, by outcome",
			},
			[]string{"outcome"},
		),
		pairDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finetune_pair_duration_seconds",
				Help:    "Time spent processing one pair",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		userCharsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finetune_user_chars_total",
				Help: "Characters of truncated document text written to the corpus",
			},
		),
		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finetune_table_rows_total",
				Help: "Spreadsheet rows written to the corpus, by table",
			},
			[]string{"table"},
		),
		corpusLines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finetune_corpus_lines",
				Help: "Records in the corpus after the last write",
			},
		),
		estimatedTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finetune_estimated_training_tokens",
				Help: "Approximate training tokens of the last estimated corpus",
			},
			[]string{"model"},
		),
		estimatedCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finetune_estimated_cost_usd",
				Help: "Approximate training cost of the last estimated corpus",
			},
			[]string{"model"},
		),
	}

	m.reg.MustRegister(
		m.pairsTotal,
		m.pairDuration,
		m.userCharsTotal,
		m.rowsTotal,
		m.corpusLines,
		m.estimatedTokens,
		m.estimatedCost,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObservePair records one processed pair.
func (m *Metrics) ObservePair(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pairsTotal.WithLabelValues(outcome).Inc()
	m.pairDuration.Observe(elapsed.Seconds())
}

// AddSample records the size of a written record.
func (m *Metrics) AddSample(userChars, infoRows, transactionRows int) {
	if m == nil {
		return
	}
	m.userCharsTotal.Add(float64(userChars))
	m.rowsTotal.WithLabelValues("info").Add(float64(infoRows))
	m.rowsTotal.WithLabelValues("transactions").Add(float64(transactionRows))
}

// SetCorpusLines records the current corpus length.
func (m *Metrics) SetCorpusLines(n int) {
	if m == nil {
		return
	}
	m.corpusLines.Set(float64(n))
}

// SetEstimate records the result of a cost estimation.
func (m *Metrics) SetEstimate(model string, trainingTokens, costUSD float64) {
	if m == nil {
		return
	}
	m.estimatedTokens.WithLabelValues(model).Set(trainingTokens)
	m.estimatedCost.WithLabelValues(model).Set(costUSD)
}

// WriteTextfile writes all metrics to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	return nil
}
