// Package metrics holds the Prometheus collectors of the trading core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "snowbot"

// Metrics groups all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BrokerCalls    *prometheus.CounterVec
	BrokerLatency  *prometheus.HistogramVec
	TokenIssued    *prometheus.CounterVec
	TokenPersist   *prometheus.CounterVec
	Orders         *prometheus.CounterVec
	CycleDuration  prometheus.Histogram
	CycleErrors    *prometheus.CounterVec
	LedgerCash     prometheus.Gauge
	EvaluatedTotal prometheus.Counter
	BuyCandidates  prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BrokerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_calls_total",
			Help:      "Broker API calls by TR id and outcome",
		}, []string{"tr_id", "outcome"}),
		BrokerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broker_call_seconds",
			Help:      "Broker API HTTP round trip",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"tr_id"}),
		TokenIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_issued_total",
			Help:      "Access tokens issued by profile",
		}, []string{"profile"}),
		TokenPersist: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_persist_failures_total",
			Help:      "Token state saves that failed after retry, by profile",
		}, []string{"profile"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders by side, execution mode and outcome",
		}, []string{"side", "mode", "outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Auto-trade cycle duration",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Per-symbol cycle errors by kind",
		}, []string{"kind"}),
		LedgerCash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_cash_krw",
			Help:      "Paper ledger cash balance",
		}),
		EvaluatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluated_symbols_total",
			Help:      "Symbols scored by batch evaluation",
		}),
		BuyCandidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buy_candidates",
			Help:      "Buy candidates of the latest evaluation run",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BrokerCalls, m.BrokerLatency, m.TokenIssued, m.TokenPersist, m.Orders,
			m.CycleDuration, m.CycleErrors, m.LedgerCash,
			m.EvaluatedTotal, m.BuyCandidates,
		)
	}
	return m
}

func (m *Metrics) ObserveBrokerCall(trID, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.BrokerCalls.WithLabelValues(trID, outcome).Inc()
	if seconds > 0 {
		m.BrokerLatency.WithLabelValues(trID).Observe(seconds)
	}
}

func (m *Metrics) IncTokenIssued(profile string) {
	if m == nil {
		return
	}
	m.TokenIssued.WithLabelValues(profile).Inc()
}

func (m *Metrics) IncTokenPersistFailure(profile string) {
	if m == nil {
		return
	}
	m.TokenPersist.WithLabelValues(profile).Inc()
}

func (m *Metrics) IncOrder(side, mode, outcome string) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(side, mode, outcome).Inc()
}

func (m *Metrics) ObserveCycle(seconds float64) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(seconds)
}

func (m *Metrics) IncCycleError(kind string) {
	if m == nil {
		return
	}
	m.CycleErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetLedgerCash(cash int64) {
	if m == nil {
		return
	}
	m.LedgerCash.Set(float64(cash))
}

func (m *Metrics) ObserveEvaluation(evaluated, candidates int) {
	if m == nil {
		return
	}
	m.EvaluatedTotal.Add(float64(evaluated))
	m.BuyCandidates.Set(float64(candidates))
}
