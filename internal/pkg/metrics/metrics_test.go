package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveBrokerCall("FHKST01010100", "ok", 0.1)
	m.ObserveBrokerCall("FHKST01010100", "ok", 0.2)
	m.IncTokenIssued("paper")
	m.IncTokenPersistFailure("live")
	m.IncOrder("buy", "paper", "filled")
	m.SetLedgerCash(499_925)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BrokerCalls.WithLabelValues("FHKST01010100", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenIssued.WithLabelValues("paper")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenPersist.WithLabelValues("live")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orders.WithLabelValues("buy", "paper", "filled")))
	assert.Equal(t, 499_925.0, testutil.ToFloat64(m.LedgerCash))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBrokerCall("x", "ok", 1)
		m.IncTokenIssued("live")
		m.IncTokenPersistFailure("live")
		m.IncOrder("sell", "live", "rejected")
		m.ObserveCycle(1)
		m.IncCycleError("auth")
		m.SetLedgerCash(1)
		m.ObserveEvaluation(1, 1)
	})
}
