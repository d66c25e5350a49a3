package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PromNamespace      = "aa_dc"
	TxMetricsNamespace = "tx_metrics"
)

type Metrics struct {
	TxSuccess          prometheus.Counter
	TxFailure          prometheus.Counter
	TxInclusion        prometheus.Histogram
	BroadcastFailure   prometheus.Counter
	BroadcastSuccess   prometheus.Counter
	ValidationRejected *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them with reg. A nil reg
// registers with the default registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TxSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "tx_success",
			Help:      "Number of included txs with a successful receipt.",
		}),
		TxFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "tx_failure",
			Help:      "Number of included txs whose receipt reports a revert.",
		}),
		TxInclusion: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "tx_inclusion",
			Help:      "Histogram of milliseconds between broadcast and receipt.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 1500, 2000, 5000, 10000, 15000, 20000, 30000, 60000, 90000, 120000, 300000},
		}),
		BroadcastFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "broadcast_failure",
			Help:      "Number of failed tx broadcasts.",
		}),
		BroadcastSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "broadcast_success",
			Help:      "Number of successful tx broadcasts.",
		}),
		ValidationRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "validation_rejected",
			Help:      "Number of txs refused by the network, by rejection class.",
		}, []string{"class"}),
	}
	for _, c := range []prometheus.Collector{
		m.TxSuccess, m.TxFailure, m.TxInclusion, m.BroadcastFailure, m.BroadcastSuccess, m.ValidationRejected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveBroadcast(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BroadcastFailure.Inc()
		return
	}
	m.BroadcastSuccess.Inc()
}

func (m *Metrics) ObserveRejection(class string) {
	if m == nil {
		return
	}
	m.ValidationRejected.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveReceipt(success bool, sentAt time.Time) {
	if m == nil {
		return
	}
	if success {
		m.TxSuccess.Inc()
	} else {
		m.TxFailure.Inc()
	}
	m.TxInclusion.Observe(float64(time.Since(sentAt).Milliseconds()))
}
