package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.ObserveBroadcast(nil)
	m.ObserveBroadcast(nil)
	m.ObserveBroadcast(errors.New("boom"))
	m.ObserveRejection("validation")
	m.ObserveReceipt(true, time.Now())
	m.ObserveReceipt(false, time.Now())

	require.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastSuccess))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastFailure))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ValidationRejected.WithLabelValues("validation")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TxSuccess))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TxFailure))

	_, err = NewMetrics(reg)
	require.Error(t, err)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveBroadcast(nil)
		m.ObserveRejection("nonce")
		m.ObserveReceipt(true, time.Now())
	})
}
