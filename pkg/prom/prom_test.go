package prom

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_RegistersIntakeMetrics(t *testing.T) {
	require.NoError(t, Create("test-host", "test", "intake_gateway"))
	t.Cleanup(func() { MetricSystemEnabled = false })

	ObserveDispatch("relay", true, 120*time.Millisecond)
	ObserveDispatch("store", false, 10*time.Millisecond)
	ObserveDispatch("store", false, 10*time.Millisecond)
	IncIntakeRejected("validation")
	AddAdminMutatedRows("mark_read", 3)

	dispatch := MetricCollectionCounterVec[SystemIntake+MetricIntakeDispatchTotal]
	assert.Equal(t, 1.0, testutil.ToFloat64(dispatch.WithLabelValues("relay", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(dispatch.WithLabelValues("store", "failure")))

	rows := MetricCollectionCounterVec[SystemAdmin+MetricAdminMutatedRows]
	assert.Equal(t, 3.0, testutil.ToFloat64(rows.WithLabelValues("mark_read")))

	SetRelayState(2)
	SetRelayState(1)
	IncRelayBreakerOpened()
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricCollectionGaugeVec[SystemRelay+MetricRelayState].WithLabelValues()))
	assert.Equal(t, 1.0, testutil.ToFloat64(MetricCollectionCounters[SystemRelay+MetricRelayBreakerOpened]))
}

func TestCreate_IsRepeatable(t *testing.T) {
	require.NoError(t, Create("a", "test", "ns"))
	require.NoError(t, Create("b", "test", "ns"))
	t.Cleanup(func() { MetricSystemEnabled = false })
}

func TestDisabledMetricsAreNoop(t *testing.T) {
	MetricSystemEnabled = false
	assert.NotPanics(t, func() {
		ObserveDispatch("relay", false, time.Second)
		AddAdminMutatedRows("delete", 1)
		SetRelayState(2)
		IncRelayBreakerOpened()
	})
}
