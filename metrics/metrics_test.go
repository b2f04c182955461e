package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Polqt/crdtcollab/metrics"
)

func TestOpsIngested_CountsByKind(t *testing.T) {
	before := testutil.ToFloat64(metrics.OpsIngested.WithLabelValues("set"))
	metrics.OpsIngested.WithLabelValues("set").Inc()
	after := testutil.ToFloat64(metrics.OpsIngested.WithLabelValues("set"))
	require.Equal(t, before+1, after)
}

func TestActiveRooms_IsAGauge(t *testing.T) {
	metrics.ActiveRooms.Set(0)
	metrics.ActiveRooms.Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveRooms))
	metrics.ActiveRooms.Dec()
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveRooms))
}
