package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Observe("toy4", 3, 2, 1)
	m.Observe("toy4", 1, 0, 2)
	m.Observe("amd64", 5, 5, 1)

	require.Equal(t, 4.0, testutil.ToFloat64(m.Stores.WithLabelValues("toy4")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Loads.WithLabelValues("toy4")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Blocks.WithLabelValues("toy4")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Functions.WithLabelValues("toy4")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Functions.WithLabelValues("amd64")))
	require.Equal(t, 2, testutil.CollectAndCount(m.Stores))
}

func TestNew_sharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)
	require.Same(t, a.Stores, b.Stores)

	b.Observe("toy2", 1, 1, 1)
	require.Equal(t, 1.0, testutil.ToFloat64(a.Stores.WithLabelValues("toy2")))
}

func TestMetrics_nil(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() { m.Observe("toy2", 1, 1, 1) })
}
