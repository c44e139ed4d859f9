package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.GatewayCacheLookups.WithLabelValues("balance", "hit").Inc()
	m.GatewayCacheLookups.WithLabelValues("balance", "hit").Inc()
	m.TransfersAdded.Add(3)

	assert.Equal(t, 2.0, counterValue(t, m.GatewayCacheLookups.WithLabelValues("balance", "hit")))
	assert.Equal(t, 3.0, counterValue(t, m.TransfersAdded))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordHelpers(t *testing.T) {
	before := counterValue(t, DefaultMetrics.GatewayCacheLookups.WithLabelValues("price", "miss"))
	RecordCacheLookup("price", false)
	assert.Equal(t, before+1, counterValue(t, DefaultMetrics.GatewayCacheLookups.WithLabelValues("price", "miss")))

	RecordSyncCycle("full", "DONE", 1.5)
	assert.GreaterOrEqual(t, counterValue(t, DefaultMetrics.SyncCyclesTotal.WithLabelValues("full", "DONE")), 1.0)
}
