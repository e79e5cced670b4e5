package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Walks.Inc()
	m.WalkErrors.WithLabelValues("max_depth").Inc()
	m.BatchSize.Observe(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["statecore_walks_total"])
	assert.True(t, names["statecore_walk_errors_total"])
	assert.True(t, names["statecore_flush_batch_size"])
}

func TestNewWithoutRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).Flushes.Inc()
		New(nil).Flushes.Inc()
	})
}
