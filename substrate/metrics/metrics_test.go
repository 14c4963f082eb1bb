package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaykernel/substrate/substrate/facet"
	"github.com/relaykernel/substrate/substrate/message"
	"github.com/relaykernel/substrate/substrate/metrics"
	"github.com/relaykernel/substrate/substrate/queue"
)

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			var g *dto.Gauge = m.GetGauge()
			return g.GetValue()
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestHookSamplesQueueOnDispose(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	q := queue.New(queue.DefaultOptions())
	require.NoError(t, q.Enqueue(message.New("api://x", nil, message.Event), nil))
	_, _ = q.Dequeue()
	q.Stats.RecordProcessed(10 * time.Millisecond)

	b := facet.NewBuilder()
	b.Use(&facet.Hook{Kind: "queue", Fn: func(ctx *facet.Context, api *facet.API, name string) (*facet.Facet, error) {
		return &facet.Facet{Kind: "queue", Value: q}, nil
	}})
	b.Use(c.Hook("worker", 10*time.Millisecond))

	res, err := b.Build(&facet.Context{}, "worker", nil)
	require.NoError(t, err)

	// dispose in reverse install order, as subsystem.Dispose would.
	for i := len(res.Installed) - 1; i >= 0; i-- {
		f := res.Facets[res.Installed[i]]
		if f.OnDispose != nil {
			require.NoError(t, f.OnDispose())
		}
	}

	assert.Equal(t, float64(1), gaugeValue(t, reg, "substrate_queue_processed_total"))
}
