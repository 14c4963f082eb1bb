// Package metrics exports a subsystem's queue.Statistics counters to
// Prometheus. It is wired purely through the hook-point surface (spec §1:
// "the core only propagates trace/correlation IDs and emits hook points")
// and has no teacher analog — the original system only logged its
// counters.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relaykernel/substrate/substrate/facet"
	"github.com/relaykernel/substrate/substrate/queue"
)

// Collector mirrors one subsystem's queue.Statistics into a family of
// gauges labeled by subsystem name.
type Collector struct {
	accepted  *prometheus.GaugeVec
	processed *prometheus.GaugeVec
	errored   *prometheus.GaugeVec
	dropped   *prometheus.GaugeVec
	meanLat   *prometheus.GaugeVec
	queueSize *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its gauges against reg.
// Pass prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		accepted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_queue_accepted_total",
			Help: "Messages accepted into a subsystem queue.",
		}, []string{"subsystem"}),
		processed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_queue_processed_total",
			Help: "Messages processed off a subsystem queue.",
		}, []string{"subsystem"}),
		errored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_queue_errored_total",
			Help: "Handler errors encountered processing a subsystem queue.",
		}, []string{"subsystem"}),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_queue_dropped_total",
			Help: "Messages dropped due to queue overflow.",
		}, []string{"subsystem"}),
		meanLat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_queue_mean_processing_seconds",
			Help: "Rolling mean handler processing latency.",
		}, []string{"subsystem"}),
		queueSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "substrate_queue_size",
			Help: "Current number of pending messages in a subsystem queue.",
		}, []string{"subsystem"}),
	}

	for _, coll := range []prometheus.Collector{c.accepted, c.processed, c.errored, c.dropped, c.meanLat, c.queueSize} {
		if err := reg.Register(coll); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// sample reads q's current counters into the gauges labeled name.
func (c *Collector) sample(name string, q *queue.Queue) {
	c.accepted.WithLabelValues(name).Set(float64(q.Stats.Accepted))
	c.processed.WithLabelValues(name).Set(float64(q.Stats.Processed))
	c.errored.WithLabelValues(name).Set(float64(q.Stats.Errored))
	c.dropped.WithLabelValues(name).Set(float64(q.Stats.Dropped))
	c.meanLat.WithLabelValues(name).Set(q.Stats.MeanProcessingTime().Seconds())
	c.queueSize.WithLabelValues(name).Set(float64(q.Size()))
}

// Hook returns a facet.Hook that, once installed on a subsystem, samples
// that subsystem's queue into c every interval until the subsystem
// disposes (spec §4.1 OnInit/OnDispose lifecycle).
func (c *Collector) Hook(subsystemName string, interval time.Duration) *facet.Hook {
	if interval <= 0 {
		interval = time.Second
	}
	return &facet.Hook{
		Kind: "metrics",
		Fn: func(ctx *facet.Context, api *facet.API, name string) (*facet.Facet, error) {
			qf, ok := api.Find("queue")
			if !ok {
				return &facet.Facet{Kind: "metrics"}, nil
			}
			q, ok := qf.Value.(*queue.Queue)
			if !ok {
				return &facet.Facet{Kind: "metrics"}, nil
			}

			stop := make(chan struct{})
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						c.sample(subsystemName, q)
					case <-stop:
						return
					}
				}
			}()

			return &facet.Facet{
				Kind: "metrics",
				OnDispose: func() error {
					close(stop)
					wg.Wait()
					c.sample(subsystemName, q)
					return nil
				},
			}, nil
		},
	}
}
