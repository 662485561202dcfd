package metrics

import (
	"time"

	"github.com/cuemby/fm/pkg/fleet/storage"
)

// Collector periodically polls the state store and republishes gauges, the
// same periodic-poll shape as the teacher's manager-backed collector.
type Collector struct {
	store  *storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(store *storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectAgentMetrics()
	c.collectHostMetrics()
}

func (c *Collector) collectAgentMetrics() {
	agents, err := c.store.ListAllAgents()
	if err != nil {
		return
	}
	counts := make(map[string]int)
	for _, a := range agents {
		counts[string(a.State)]++
	}
	for state, count := range counts {
		AgentsTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectHostMetrics() {
	hosts, err := c.store.ListHosts()
	if err != nil {
		return
	}
	counts := make(map[[2]string]int)
	for _, h := range hosts {
		counts[[2]string{string(h.Provider), string(h.State)}]++
	}
	for key, count := range counts {
		HostsTotal.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}
