package metrics

import (
	"time"

	"github.com/AetheriusMC/aetherius/pkg/component"
	"github.com/AetheriusMC/aetherius/pkg/events"
	"github.com/AetheriusMC/aetherius/pkg/supervisor"
	"github.com/AetheriusMC/aetherius/pkg/types"
)

var serverStates = []types.ServerState{
	types.ServerStopped,
	types.ServerStarting,
	types.ServerRunning,
	types.ServerStopping,
	types.ServerCrashed,
}

// ServerSource is the supervisor surface the collector samples
type ServerSource interface {
	Status() supervisor.Status
	Metrics() types.ProcessMetrics
}

// BusSource exposes event dispatch counters
type BusSource interface {
	Statistics() events.Stats
}

// ComponentSource exposes component state counts
type ComponentSource interface {
	Stats() component.Stats
}

// Collector samples the engine's gauges on a timer
type Collector struct {
	server     ServerSource
	bus        BusSource
	components ComponentSource
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCollector creates a collector over the engine's three sources.
// Nil sources are skipped.
func NewCollector(server ServerSource, bus BusSource, components ComponentSource) *Collector {
	return &Collector{
		server:     server,
		bus:        bus,
		components: components,
		interval:   15 * time.Second,
		stopCh:     make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectServerMetrics()
	c.collectBusMetrics()
	c.collectComponentMetrics()
}

func (c *Collector) collectServerMetrics() {
	if c.server == nil {
		return
	}

	status := c.server.Status()
	for _, state := range serverStates {
		val := 0.0
		if status.State == state {
			val = 1.0
		}
		ServerState.WithLabelValues(string(state)).Set(val)
	}
	ServerUptimeSeconds.Set(status.UptimeSeconds)

	m := c.server.Metrics()
	ServerCPUPercent.Set(m.CPUPercent)
	ServerMemoryMiB.Set(m.RSSMiB)
	ServerThreads.Set(float64(m.Threads))
}

func (c *Collector) collectBusMetrics() {
	if c.bus == nil {
		return
	}
	stats := c.bus.Statistics()
	for topic, count := range stats.Counts {
		EventsFired.WithLabelValues(topic).Set(float64(count))
	}
}

func (c *Collector) collectComponentMetrics() {
	if c.components == nil {
		return
	}
	stats := c.components.Stats()
	for state, count := range stats.ByState {
		ComponentsByState.WithLabelValues(string(state)).Set(float64(count))
	}
}
