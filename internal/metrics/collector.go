package metrics

import (
	"context"
	"sync"
	"time"

	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/logging"
)

// Traffic is the byte count of one interface medium.
type Traffic struct {
	TX int64 `json:"tx"`
	RX int64 `json:"rx"`
}

// Snapshot is the Reticulum state gathered on each collection tick.
type Snapshot struct {
	RNSD              bool               `json:"rnsd"`
	LXMD              bool               `json:"lxmd"`
	InterfacesTotal   int                `json:"interfaces_total"`
	InterfacesUp      int                `json:"interfaces_up"`
	Bandwidth         map[string]Traffic `json:"bandwidth_by_medium,omitempty"`
	PropagationStored int                `json:"propagation_messages"`
}

// Source produces snapshots, usually by asking the control plane.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Collector polls a Source and updates the Prometheus registry.
type Collector struct {
	registry *Registry
	source   Source
	logger   *logging.Logger
	clock    clock.Clock
	interval time.Duration
	started  time.Time
	stopCh   chan struct{}
	stopOnce sync.Once

	mu         sync.RWMutex
	last       Snapshot
	lastUpdate time.Time
	lastErr    error
}

// NewCollector creates a new metrics collector. A nil registry uses Get().
func NewCollector(reg *Registry, source Source, logger *logging.Logger, interval time.Duration, clk clock.Clock) *Collector {
	if reg == nil {
		reg = Get()
	}
	clk = clock.Or(clk)
	return &Collector{
		registry: reg,
		source:   source,
		logger:   logger.WithComponent("metrics"),
		clock:    clk,
		interval: interval,
		started:  clk.Now(),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called.
func (c *Collector) Start() {
	c.logger.Info("Starting metrics collector", "interval", c.interval.String())

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect()
	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-c.stopCh:
			c.logger.Info("Stopping metrics collector")
			return
		}
	}
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect gathers one snapshot and updates the registry.
func (c *Collector) Collect() {
	timeout := c.interval
	if timeout <= 0 || timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c.registry.Uptime.Set(c.clock.Since(c.started).Seconds())

	snap, err := c.source.Snapshot(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	if err != nil {
		c.logger.Warn("Failed to collect Reticulum state", "error", err)
		return
	}

	r := c.registry
	r.DaemonUp.WithLabelValues("rnsd").Set(boolGauge(snap.RNSD))
	r.DaemonUp.WithLabelValues("lxmd").Set(boolGauge(snap.LXMD))
	r.InterfacesTotal.Set(float64(snap.InterfacesTotal))
	r.InterfacesUp.Set(float64(snap.InterfacesUp))
	r.PropagationStored.Set(float64(snap.PropagationStored))
	for medium, t := range snap.Bandwidth {
		r.MediumTxBytes.WithLabelValues(medium).Set(float64(t.TX))
		r.MediumRxBytes.WithLabelValues(medium).Set(float64(t.RX))
	}

	c.last = snap
	c.lastUpdate = c.clock.Now()
}

// Last returns the most recent snapshot and when it was taken.
func (c *Collector) Last() (Snapshot, time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last, c.lastUpdate, c.lastErr
}
