package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rnsgate/internal/clock"
	"grimm.is/rnsgate/internal/logging"
)

type fakeSource struct {
	snap Snapshot
	err  error
}

func (f *fakeSource) Snapshot(context.Context) (Snapshot, error) {
	return f.snap, f.err
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCollector_Collect(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	clk := clock.NewMock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	src := &fakeSource{snap: Snapshot{
		RNSD:            true,
		InterfacesTotal: 3,
		InterfacesUp:    2,
		Bandwidth:       map[string]Traffic{"tcp": {TX: 100, RX: 250}},
	}}

	c := NewCollector(reg, src, logging.New(logging.DefaultConfig()), time.Minute, clk)
	clk.Advance(10 * time.Second)
	c.Collect()

	assert.Equal(t, 1.0, gaugeValue(t, reg.DaemonUp.WithLabelValues("rnsd")))
	assert.Equal(t, 0.0, gaugeValue(t, reg.DaemonUp.WithLabelValues("lxmd")))
	assert.Equal(t, 3.0, gaugeValue(t, reg.InterfacesTotal))
	assert.Equal(t, 2.0, gaugeValue(t, reg.InterfacesUp))
	assert.Equal(t, 100.0, gaugeValue(t, reg.MediumTxBytes.WithLabelValues("tcp")))
	assert.Equal(t, 250.0, gaugeValue(t, reg.MediumRxBytes.WithLabelValues("tcp")))
	assert.Equal(t, 10.0, gaugeValue(t, reg.Uptime))

	snap, at, err := c.Last()
	require.NoError(t, err)
	assert.Equal(t, src.snap, snap)
	assert.Equal(t, clk.Now(), at)
}

func TestCollector_SourceErrorKeepsLastSnapshot(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	src := &fakeSource{snap: Snapshot{RNSD: true, InterfacesTotal: 1}}
	c := NewCollector(reg, src, logging.New(logging.DefaultConfig()), time.Minute, nil)

	c.Collect()
	src.err = errors.New("control plane down")
	c.Collect()

	snap, _, err := c.Last()
	assert.Error(t, err)
	assert.True(t, snap.RNSD)
	assert.Equal(t, 1.0, gaugeValue(t, reg.InterfacesTotal))
}

func TestCollector_StartStop(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())
	c := NewCollector(reg, &fakeSource{}, logging.New(logging.DefaultConfig()), 10*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		c.Start()
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	c.Stop()
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	_, at, _ := c.Last()
	assert.False(t, at.IsZero())
}

func TestRegistry_Records(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.RecordAPIRequest("GET", "/api/reticulum/service/status", 200, 0.01)
	reg.RecordCommand("utilities", "ok", 50*time.Millisecond)
	reg.RecordSettingsWrite("general", true)
	reg.RecordSettingsWrite("general", false)

	assert.Equal(t, 1.0, counterValue(t, reg.APIRequests.WithLabelValues("GET", "/api/reticulum/service/status", "200")))
	assert.Equal(t, 1.0, counterValue(t, reg.Commands.WithLabelValues("utilities", "ok")))
	assert.Equal(t, 1.0, counterValue(t, reg.SettingsSaves.WithLabelValues("general")))
	assert.Equal(t, 1.0, counterValue(t, reg.ValidationFailures.WithLabelValues("general")))
}

func TestGet_Singleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
