package netprobe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"codeberg.org/mutker/netpulse/internal/errors"
)

// stubStrategy returns scripted per-host results
type stubStrategy struct {
	name    string
	results map[string]PingResult
	err     error
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Ping(_ context.Context, host string, _ int) (PingResult, error) {
	if s.err != nil {
		return PingResult{}, s.err
	}
	return s.results[host], nil
}

func TestMeasureAggregatesMaxLossAndMeanLatency(t *testing.T) {
	probe := NewPacketLossProbe([]string{"a", "b", "c"}, 4, 0, false)
	probe.strategies = []PingStrategy{&stubStrategy{
		name: "stub",
		results: map[string]PingResult{
			"a": {LossPct: 0, AvgMS: 10},
			"b": {LossPct: 25, AvgMS: 30},
			"c": {LossPct: 50, AvgMS: 20},
		},
	}}

	loss, latency := probe.Measure(context.Background())

	assert.InDelta(t, 50.0, loss, 0.001, "loss must be the max across hosts")
	assert.InDelta(t, 20.0, latency, 0.001, "latency must be the mean of per-host averages")
}

func TestMeasureSkipsZeroLatencyHostsInMean(t *testing.T) {
	probe := NewPacketLossProbe([]string{"a", "b"}, 4, 0, false)
	probe.strategies = []PingStrategy{&stubStrategy{
		name: "stub",
		results: map[string]PingResult{
			"a": {LossPct: 100, AvgMS: 0},
			"b": {LossPct: 0, AvgMS: 12},
		},
	}}

	loss, latency := probe.Measure(context.Background())

	assert.InDelta(t, 100.0, loss, 0.001)
	assert.InDelta(t, 12.0, latency, 0.001, "hosts with no successful probes contribute no latency")
}

func TestMeasureNoHosts(t *testing.T) {
	probe := NewPacketLossProbe(nil, 3, 0, false)

	loss, latency := probe.Measure(context.Background())

	assert.Zero(t, loss)
	assert.Zero(t, latency)
}

func TestMeasureFallsBackThroughChain(t *testing.T) {
	errFactory := errors.New()
	probe := NewPacketLossProbe([]string{"a"}, 3, 0, false)
	probe.strategies = []PingStrategy{
		&stubStrategy{name: "broken", err: errFactory.New(ErrPingUnavailable)},
		&stubStrategy{name: "works", results: map[string]PingResult{"a": {LossPct: 10, AvgMS: 5}}},
	}

	loss, latency := probe.Measure(context.Background())

	assert.InDelta(t, 10.0, loss, 0.001)
	assert.InDelta(t, 5.0, latency, 0.001)
}

func TestMeasureAllStrategiesUnavailableCountsAsFullLoss(t *testing.T) {
	errFactory := errors.New()
	probe := NewPacketLossProbe([]string{"10.0.0.1"}, 3, 0, false)
	probe.strategies = []PingStrategy{
		&stubStrategy{name: "broken", err: errFactory.New(ErrPingUnavailable)},
	}

	loss, latency := probe.Measure(context.Background())

	assert.InDelta(t, 100.0, loss, 0.001, "an unresponsive prober means a dead link, not a healthy one")
	assert.Zero(t, latency)
}

func TestMeasureAllPacketsTimeOut(t *testing.T) {
	// The scenario behind the stub: 3 packets to 10.0.0.1, all lost.
	probe := NewPacketLossProbe([]string{"10.0.0.1"}, 3, 0, false)
	probe.strategies = []PingStrategy{&stubStrategy{
		name:    "stub",
		results: map[string]PingResult{"10.0.0.1": {LossPct: 100, AvgMS: 0}},
	}}

	loss, latency := probe.Measure(context.Background())

	assert.InDelta(t, 100.0, loss, 0.001)
	assert.Zero(t, latency)
}
