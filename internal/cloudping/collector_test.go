package cloudping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep so poll-budget expiry can be tested
// without real time passing.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCollector(t *testing.T, handler http.Handler, cfg Config) (*Collector, *fakeClock) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if cfg.Target == "" {
		cfg.Target = "example.net"
	}
	if cfg.Packets == 0 {
		cfg.Packets = 3
	}

	collector := NewCollector(NewClient(server.URL, "", time.Second), cfg)
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	collector.clock = clk

	return collector, clk
}

func TestMeasureResolvedBucketsByRegion(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req MeasurementRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ping", req.Type)
			assert.Len(t, req.Locations, 3)
			assert.Equal(t, 3, req.MeasurementOptions.Packets)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
		case http.MethodGet:
			assert.Equal(t, "/job-1", r.URL.Path)
			_, _ = w.Write([]byte(`{
				"id": "job-1",
				"status": "finished",
				"results": [
					{"probe": {"country": "DE"}, "result": {"stats": {"avg": 10}}},
					{"probe": {"country": "DE"}, "result": {"stats": {"avg": 20}}},
					{"probe": {"country": "US"}, "result": {"rawOutput": "rtt min/avg/max/mdev = 80/90/100/5 ms"}},
					{"probe": {"country": "AU", "continent": "OC"}, "result": {"stats": {"avg": 300}}}
				]
			}`))
		}
	})

	collector, _ := newTestCollector(t, handler, Config{})

	result := collector.Measure(context.Background())

	require.NotNil(t, result.EUMs)
	assert.InDelta(t, 15.0, *result.EUMs, 0.001, "two EU probes average")
	require.NotNil(t, result.USMs)
	assert.InDelta(t, 90.0, *result.USMs, 0.001)
	assert.Nil(t, result.AsiaMs, "a region with no contributing probes reports absent, not zero")
}

func TestMeasurePollBudgetExpiry(t *testing.T) {
	var polls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-2"})
		case http.MethodGet:
			atomic.AddInt32(&polls, 1)
			_, _ = w.Write([]byte(`{"id": "job-2", "status": "in-progress"}`))
		}
	})

	collector, _ := newTestCollector(t, handler, Config{PollBudget: 15 * time.Second})

	result := collector.Measure(context.Background())

	assert.Nil(t, result.EUMs)
	assert.Nil(t, result.USMs)
	assert.Nil(t, result.AsiaMs)
	assert.Greater(t, atomic.LoadInt32(&polls), int32(1), "should have polled more than once before giving up")
}

func TestMeasureSubmitFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	collector, _ := newTestCollector(t, handler, Config{})

	result := collector.Measure(context.Background())

	assert.Nil(t, result.EUMs)
	assert.Nil(t, result.USMs)
	assert.Nil(t, result.AsiaMs)
}

func TestMeasurePollBackoffGrowsToCeiling(t *testing.T) {
	var delays []time.Duration
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-3"})
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id": "job-3", "status": "in-progress"}`))
		}
	})

	collector, clk := newTestCollector(t, handler, Config{PollBudget: 10 * time.Second})
	recorder := &sleepRecorder{clock: clk, delays: &delays}
	collector.clock = recorder

	collector.Measure(context.Background())

	require.NotEmpty(t, delays)
	assert.Equal(t, 500*time.Millisecond, delays[0])
	for i := 1; i < len(delays); i++ {
		assert.LessOrEqual(t, delays[i], 2*time.Second, "poll delay must be capped at the ceiling")
		assert.GreaterOrEqual(t, delays[i], delays[i-1], "poll delay must not shrink")
	}
}

type sleepRecorder struct {
	clock  *fakeClock
	delays *[]time.Duration
}

func (s *sleepRecorder) Now() time.Time {
	return s.clock.Now()
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) {
	*s.delays = append(*s.delays, d)
	s.clock.Sleep(ctx, d)
}

func TestLocationsDefaultsAndOverrides(t *testing.T) {
	c := NewCollector(nil, Config{Packets: 3})
	locations := c.locations()
	require.Len(t, locations, 3)
	assert.Equal(t, Location{Country: "DE"}, locations[0])
	assert.Equal(t, Location{Magic: "US+Virginia"}, locations[1])
	assert.Equal(t, Location{Country: "CN"}, locations[2])

	c = NewCollector(nil, Config{Packets: 3, LocEU: "Berlin", LocAsia: "JP+Tokyo"})
	locations = c.locations()
	assert.Equal(t, Location{Magic: "Berlin"}, locations[0])
	assert.Equal(t, Location{Magic: "US+Virginia"}, locations[1])
	assert.Equal(t, Location{Magic: "JP+Tokyo"}, locations[2])
}

func TestNewCollectorClampsPackets(t *testing.T) {
	c := NewCollector(nil, Config{Packets: 50})
	assert.Equal(t, 10, c.cfg.Packets)

	c = NewCollector(nil, Config{Packets: -1})
	assert.Equal(t, 1, c.cfg.Packets)
}
