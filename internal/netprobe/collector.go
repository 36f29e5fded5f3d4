package netprobe

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/netpulse/internal/logger"
	"codeberg.org/mutker/netpulse/internal/netinfo"
)

const snapshotTTL = 300 * time.Second

// Metrics is one complete network snapshot. A failed sub-measurement
// contributes its sentinel value instead of invalidating the snapshot.
type Metrics struct {
	PacketLossPct float64 `json:"packet_loss_pct"`
	LatencyMS     float64 `json:"latency_ms"`
	DownMbps      float64 `json:"down_mbps"`
	UpMbps        float64 `json:"up_mbps"`
	TestMethod    string  `json:"test_method"`
	LocalIP       string  `json:"local_ip"`
	PublicIP      string  `json:"public_ip"`
}

// LossProbe measures packet loss and latency
type LossProbe interface {
	Measure(ctx context.Context) (lossPct, avgMS float64)
}

// SpeedProbe measures throughput in both directions
type SpeedProbe interface {
	MeasureDownload(ctx context.Context) (mbps float64, method string)
	MeasureUpload(ctx context.Context) (mbps float64)
}

// AddrResolver discovers the host's local and public addresses
type AddrResolver interface {
	LocalIP() string
	PublicIP(ctx context.Context) string
}

// Collector orchestrates the five network measurements. It is owned by a
// single control loop; the snapshot cache therefore needs no locking.
type Collector struct {
	loss     LossProbe
	tput     SpeedProbe
	resolver AddrResolver

	cached   *Metrics
	cachedAt time.Time
	ttl      time.Duration
}

func NewCollector(loss LossProbe, tput SpeedProbe, resolver AddrResolver) *Collector {
	return &Collector{
		loss:     loss,
		tput:     tput,
		resolver: resolver,
		ttl:      snapshotTTL,
	}
}

// Collect returns a network snapshot. With useCache, a snapshot younger than
// the TTL is returned as-is; useCache=false forces a refresh (the on-demand
// reporting path).
func (c *Collector) Collect(ctx context.Context, useCache bool) Metrics {
	if useCache && c.cached != nil && time.Since(c.cachedAt) < c.ttl {
		return *c.cached
	}

	metrics := c.refresh(ctx)

	c.cached = &metrics
	c.cachedAt = time.Now()

	return metrics
}

// refresh fans out the five measurement tasks, one goroutine per kind. Each
// task is fully isolated: a failure logs a warning and leaves the field at its
// sentinel value. The snapshot is assembled only after every task finished.
func (c *Collector) refresh(ctx context.Context) Metrics {
	metrics := Metrics{
		TestMethod: MethodUnavailable,
		LocalIP:    netinfo.FallbackLocalIP,
		PublicIP:   netinfo.UnknownPublicIP,
	}

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(5)

	go func() {
		defer wg.Done()
		defer recoverTask("download")
		metrics.DownMbps, metrics.TestMethod = c.tput.MeasureDownload(ctx)
	}()

	go func() {
		defer wg.Done()
		defer recoverTask("upload")
		metrics.UpMbps = c.tput.MeasureUpload(ctx)
	}()

	go func() {
		defer wg.Done()
		defer recoverTask("packet_loss")
		metrics.PacketLossPct, metrics.LatencyMS = c.loss.Measure(ctx)
	}()

	go func() {
		defer wg.Done()
		defer recoverTask("local_ip")
		metrics.LocalIP = c.resolver.LocalIP()
	}()

	go func() {
		defer wg.Done()
		defer recoverTask("public_ip")
		metrics.PublicIP = c.resolver.PublicIP(ctx)
	}()

	wg.Wait()

	logger.Debug().
		Dur("elapsed", time.Since(start)).
		Float64("loss_pct", metrics.PacketLossPct).
		Float64("latency_ms", metrics.LatencyMS).
		Float64("down_mbps", metrics.DownMbps).
		Float64("up_mbps", metrics.UpMbps).
		Str("method", metrics.TestMethod).
		Msg("Network snapshot collected")

	return metrics
}

func recoverTask(name string) {
	if r := recover(); r != nil {
		logger.Warn().Interface("panic", r).Str("task", name).Msg("Network metric task failed")
	}
}
